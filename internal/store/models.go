package store

import (
	"time"
)

// Patient mirrors the EMR's patient record. Read-only reference data: the review
// core looks patients up for display but never writes them outside seeding.
type Patient struct {
	ID          uint   `gorm:"primaryKey"`
	MRN         string `gorm:"size:32;uniqueIndex"`
	FirstName   string `gorm:"size:128"`
	LastName    string `gorm:"size:128"`
	DateOfBirth string `gorm:"size:16"`
	CreatedAt   time.Time
}

// MedicationProtocol holds the refill rules for one medication class. Nil limits
// mean the rule does not apply to that class.
type MedicationProtocol struct {
	ID                  uint   `gorm:"primaryKey"`
	MedicationClass     string `gorm:"size:128;index"`
	MaxMonthsSinceVisit *int
	MaxA1cValue         *float64
	RequireRecentA1c    *int
	CreatedAt           time.Time
}

// RefillRequest is the authoritative refill-request row. The AI fields are written
// once by the upstream pipeline; the review fields are written exactly once when a
// clinician decides, after which the row is terminal.
type RefillRequest struct {
	ID         uint   `gorm:"primaryKey"`
	PatientID  uint   `gorm:"index"`
	ProtocolID uint   `gorm:"index"`
	Status     string `gorm:"size:32;index"`

	AIDecision   *string `gorm:"size:16"`
	AIReason     *string `gorm:"type:text"`
	AIConfidence *float64

	FinalDecision *string `gorm:"size:16"`
	ReviewedBy    *string `gorm:"size:64"`
	ReviewedAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
