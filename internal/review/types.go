package review

import (
	"fmt"
	"strings"
	"time"
)

// Status tracks where a refill request sits in its review lifecycle.
type Status string

const (
	// StatusPendingReview marks a request awaiting a clinician decision.
	StatusPendingReview Status = "pending_review"
	// StatusReviewed marks a request that carries a final decision. Terminal.
	StatusReviewed Status = "reviewed"
)

// Decision is an Approve/Deny verdict, whether issued by the AI pipeline or a clinician.
type Decision string

const (
	DecisionApprove Decision = "Approve"
	DecisionDeny    Decision = "Deny"
)

// ParseDecision validates a raw decision string from an API payload.
func ParseDecision(raw string) (Decision, error) {
	switch Decision(strings.TrimSpace(raw)) {
	case DecisionApprove:
		return DecisionApprove, nil
	case DecisionDeny:
		return DecisionDeny, nil
	default:
		return "", fmt.Errorf("decision must be either %q or %q", DecisionApprove, DecisionDeny)
	}
}

// Patient holds the read-only demographics joined onto a refill request.
type Patient struct {
	ID          uint   `json:"id"`
	MRN         string `json:"mrn"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
}

// FullName renders "First Last" for display and search.
func (p *Patient) FullName() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Protocol holds the read-only refill rules joined onto a refill request.
type Protocol struct {
	ID                  uint     `json:"id"`
	MedicationClass     string   `json:"medication_class"`
	MaxMonthsSinceVisit *int     `json:"max_months_since_visit"`
	MaxA1cValue         *float64 `json:"max_a1c_value"`
	RequireRecentA1c    *int     `json:"require_recent_a1c"`
}

// RefillRequest is the wire representation of a refill request as served by the
// gateway and consumed by the queue projection and review client. Patient and
// Protocol may be nil when the join could not be resolved; every derived-field
// helper substitutes a documented default instead of failing.
type RefillRequest struct {
	ID            uint       `json:"id"`
	PatientID     uint       `json:"patient_id"`
	ProtocolID    uint       `json:"protocol_id"`
	Status        Status     `json:"status"`
	AIDecision    *Decision  `json:"ai_decision"`
	AIReason      *string    `json:"ai_reason"`
	AIConfidence  *float64   `json:"ai_confidence"`
	FinalDecision *Decision  `json:"final_decision"`
	ReviewedBy    *string    `json:"reviewed_by"`
	ReviewedAt    *time.Time `json:"reviewed_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Patient       *Patient   `json:"patient"`
	Protocol      *Protocol  `json:"protocol"`
}

// PatientName returns the linked patient's full name or "Unknown Patient".
func (r RefillRequest) PatientName() string {
	if name := r.Patient.FullName(); name != "" {
		return name
	}
	return "Unknown Patient"
}

// MedicationClass returns the linked protocol's medication class or the empty string.
func (r RefillRequest) MedicationClass() string {
	if r.Protocol == nil {
		return ""
	}
	return r.Protocol.MedicationClass
}

// MRN returns the linked patient's medical record number or the empty string.
func (r RefillRequest) MRN() string {
	if r.Patient == nil {
		return ""
	}
	return r.Patient.MRN
}

// ProtocolCheck is one requirement/observation/pass-fail row shown on the detail view.
type ProtocolCheck struct {
	Requirement string `json:"requirement"`
	Observed    string `json:"observed"`
	Passed      bool   `json:"passed"`
}

// DetailData is the full payload backing a request's detail view.
type DetailData struct {
	Request          RefillRequest   `json:"request"`
	PatientData      PatientData     `json:"patient_data"`
	ClinicalData     ClinicalData    `json:"clinical_data"`
	ProtocolsChecked []ProtocolCheck `json:"protocols_checked"`
}

// PatientData carries EMR demographics for the detail view.
type PatientData struct {
	MRN       string `json:"mrn"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	DOB       string `json:"dob"`
}

// ClinicalData carries EMR visit and lab history for the detail view.
type ClinicalData struct {
	LastVisitDate string `json:"last_visit_date"`
	Labs          Labs   `json:"labs"`
}

// Labs groups the lab results the refill protocols reference.
type Labs struct {
	A1c *LabResult `json:"A1c,omitempty"`
}

// LabResult is a single lab value with its draw date (YYYY-MM-DD).
type LabResult struct {
	Value float64 `json:"value"`
	Date  string  `json:"date"`
}
