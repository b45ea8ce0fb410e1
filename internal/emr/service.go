// Package emr provides patient demographics and clinical history for the detail
// view. This implementation is a stand-in for a real EMR integration: it serves
// deterministic fixtures keyed by MRN, with two canned scenarios (one that violates
// the refill protocols, one that passes) plus a generic fallback.
package emr

import (
	"time"

	"github.com/iprashantai/medrefill-mvp1/internal/review"
)

const dateLayout = "2006-01-02"

// MRNs with fixed scenarios. 12345 fails the last-visit rule; 67890 passes everything.
const (
	MRNDenyCase    = "12345"
	MRNApproveCase = "67890"
)

// Service resolves EMR data for a patient. Now is injectable so tests can pin the
// visit/lab recency arithmetic.
type Service struct {
	now func() time.Time
}

// NewService constructs an EMR service using the wall clock.
func NewService() *Service {
	return &Service{now: time.Now}
}

// NewServiceAt constructs an EMR service frozen at a fixed time.
func NewServiceAt(now time.Time) *Service {
	return &Service{now: func() time.Time { return now }}
}

// PatientData returns demographics for the MRN.
func (s *Service) PatientData(mrn string) review.PatientData {
	switch mrn {
	case MRNDenyCase:
		return review.PatientData{MRN: mrn, FirstName: "John", LastName: "Doe", DOB: "1975-04-10"}
	case MRNApproveCase:
		return review.PatientData{MRN: mrn, FirstName: "Jane", LastName: "Smith", DOB: "1980-06-15"}
	default:
		return review.PatientData{MRN: mrn, FirstName: "Patient", LastName: "Unknown", DOB: "1970-01-01"}
	}
}

// ClinicalData returns visit and lab history for the MRN.
func (s *Service) ClinicalData(mrn string) review.ClinicalData {
	today := s.now()
	switch mrn {
	case MRNDenyCase:
		// Last visit roughly 19 months ago with a recent but elevated-side A1c.
		return review.ClinicalData{
			LastVisitDate: today.AddDate(0, 0, -575).Format(dateLayout),
			Labs: review.Labs{
				A1c: &review.LabResult{
					Value: 7.8,
					Date:  today.AddDate(0, 0, -30).Format(dateLayout),
				},
			},
		}
	case MRNApproveCase:
		return review.ClinicalData{
			LastVisitDate: today.AddDate(0, 0, -90).Format(dateLayout),
			Labs: review.Labs{
				A1c: &review.LabResult{
					Value: 6.9,
					Date:  today.AddDate(0, 0, -60).Format(dateLayout),
				},
			},
		}
	default:
		return review.ClinicalData{
			LastVisitDate: today.AddDate(0, 0, -120).Format(dateLayout),
			Labs: review.Labs{
				A1c: &review.LabResult{
					Value: 7.2,
					Date:  today.AddDate(0, 0, -45).Format(dateLayout),
				},
			},
		}
	}
}
