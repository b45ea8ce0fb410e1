package api

import (
	"github.com/iprashantai/medrefill-mvp1/internal/queue"
	"github.com/iprashantai/medrefill-mvp1/internal/review"
	"github.com/iprashantai/medrefill-mvp1/internal/store"
)

// ReviewPayload is the request body for a review submission.
type ReviewPayload struct {
	Decision string `json:"decision"`
	UserID   string `json:"user_id"`
}

// MetricsResponse summarizes the queue for the dashboard cards. AIApproved and
// AIDenied tally the pending queue; Mismatches tallies the full historical
// collection, since only reviewed requests can disagree with the AI.
type MetricsResponse struct {
	TotalPending int `json:"total_pending"`
	AIApproved   int `json:"ai_approved"`
	AIDenied     int `json:"ai_denied"`
	Mismatches   int `json:"mismatches"`
	ApprovedPct  int `json:"approved_pct"`
	DeniedPct    int `json:"denied_pct"`
}

// RequestFromModel converts a store row plus its joined reference data into the wire
// representation. Patient/protocol stay nil when the lookup failed; consumers
// substitute display defaults rather than erroring.
func RequestFromModel(m store.RefillRequest, patient *store.Patient, proto *store.MedicationProtocol) review.RefillRequest {
	out := review.RefillRequest{
		ID:           m.ID,
		PatientID:    m.PatientID,
		ProtocolID:   m.ProtocolID,
		Status:       review.Status(m.Status),
		AIReason:     m.AIReason,
		AIConfidence: m.AIConfidence,
		ReviewedBy:   m.ReviewedBy,
		ReviewedAt:   m.ReviewedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.AIDecision != nil {
		d := review.Decision(*m.AIDecision)
		out.AIDecision = &d
	}
	if m.FinalDecision != nil {
		d := review.Decision(*m.FinalDecision)
		out.FinalDecision = &d
	}
	if patient != nil {
		out.Patient = &review.Patient{
			ID:          patient.ID,
			MRN:         patient.MRN,
			FirstName:   patient.FirstName,
			LastName:    patient.LastName,
			DateOfBirth: patient.DateOfBirth,
		}
	}
	if proto != nil {
		out.Protocol = &review.Protocol{
			ID:                  proto.ID,
			MedicationClass:     proto.MedicationClass,
			MaxMonthsSinceVisit: proto.MaxMonthsSinceVisit,
			MaxA1cValue:         proto.MaxA1cValue,
			RequireRecentA1c:    proto.RequireRecentA1c,
		}
	}
	return out
}

// MetricsFromCounts derives the dashboard numbers from the pending-queue tallies
// and the mismatch count over the historical collection.
func MetricsFromCounts(pending queue.Counts, mismatches int) MetricsResponse {
	resp := MetricsResponse{
		TotalPending: pending.All,
		AIApproved:   pending.Approved,
		AIDenied:     pending.Denied,
		Mismatches:   mismatches,
	}
	if pending.All > 0 {
		resp.ApprovedPct = int(float64(pending.Approved)/float64(pending.All)*100 + 0.5)
		resp.DeniedPct = int(float64(pending.Denied)/float64(pending.All)*100 + 0.5)
	}
	return resp
}
