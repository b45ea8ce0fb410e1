package review

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrAlreadyReviewed signals an attempt to decide a request that already carries a
// final decision. Reviewed is terminal; the caller is expected to prevent this, so
// hitting it indicates an integrity problem (or a lost race) rather than user error.
var ErrAlreadyReviewed = errors.New("refill request already reviewed")

// SubmitDecision computes the reviewed state for a pending request without mutating
// the input. Persisting the result is the store's job; the returned copy carries the
// final decision, reviewer and timestamp with status flipped to Reviewed. The AI
// fields pass through untouched.
func SubmitDecision(req RefillRequest, decision Decision, reviewerID string, now time.Time) (RefillRequest, error) {
	if req.Status != StatusPendingReview || req.FinalDecision != nil {
		return RefillRequest{}, fmt.Errorf("request %d: %w", req.ID, ErrAlreadyReviewed)
	}
	if _, err := ParseDecision(string(decision)); err != nil {
		return RefillRequest{}, err
	}

	updated := req
	updated.FinalDecision = &decision
	updated.ReviewedBy = &reviewerID
	updated.ReviewedAt = &now
	updated.Status = StatusReviewed
	updated.UpdatedAt = now
	return updated, nil
}

// IsMismatch reports whether the clinician overruled the AI recommendation. A request
// without a final decision is never a mismatch, regardless of the AI verdict.
func IsMismatch(req RefillRequest) bool {
	if req.AIDecision == nil || req.FinalDecision == nil {
		return false
	}
	return *req.AIDecision != *req.FinalDecision
}

// DisplayDecision renders the AI recommendation for the queue and detail views,
// substituting "Pending" while the upstream pipeline has not produced one.
func DisplayDecision(req RefillRequest) string {
	if req.AIDecision == nil {
		return "Pending"
	}
	return string(*req.AIDecision)
}

// DisplayConfidence renders the AI confidence as a whole percentage, or "N/A" when
// the upstream pipeline supplied none.
func DisplayConfidence(req RefillRequest) string {
	if req.AIConfidence == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d%%", int(math.Round(*req.AIConfidence)))
}
