package store

import (
	"errors"
	"testing"
	"time"

	"github.com/iprashantai/medrefill-mvp1/internal/review"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open("file::memory:?cache=shared", true)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Reset()
		_ = db.Close()
	})
	if err := db.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	return db
}

func seedRequest(t *testing.T, db *Database) *RefillRequest {
	t.Helper()
	patient := Patient{MRN: "12345", FirstName: "John", LastName: "Doe", DateOfBirth: "1975-04-10"}
	if err := db.CreatePatient(&patient); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	months := 12
	proto := MedicationProtocol{MedicationClass: "SGLT2 Inhibitor", MaxMonthsSinceVisit: &months}
	if err := db.CreateProtocol(&proto); err != nil {
		t.Fatalf("create protocol: %v", err)
	}

	ai := string(review.DecisionApprove)
	confidence := 95.0
	req := RefillRequest{
		PatientID:    patient.ID,
		ProtocolID:   proto.ID,
		AIDecision:   &ai,
		AIConfidence: &confidence,
	}
	if err := db.CreateRequest(&req); err != nil {
		t.Fatalf("create request: %v", err)
	}
	return &req
}

func TestApplyReview(t *testing.T) {
	db := openTestDB(t)
	req := seedRequest(t, db)

	reviewedAt := time.Now().UTC()
	updated, err := db.ApplyReview(req.ID, review.DecisionDeny, "u1", reviewedAt)
	if err != nil {
		t.Fatalf("apply review: %v", err)
	}
	if updated.Status != string(review.StatusReviewed) {
		t.Fatalf("expected status reviewed got %q", updated.Status)
	}
	if updated.FinalDecision == nil || *updated.FinalDecision != string(review.DecisionDeny) {
		t.Fatalf("expected final decision Deny got %v", updated.FinalDecision)
	}
	if updated.ReviewedBy == nil || *updated.ReviewedBy != "u1" {
		t.Fatalf("expected reviewer u1 got %v", updated.ReviewedBy)
	}
	if updated.AIDecision == nil || *updated.AIDecision != string(review.DecisionApprove) {
		t.Fatal("ai decision must survive the review")
	}
}

func TestApplyReviewConflict(t *testing.T) {
	db := openTestDB(t)
	req := seedRequest(t, db)

	if _, err := db.ApplyReview(req.ID, review.DecisionApprove, "u1", time.Now()); err != nil {
		t.Fatalf("first review: %v", err)
	}
	_, err := db.ApplyReview(req.ID, review.DecisionDeny, "u2", time.Now())
	if !errors.Is(err, review.ErrAlreadyReviewed) {
		t.Fatalf("expected ErrAlreadyReviewed got %v", err)
	}

	// loser must not have changed the row
	row, err := db.GetRequest(req.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if row.FinalDecision == nil || *row.FinalDecision != string(review.DecisionApprove) {
		t.Fatalf("first decision must stand, got %v", row.FinalDecision)
	}
	if row.ReviewedBy == nil || *row.ReviewedBy != "u1" {
		t.Fatalf("first reviewer must stand, got %v", row.ReviewedBy)
	}
}

func TestListPendingExcludesReviewed(t *testing.T) {
	db := openTestDB(t)
	first := seedRequest(t, db)

	ai := string(review.DecisionDeny)
	second := RefillRequest{PatientID: first.PatientID, ProtocolID: first.ProtocolID, AIDecision: &ai}
	if err := db.CreateRequest(&second); err != nil {
		t.Fatalf("create second request: %v", err)
	}

	if _, err := db.ApplyReview(first.ID, review.DecisionApprove, "u1", time.Now()); err != nil {
		t.Fatalf("apply review: %v", err)
	}

	pending, err := db.ListPending()
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Fatalf("expected only request %d pending, got %+v", second.ID, pending)
	}

	all, err := db.ListAll()
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("reviewed requests must stay in the historical collection, got %d", len(all))
	}
}
