// Command seed loads a demo dataset: medication protocols, patients (including
// the two fixed EMR scenarios) and pending refill requests already carrying an AI
// recommendation, ready for human review in the dashboard.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iprashantai/medrefill-mvp1/internal/emr"
	"github.com/iprashantai/medrefill-mvp1/internal/review"
	"github.com/iprashantai/medrefill-mvp1/internal/store"
)

var firstNames = []string{
	"James", "Mary", "Robert", "Patricia", "Michael", "Linda", "David", "Susan",
	"Carlos", "Elena", "Wei", "Priya", "Ahmed", "Fatima", "Oleg", "Ana",
}

var lastNames = []string{
	"Johnson", "Williams", "Brown", "Garcia", "Martinez", "Davis", "Lopez",
	"Wilson", "Anderson", "Thomas", "Nguyen", "Patel", "Kim", "Rossi",
}

type protocolSpec struct {
	class            string
	maxMonthsVisit   *int
	maxA1c           *float64
	requireRecentA1c *int
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func main() {
	baseDir, err := os.Getwd()
	if err != nil {
		logrus.Fatalf("determine working directory: %v", err)
	}

	dbPath := filepath.Join(baseDir, "data", "medrefills.db")
	if override := strings.TrimSpace(os.Getenv("MEDREFILL_DB_PATH")); override != "" {
		dbPath = override
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		logrus.Fatalf("create data directory: %v", err)
	}

	numPatients := 100
	if v := strings.TrimSpace(os.Getenv("SEED_PATIENTS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			numPatients = parsed
		}
	}
	numRequests := 250
	if v := strings.TrimSpace(os.Getenv("SEED_REQUESTS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			numRequests = parsed
		}
	}

	db, err := store.Open(dbPath, true)
	if err != nil {
		logrus.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := db.Reset(); err != nil {
		logrus.Fatalf("clear existing data: %v", err)
	}

	protocols := seedProtocols(db)
	patients := seedPatients(db, numPatients)
	approved, denied := seedRequests(db, patients, protocols, numRequests)

	logrus.WithFields(logrus.Fields{
		"patients":    len(patients),
		"protocols":   len(protocols),
		"requests":    numRequests,
		"ai_approved": approved,
		"ai_denied":   denied,
	}).Info("database seeded")
}

func seedProtocols(db *store.Database) []store.MedicationProtocol {
	specs := []protocolSpec{
		{"SGLT2 Inhibitor", intPtr(12), floatPtr(8.0), intPtr(6)},
		{"GLP-1 Agonist", intPtr(12), floatPtr(8.0), intPtr(6)},
		{"Antihypertensive (ACE/ARB)", intPtr(12), nil, nil},
		{"Antilipemic (Statin)", intPtr(12), nil, nil},
		{"Beta-Blocker", intPtr(18), nil, nil},
		{"Thyroid Hormone", intPtr(18), nil, nil},
	}

	out := make([]store.MedicationProtocol, 0, len(specs))
	for _, spec := range specs {
		proto := store.MedicationProtocol{
			MedicationClass:     spec.class,
			MaxMonthsSinceVisit: spec.maxMonthsVisit,
			MaxA1cValue:         spec.maxA1c,
			RequireRecentA1c:    spec.requireRecentA1c,
		}
		if err := db.CreateProtocol(&proto); err != nil {
			logrus.Fatalf("create protocol %s: %v", spec.class, err)
		}
		out = append(out, proto)
	}
	return out
}

func seedPatients(db *store.Database, count int) []store.Patient {
	out := make([]store.Patient, 0, count+2)

	// The two fixed EMR scenarios come first so the dashboard always has one
	// clear deny case and one clear approve case.
	fixtures := []store.Patient{
		{MRN: emr.MRNDenyCase, FirstName: "John", LastName: "Doe", DateOfBirth: "1975-04-10"},
		{MRN: emr.MRNApproveCase, FirstName: "Jane", LastName: "Smith", DateOfBirth: "1980-06-15"},
	}
	for i := range fixtures {
		if err := db.CreatePatient(&fixtures[i]); err != nil {
			logrus.Fatalf("create fixture patient: %v", err)
		}
		out = append(out, fixtures[i])
	}

	for i := 0; i < count; i++ {
		dob := time.Date(1940+rand.Intn(60), time.Month(1+rand.Intn(12)), 1+rand.Intn(28), 0, 0, 0, 0, time.UTC)
		patient := store.Patient{
			MRN:         fmt.Sprintf("%05d-%d", 10000+rand.Intn(90000), i),
			FirstName:   firstNames[rand.Intn(len(firstNames))],
			LastName:    lastNames[rand.Intn(len(lastNames))],
			DateOfBirth: dob.Format("2006-01-02"),
		}
		if err := db.CreatePatient(&patient); err != nil {
			logrus.Fatalf("create patient: %v", err)
		}
		out = append(out, patient)
	}
	return out
}

// seedRequests creates pending requests with a canned AI recommendation derived
// from the patient's EMR scenario, standing in for the upstream AI pipeline.
func seedRequests(db *store.Database, patients []store.Patient, protocols []store.MedicationProtocol, count int) (approved, denied int) {
	for i := 0; i < count; i++ {
		patient := patients[rand.Intn(len(patients))]
		proto := protocols[rand.Intn(len(protocols))]

		decision, reason, confidence := cannedAIReview(patient.MRN, proto.MedicationClass)
		aiDecision := string(decision)
		req := store.RefillRequest{
			PatientID:    patient.ID,
			ProtocolID:   proto.ID,
			Status:       string(review.StatusPendingReview),
			AIDecision:   &aiDecision,
			AIReason:     &reason,
			AIConfidence: &confidence,
			CreatedAt:    time.Now().Add(-time.Duration(rand.Intn(14*24)) * time.Hour),
		}
		if err := db.CreateRequest(&req); err != nil {
			logrus.Fatalf("create refill request: %v", err)
		}
		if decision == review.DecisionApprove {
			approved++
		} else {
			denied++
		}
	}
	return approved, denied
}

func cannedAIReview(mrn, medicationClass string) (review.Decision, string, float64) {
	switch mrn {
	case emr.MRNDenyCase:
		return review.DecisionDeny,
			fmt.Sprintf("Last office visit exceeds the %s protocol window; refill requires an updated visit.", medicationClass),
			92
	case emr.MRNApproveCase:
		return review.DecisionApprove,
			fmt.Sprintf("Recent visit and labs within limits for %s; protocol criteria met.", medicationClass),
			95
	}

	if rand.Intn(100) < 70 {
		return review.DecisionApprove,
			fmt.Sprintf("Visit and lab history satisfy the %s refill protocol.", medicationClass),
			float64(70 + rand.Intn(28))
	}
	return review.DecisionDeny,
		fmt.Sprintf("One or more %s protocol checks could not be confirmed from the EMR record.", medicationClass),
		float64(60 + rand.Intn(35))
}
