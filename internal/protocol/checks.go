// Package protocol evaluates a medication protocol's refill rules against EMR
// clinical data, producing the pass/fail checklist shown beside the AI rationale.
package protocol

import (
	"fmt"
	"time"

	"github.com/iprashantai/medrefill-mvp1/internal/review"
	"github.com/iprashantai/medrefill-mvp1/internal/store"
)

const dateLayout = "2006-01-02"

// daysPerMonth matches the recency arithmetic the protocols were authored against.
const daysPerMonth = 30.4

// BuildChecks runs every rule the protocol defines against the clinical data. Rules
// with a nil limit are skipped; missing lab data fails the rule that needs it.
func BuildChecks(proto *store.MedicationProtocol, clinical review.ClinicalData, today time.Time) []review.ProtocolCheck {
	var checks []review.ProtocolCheck
	if proto == nil {
		return checks
	}

	if proto.MaxMonthsSinceVisit != nil {
		checks = append(checks, checkLastVisit(*proto.MaxMonthsSinceVisit, clinical.LastVisitDate, today))
	}
	if proto.MaxA1cValue != nil {
		checks = append(checks, checkA1cValue(*proto.MaxA1cValue, clinical.Labs.A1c))
	}
	if proto.RequireRecentA1c != nil {
		checks = append(checks, checkA1cRecency(*proto.RequireRecentA1c, clinical.Labs.A1c, today))
	}
	return checks
}

func checkLastVisit(maxMonths int, lastVisitDate string, today time.Time) review.ProtocolCheck {
	check := review.ProtocolCheck{
		Requirement: fmt.Sprintf("Last Visit < %dmo", maxMonths),
	}
	months, ok := monthsSince(lastVisitDate, today)
	if !ok {
		check.Observed = "No visit data"
		return check
	}
	check.Observed = fmt.Sprintf("%.1f months", months)
	check.Passed = months <= float64(maxMonths)
	return check
}

func checkA1cValue(maxValue float64, a1c *review.LabResult) review.ProtocolCheck {
	check := review.ProtocolCheck{
		Requirement: fmt.Sprintf("A1c < %.1f", maxValue),
	}
	if a1c == nil {
		check.Observed = "No A1c data"
		return check
	}
	check.Observed = fmt.Sprintf("%.1f", a1c.Value)
	check.Passed = a1c.Value <= maxValue
	return check
}

func checkA1cRecency(withinMonths int, a1c *review.LabResult, today time.Time) review.ProtocolCheck {
	check := review.ProtocolCheck{
		Requirement: fmt.Sprintf("A1c within %dmo", withinMonths),
	}
	if a1c == nil {
		check.Observed = "No A1c date"
		return check
	}
	months, ok := monthsSince(a1c.Date, today)
	if !ok {
		check.Observed = "No A1c date"
		return check
	}
	check.Observed = fmt.Sprintf("%.1f months ago", months)
	check.Passed = months <= float64(withinMonths)
	return check
}

func monthsSince(date string, today time.Time) (float64, bool) {
	if date == "" {
		return 0, false
	}
	parsed, err := time.Parse(dateLayout, date)
	if err != nil {
		return 0, false
	}
	return today.Sub(parsed).Hours() / 24 / daysPerMonth, true
}
