// Package queue derives the categorized, searchable, sorted views the review
// dashboard consumes from a raw refill-request collection. Every function here is
// pure: no I/O, no hidden state, same output for the same input.
package queue

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/iprashantai/medrefill-mvp1/internal/review"
)

// Category selects one of the dashboard's queue tabs.
type Category string

const (
	CategoryAll        Category = "all"
	CategoryApproved   Category = "approved"
	CategoryDenied     Category = "denied"
	CategoryMismatches Category = "mismatches"
)

// SortKey selects the queue table's sort column.
type SortKey string

const (
	SortByName       SortKey = "name"
	SortByMedication SortKey = "medication"
	SortByDecision   SortKey = "decision"
	SortByDate       SortKey = "date"
)

// Counts holds the per-category tallies shown on the filter tabs. Approved, Denied
// and Mismatches are independent tallies over the full collection, not a partition
// of All.
type Counts struct {
	All        int `json:"all"`
	Approved   int `json:"approved"`
	Denied     int `json:"denied"`
	Mismatches int `json:"mismatches"`
}

// Options are the inputs the projection pipeline is keyed by.
type Options struct {
	Category Category
	Query    string
	SortKey  SortKey
}

// newCollator builds the locale-aware comparator for name/medication ordering.
// Collators are not safe for concurrent use, so each Sort call gets its own.
func newCollator() *collate.Collator {
	return collate.New(language.English, collate.Loose)
}

// Classify tallies the collection for the filter tabs. An empty collection yields
// all-zero counts.
func Classify(requests []review.RefillRequest) Counts {
	counts := Counts{All: len(requests)}
	for _, r := range requests {
		if r.AIDecision != nil {
			switch *r.AIDecision {
			case review.DecisionApprove:
				counts.Approved++
			case review.DecisionDeny:
				counts.Denied++
			}
		}
		if review.IsMismatch(r) {
			counts.Mismatches++
		}
	}
	return counts
}

// Filter keeps the requests matching the category. CategoryAll is the identity.
func Filter(requests []review.RefillRequest, category Category) []review.RefillRequest {
	if category == CategoryAll || category == "" {
		return requests
	}
	out := make([]review.RefillRequest, 0, len(requests))
	for _, r := range requests {
		switch category {
		case CategoryApproved:
			if r.AIDecision != nil && *r.AIDecision == review.DecisionApprove {
				out = append(out, r)
			}
		case CategoryDenied:
			if r.AIDecision != nil && *r.AIDecision == review.DecisionDeny {
				out = append(out, r)
			}
		case CategoryMismatches:
			if review.IsMismatch(r) {
				out = append(out, r)
			}
		}
	}
	return out
}

// Search keeps the requests whose patient name, MRN or medication class contains the
// query, case-insensitively. An empty query matches everything. Requests with no
// linked patient or protocol match as if those fields were empty strings.
func Search(requests []review.RefillRequest, query string) []review.RefillRequest {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return requests
	}
	out := make([]review.RefillRequest, 0, len(requests))
	for _, r := range requests {
		name := strings.ToLower(r.Patient.FullName())
		mrn := strings.ToLower(r.MRN())
		medication := strings.ToLower(r.MedicationClass())
		if strings.Contains(name, query) || strings.Contains(mrn, query) || strings.Contains(medication, query) {
			out = append(out, r)
		}
	}
	return out
}

// Sort returns a sorted copy of the collection. Sorting is always stable: the
// decision key only moves Deny recommendations ahead of everything else and must
// preserve the relative order of ties.
func Sort(requests []review.RefillRequest, key SortKey) []review.RefillRequest {
	out := make([]review.RefillRequest, len(requests))
	copy(out, requests)

	switch key {
	case SortByName:
		c := newCollator()
		sort.SliceStable(out, func(i, j int) bool {
			return c.CompareString(out[i].Patient.FullName(), out[j].Patient.FullName()) < 0
		})
	case SortByMedication:
		c := newCollator()
		sort.SliceStable(out, func(i, j int) bool {
			return c.CompareString(out[i].MedicationClass(), out[j].MedicationClass()) < 0
		})
	case SortByDecision:
		sort.SliceStable(out, func(i, j int) bool {
			return isDeny(out[i]) && !isDeny(out[j])
		})
	case SortByDate:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out
}

func isDeny(r review.RefillRequest) bool {
	return r.AIDecision != nil && *r.AIDecision == review.DecisionDeny
}

// Project runs the full pipeline in its fixed order: filter, then search, then sort.
// Callers re-run it whenever any input changes rather than patching a previous result.
func Project(requests []review.RefillRequest, opts Options) []review.RefillRequest {
	filtered := Filter(requests, opts.Category)
	searched := Search(filtered, opts.Query)
	return Sort(searched, opts.SortKey)
}
