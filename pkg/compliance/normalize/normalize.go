// Package normalize merges per-adapter issue sequences into one
// deduplicated, deterministically ordered collection. It is a pure function
// of the completed fetch set: adapter completion order never changes the
// output.
package normalize

import (
	"sort"

	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
)

type dedupeKey struct {
	category model.Category
	nativeID string
}

// Merge deduplicates the given issue sequences by (category, native record
// ID) and orders the result by issued date descending, ties broken by issue
// ID ascending. Re-feeding the same sequence is a no-op: Merge(Merge(x)) ==
// Merge(x).
func Merge(sets ...[]model.Issue) []model.Issue {
	seen := make(map[dedupeKey]bool)
	var out []model.Issue
	for _, set := range sets {
		for _, issue := range set {
			k := dedupeKey{category: issue.Category, nativeID: issue.SourceRef.NativeID}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, issue)
		}
	}
	Sort(out)
	return out
}

// Sort orders issues by issued date descending, ties broken by ID ascending.
func Sort(issues []model.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if !issues[i].IssuedDate.Equal(issues[j].IssuedDate) {
			return issues[i].IssuedDate.After(issues[j].IssuedDate)
		}
		return issues[i].ID < issues[j].ID
	})
}
