//go:build property
// +build property

// Package scoring_test contains property-based tests for score bounds,
// monotonicity, and merge determinism.
package scoring_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
	"github.com/opsforge/buildingcompliance/pkg/compliance/normalize"
	"github.com/opsforge/buildingcompliance/pkg/compliance/scoring"
)

var severities = []model.Severity{
	model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow,
}

var statuses = []model.Status{
	model.StatusOpen, model.StatusPending, model.StatusResolved, model.StatusExpired,
}

func issuesFrom(seeds []int) []model.Issue {
	cats := model.CoreCategories()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Issue, 0, len(seeds))
	for i, s := range seeds {
		if s < 0 {
			s = -s
		}
		out = append(out, model.Issue{
			ID:         string(rune('a'+i%26)) + string(rune('a'+s%26)),
			Category:   cats[s%len(cats)],
			Severity:   severities[(s/4)%len(severities)],
			Status:     statuses[(s/16)%len(statuses)],
			IssuedDate: base.AddDate(0, 0, s%365),
			SourceRef:  model.SourceRef{NativeID: string(rune('0' + s%10))},
		})
	}
	return out
}

// TestScoreBounds verifies every score stays in [0,1] for any issue mix.
func TestScoreBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("overall and category scores stay in [0,1]", prop.ForAll(
		func(seeds []int) bool {
			engine := scoring.New(scoring.DefaultConfig())
			res := engine.Score(issuesFrom(seeds), nil)
			if res.Overall < 0 || res.Overall > 1 {
				return false
			}
			for _, s := range res.ByCategory {
				if s < 0 || s > 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int()),
	))

	properties.TestingRun(t)
}

// TestScoreMonotone verifies adding an open issue never raises the score.
func TestScoreMonotone(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("adding an open issue never raises the overall score", prop.ForAll(
		func(seeds []int, extra int) bool {
			engine := scoring.New(scoring.DefaultConfig())
			issues := issuesFrom(seeds)
			before := engine.Score(issues, nil)

			if extra < 0 {
				extra = -extra
			}
			added := model.Issue{
				Category: model.CoreCategories()[extra%4],
				Severity: severities[extra%len(severities)],
				Status:   model.StatusOpen,
			}
			after := engine.Score(append(issues, added), nil)
			return after.Overall <= before.Overall
		},
		gen.SliceOf(gen.Int()),
		gen.Int(),
	))

	properties.TestingRun(t)
}

// TestMergeDeterminism verifies the normalizer is a pure function of the set.
func TestMergeDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("merge output is independent of input split", prop.ForAll(
		func(seeds []int, split int) bool {
			issues := issuesFrom(seeds)
			if len(issues) == 0 {
				return true
			}
			if split < 0 {
				split = -split
			}
			cut := split % len(issues)
			whole := normalize.Merge(issues)
			parts := normalize.Merge(issues[:cut], issues[cut:])
			if len(whole) != len(parts) {
				return false
			}
			for i := range whole {
				if whole[i].ID != parts[i].ID {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int()),
		gen.Int(),
	))

	properties.TestingRun(t)
}
