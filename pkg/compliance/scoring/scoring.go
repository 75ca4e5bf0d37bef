// Package scoring computes category and overall compliance scores from
// normalized issue sets. Scores live in [0,1]; grade tiers are a pure
// function of the score so they can be tested in isolation.
package scoring

import (
	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
)

// Config holds the scoring tables. Distinct categories see very different
// issue volumes, so each category normalizes its weighted open severity
// against its own constant rather than a raw count.
type Config struct {
	// CategoryWeights weight each category's contribution to the overall
	// score. Housing and fire outweigh sanitation.
	CategoryWeights map[model.Category]float64 `yaml:"category_weights"`

	// MaxWeightedSeverity is the per-category normalization constant: the
	// weighted open severity at which the category score bottoms out at 0.
	MaxWeightedSeverity map[model.Category]float64 `yaml:"max_weighted_severity"`

	// Grade thresholds. Score >= CompliantThreshold is compliant;
	// >= WarningThreshold is warning; below is critical.
	CompliantThreshold float64 `yaml:"compliant_threshold"`
	WarningThreshold   float64 `yaml:"warning_threshold"`
}

// DefaultConfig returns the standard scoring tables.
func DefaultConfig() Config {
	return Config{
		CategoryWeights: map[model.Category]float64{
			model.CategoryHousing:    0.30,
			model.CategoryFire:       0.20,
			model.CategoryPermit:     0.15,
			model.CategoryEmissions:  0.15,
			model.CategoryWater:      0.10,
			model.CategorySanitation: 0.10,
		},
		MaxWeightedSeverity: map[model.Category]float64{
			model.CategoryHousing:    24, // six open class C violations zero the category
			model.CategoryPermit:     12,
			model.CategorySanitation: 8,
			model.CategoryEmissions:  8,
			model.CategoryFire:       16,
			model.CategoryWater:      8,
		},
		CompliantThreshold: 0.90,
		WarningThreshold:   0.70,
	}
}

// Result is the scored outcome for one building.
type Result struct {
	Overall    float64
	ByCategory map[model.Category]float64
	Degraded   []model.Category
}

// Engine scores normalized issue sets against a Config.
type Engine struct {
	cfg Config
}

// New creates a scoring engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// CategoryScore computes one category's score from the open issues in it:
// 1 - weightedOpen/maxWeighted, clamped to [0,1]. Resolved and expired
// issues contribute nothing.
func (e *Engine) CategoryScore(category model.Category, issues []model.Issue) float64 {
	maxWeighted := e.cfg.MaxWeightedSeverity[category]
	if maxWeighted <= 0 {
		return 1
	}

	var weighted float64
	for _, issue := range issues {
		if issue.Category != category || !issue.Open() {
			continue
		}
		weighted += issue.Severity.Weight()
	}
	return clamp01(1 - weighted/maxWeighted)
}

// Score computes the per-category and overall scores for a building. Degraded
// categories (failed source adapters) are excluded from ByCategory — never
// substituted with a default — and the overall score is a weighted mean over
// the remaining categories with re-normalized weights.
func (e *Engine) Score(issues []model.Issue, degraded []model.Category) Result {
	degradedSet := make(map[model.Category]bool, len(degraded))
	for _, c := range degraded {
		degradedSet[c] = true
	}

	res := Result{
		ByCategory: make(map[model.Category]float64),
		Degraded:   degraded,
	}

	var weightedSum, totalWeight float64
	for _, category := range model.CoreCategories() {
		if degradedSet[category] {
			continue
		}
		score := e.CategoryScore(category, issues)
		res.ByCategory[category] = score

		w := e.cfg.CategoryWeights[category]
		if w <= 0 {
			w = 1
		}
		weightedSum += score * w
		totalWeight += w
	}

	if totalWeight > 0 {
		res.Overall = clamp01(weightedSum / totalWeight)
	}
	return res
}

// Grade maps a score to its compliance tier. Pure function of the score.
func (e *Engine) Grade(score float64) model.ComplianceStatus {
	switch {
	case score >= e.cfg.CompliantThreshold:
		return model.StatusCompliant
	case score >= e.cfg.WarningThreshold:
		return model.StatusWarning
	default:
		return model.StatusCritical
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
