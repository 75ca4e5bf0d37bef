// Package model defines the common compliance data model shared by the source
// adapters, normalizer, scoring engine, deadline tracker, and dashboard
// aggregator. Every regulatory finding, whatever its origin, is normalized
// into an Issue; everything downstream is vocabulary-agnostic.
package model

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Category identifies the regulatory domain an issue belongs to.
type Category string

const (
	CategoryHousing    Category = "HOUSING"    // HPD housing maintenance violations
	CategoryPermit     Category = "PERMIT"     // DOB job filings and permits
	CategorySanitation Category = "SANITATION" // DSNY collection and violations
	CategoryEmissions  Category = "EMISSIONS"  // LL97 carbon emissions filings
	CategoryFire       Category = "FIRE"       // FDNY inspections (future source)
	CategoryWater      Category = "WATER"      // DEP water compliance (future source)
)

// CoreCategories are the categories with a wired source adapter.
func CoreCategories() []Category {
	return []Category{CategoryHousing, CategoryPermit, CategorySanitation, CategoryEmissions}
}

// Severity ranks how hazardous a finding is.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Weight returns the scoring weight for the severity.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 0.5
	}
	return 0
}

// Status is the normalized lifecycle state of an issue.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusPending  Status = "PENDING" // remediation submitted, awaiting certification
	StatusResolved Status = "RESOLVED"
	StatusExpired  Status = "EXPIRED"
)

// SourceRef points back to the raw source record for drill-through. It is
// owned by the source adapter that created it and never mutated afterwards.
type SourceRef struct {
	Source   string `json:"source"`    // e.g. "HPD", "DOB", "DSNY", "LL97"
	NativeID string `json:"native_id"` // record identity within the source
	RawURL   string `json:"raw_url,omitempty"`
}

// Issue is one regulatory finding normalized into the common model.
type Issue struct {
	ID            string     `json:"id"`
	BuildingID    string     `json:"building_id"`
	Category      Category   `json:"category"`
	Severity      Severity   `json:"severity"`
	Status        Status     `json:"status"`
	IssuedDate    time.Time  `json:"issued_date"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	ResolvedDate  *time.Time `json:"resolved_date,omitempty"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	PenaltyAmount float64    `json:"penalty_amount,omitempty"` // outstanding USD, raw numeric
	SourceRef     SourceRef  `json:"source_ref"`
}

// Open reports whether the issue still counts toward open-severity weight.
func (i Issue) Open() bool {
	return i.Status == StatusOpen || i.Status == StatusPending
}

// Overdue reports whether the issue is past due and still OPEN. A PENDING
// issue past its due date is not overdue: remediation may already be
// submitted and awaiting certification.
func (i Issue) Overdue(now time.Time) bool {
	return i.Status == StatusOpen && i.DueDate != nil && i.DueDate.Before(now)
}

// Deadline is a projected future obligation, derived at read time. It is
// never persisted because DaysRemaining depends on "today".
type Deadline struct {
	BuildingID    string    `json:"building_id"`
	Category      Category  `json:"category"`
	DueDate       time.Time `json:"due_date"`
	Description   string    `json:"description"`
	DaysRemaining int       `json:"days_remaining"`
	Overdue       bool      `json:"overdue"`
}

// ComplianceStatus is the grade tier derived from an overall score.
type ComplianceStatus string

const (
	StatusCompliant ComplianceStatus = "compliant" // score >= 0.90
	StatusWarning   ComplianceStatus = "warning"   // 0.70 <= score < 0.90
	StatusCritical  ComplianceStatus = "critical"  // score < 0.70
)

// Metrics aggregates compliance state for a building or a portfolio.
// Scores are in [0,1]. Degraded categories are absent from CategoryScores
// and listed separately; they are never substituted with a default score.
type Metrics struct {
	OverallScore       float64              `json:"overall_score"`
	CategoryScores     map[Category]float64 `json:"category_scores"`
	DegradedCategories []Category           `json:"degraded_categories,omitempty"`
	ActiveViolations   int                  `json:"active_violations"`
	PendingInspections int                  `json:"pending_inspections"`
	ResolvedThisMonth  int                  `json:"resolved_this_month"`
	ViolationsTrend    int                  `json:"violations_trend"`
	InspectionsTrend   int                  `json:"inspections_trend"`
	ResolvedTrend      int                  `json:"resolved_trend"`
	ComplianceCost     float64              `json:"compliance_cost"` // outstanding penalties, raw USD
}

var usd = message.NewPrinter(language.AmericanEnglish)

// FormattedComplianceCost renders the outstanding penalty total for display.
// The engine stores only the raw numeric value.
func (m Metrics) FormattedComplianceCost() string {
	return usd.Sprintf("$%.2f", m.ComplianceCost)
}

// BuildingSummary is the per-building rollup consumed by list views.
type BuildingSummary struct {
	BuildingID         string           `json:"building_id"`
	ComplianceStatus   ComplianceStatus `json:"compliance_status"`
	Score              float64          `json:"score"`
	TotalViolations    int              `json:"total_violations"`
	OpenViolations     int              `json:"open_violations"`
	ActivePermits      int              `json:"active_permits"`
	DegradedCategories []Category       `json:"degraded_categories,omitempty"`
}

// Insight is a derived advisory with a confidence in [0,1].
type Insight struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// DashboardData is the top-level aggregate returned to callers. A refresh
// produces a wholly new snapshot; nothing in it is mutated in place.
type DashboardData struct {
	SnapshotID         string              `json:"snapshot_id"`
	GeneratedAt        time.Time           `json:"generated_at"`
	Metrics            Metrics             `json:"metrics"`
	BuildingCompliance map[string]float64  `json:"building_compliance"` // buildingID -> overall score
	RecentViolations   []Issue             `json:"recent_violations"`   // most recent first, bounded
	CriticalDeadlines  []Deadline          `json:"critical_deadlines"`
	PredictiveInsights []Insight           `json:"predictive_insights"`
	Degraded           map[string][]Category `json:"degraded,omitempty"`        // buildingID -> failed categories
	FailedBuildings    map[string]string     `json:"failed_buildings,omitempty"` // buildingID -> reason
}
