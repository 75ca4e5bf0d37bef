// Package dashboard orchestrates the source adapters, normalizer, scoring
// engine, and deadline tracker across a set of buildings and assembles the
// single DashboardData snapshot the UI layer renders. Per-building work runs
// independently: one building's source failure degrades that building, never
// the batch.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsforge/buildingcompliance/pkg/compliance/deadline"
	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
	"github.com/opsforge/buildingcompliance/pkg/compliance/normalize"
	"github.com/opsforge/buildingcompliance/pkg/compliance/refresh"
	"github.com/opsforge/buildingcompliance/pkg/compliance/scoring"
	"github.com/opsforge/buildingcompliance/pkg/compliance/snapshot"
	"github.com/opsforge/buildingcompliance/pkg/compliance/sources"
	"github.com/opsforge/buildingcompliance/pkg/observability"
)

// Fetcher supplies one category payload per (building, category), normally
// the refresh controller.
type Fetcher interface {
	Get(ctx context.Context, key refresh.Key) (refresh.Payload, error)
}

// Aggregator builds dashboard snapshots.
type Aggregator struct {
	fetcher     Fetcher
	scorer      *scoring.Engine
	tracker     *deadline.Tracker
	snapshots   snapshot.Store
	obs         *observability.Provider
	concurrency int
	recentLimit int
	clock       func() time.Time
	logger      *slog.Logger
}

// New creates an aggregator.
func New(fetcher Fetcher, scorer *scoring.Engine, tracker *deadline.Tracker, snapshots snapshot.Store) *Aggregator {
	return &Aggregator{
		fetcher:     fetcher,
		scorer:      scorer,
		tracker:     tracker,
		snapshots:   snapshots,
		concurrency: 4,
		recentLimit: 20,
		clock:       time.Now,
		logger:      slog.Default().With("component", "dashboard"),
	}
}

// WithClock overrides the clock for testing.
func (a *Aggregator) WithClock(clock func() time.Time) *Aggregator {
	a.clock = clock
	return a
}

// WithConcurrency bounds the building fan-out.
func (a *Aggregator) WithConcurrency(n int) *Aggregator {
	if n > 0 {
		a.concurrency = n
	}
	return a
}

// WithRecentLimit bounds the recent-violations list.
func (a *Aggregator) WithRecentLimit(n int) *Aggregator {
	if n > 0 {
		a.recentLimit = n
	}
	return a
}

// WithObservability attaches tracing.
func (a *Aggregator) WithObservability(obs *observability.Provider) *Aggregator {
	a.obs = obs
	return a
}

// BuildingResult is the joined outcome of one building's four category
// fetches. Degraded lists the categories whose source failed; Err is set
// only when the building itself could not be processed.
type BuildingResult struct {
	BuildingID string
	Issues     []model.Issue
	Permits    []sources.Permit
	Schedule   *sources.CollectionSchedule
	Filings    []sources.EmissionsFiling
	Degraded   []model.Category
	Err        error
}

// FetchBuilding fans out the four category fetches for one building and
// joins them. The join succeeds even when a subset of categories fail; the
// normalized output is a pure function of the completed set, whatever the
// completion order.
func (a *Aggregator) FetchBuilding(ctx context.Context, buildingID string) BuildingResult {
	categories := model.CoreCategories()

	type catResult struct {
		category model.Category
		payload  refresh.Payload
		err      error
	}
	results := make([]catResult, len(categories))

	var wg sync.WaitGroup
	for i, category := range categories {
		wg.Add(1)
		go func(i int, category model.Category) {
			defer wg.Done()
			payload, err := a.fetcher.Get(ctx, refresh.Key{BuildingID: buildingID, Category: category})
			results[i] = catResult{category: category, payload: payload, err: err}
		}(i, category)
	}
	wg.Wait()

	res := BuildingResult{BuildingID: buildingID}
	sets := make([][]model.Issue, 0, len(categories))
	for _, r := range results {
		if r.err != nil {
			var notFound *model.BuildingNotFoundError
			if errors.As(r.err, &notFound) {
				res.Err = r.err
				return res
			}
			a.logger.Warn("category degraded", "building", buildingID, "category", r.category, "err", r.err)
			res.Degraded = append(res.Degraded, r.category)
			continue
		}
		sets = append(sets, r.payload.Issues)
		if len(r.payload.Permits) > 0 {
			res.Permits = r.payload.Permits
		}
		if r.payload.Schedule != nil {
			res.Schedule = r.payload.Schedule
		}
		if len(r.payload.Filings) > 0 {
			res.Filings = r.payload.Filings
		}
	}
	res.Issues = normalize.Merge(sets...)
	return res
}

// Load produces one dashboard snapshot for the building set. Partial results
// are valid results: failed buildings and degraded categories are annotated,
// and trend deltas fall back to zero when no prior snapshot exists.
func (a *Aggregator) Load(ctx context.Context, buildingIDs []string) (*model.DashboardData, error) {
	ctx, span := a.obs.Tracer().Start(ctx, "dashboard.load")
	defer span.End()

	results := make([]BuildingResult, len(buildingIDs))
	sem := make(chan struct{}, a.concurrency)
	var wg sync.WaitGroup
	for i, id := range buildingIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = a.FetchBuilding(ctx, id)
		}(i, id)
	}
	wg.Wait()

	now := a.clock()
	data := &model.DashboardData{
		SnapshotID:         uuid.NewString(),
		GeneratedAt:        now,
		BuildingCompliance: make(map[string]float64),
	}

	var allIssues []model.Issue
	var deadlines []model.Deadline
	categoryTotals := make(map[model.Category]float64)
	categoryCounts := make(map[model.Category]int)
	degradedSet := make(map[model.Category]bool)
	var overallSum float64
	var scored int

	for _, r := range results {
		if r.Err != nil {
			if data.FailedBuildings == nil {
				data.FailedBuildings = make(map[string]string)
			}
			data.FailedBuildings[r.BuildingID] = r.Err.Error()
			continue
		}

		score := a.scorer.Score(r.Issues, r.Degraded)
		data.BuildingCompliance[r.BuildingID] = score.Overall
		overallSum += score.Overall
		scored++

		for category, s := range score.ByCategory {
			categoryTotals[category] += s
			categoryCounts[category]++
		}
		if len(r.Degraded) > 0 {
			if data.Degraded == nil {
				data.Degraded = make(map[string][]model.Category)
			}
			sortCategories(r.Degraded)
			data.Degraded[r.BuildingID] = r.Degraded
			for _, c := range r.Degraded {
				degradedSet[c] = true
			}
		}

		allIssues = append(allIssues, r.Issues...)
		deadlines = append(deadlines, a.tracker.FromIssues(r.Issues)...)
		if r.Schedule != nil {
			deadlines = append(deadlines, a.tracker.FromSchedule(*r.Schedule)...)
		}
		// A filing history means the building reports under LL97; an
		// unfiled report stays overdue past May 1.
		if len(r.Filings) > 0 {
			deadlines = append(deadlines, a.tracker.FromFilings(r.BuildingID, r.Filings)...)
		}
	}

	data.Metrics = a.buildMetrics(now, allIssues, categoryTotals, categoryCounts, degradedSet, overallSum, scored)
	data.CriticalDeadlines = sortDeadlines(a.tracker.Critical(deadlines))
	data.RecentViolations = recentIssues(allIssues, a.recentLimit)
	a.applyTrends(ctx, buildingIDs, data)
	data.PredictiveInsights = buildInsights(data)

	return data, nil
}

// Summary produces the per-building rollup. Only a building that cannot be
// resolved at all yields an error; degraded categories are annotated.
func (a *Aggregator) Summary(ctx context.Context, buildingID string) (*model.BuildingSummary, error) {
	r := a.FetchBuilding(ctx, buildingID)
	if r.Err != nil {
		return nil, r.Err
	}

	score := a.scorer.Score(r.Issues, r.Degraded)
	summary := &model.BuildingSummary{
		BuildingID:         buildingID,
		Score:              score.Overall,
		ComplianceStatus:   a.scorer.Grade(score.Overall),
		TotalViolations:    len(r.Issues),
		DegradedCategories: r.Degraded,
	}
	for _, issue := range r.Issues {
		if issue.Open() {
			summary.OpenViolations++
		}
	}
	for _, p := range r.Permits {
		if p.Active {
			summary.ActivePermits++
		}
	}
	return summary, nil
}

func (a *Aggregator) buildMetrics(
	now time.Time,
	issues []model.Issue,
	categoryTotals map[model.Category]float64,
	categoryCounts map[model.Category]int,
	degradedSet map[model.Category]bool,
	overallSum float64,
	scored int,
) model.Metrics {
	m := model.Metrics{CategoryScores: make(map[model.Category]float64)}
	for category, total := range categoryTotals {
		m.CategoryScores[category] = total / float64(categoryCounts[category])
	}
	for category := range degradedSet {
		m.DegradedCategories = append(m.DegradedCategories, category)
	}
	sortCategories(m.DegradedCategories)
	if scored > 0 {
		m.OverallScore = overallSum / float64(scored)
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for _, issue := range issues {
		switch issue.Status {
		case model.StatusOpen:
			m.ActiveViolations++
			m.ComplianceCost += issue.PenaltyAmount
		case model.StatusPending:
			m.PendingInspections++
			m.ComplianceCost += issue.PenaltyAmount
		case model.StatusResolved:
			if issue.ResolvedDate != nil && !issue.ResolvedDate.Before(monthStart) {
				m.ResolvedThisMonth++
			}
		}
	}
	return m
}

// applyTrends compares the new snapshot against the stored one for the same
// building set and persists the new counts.
func (a *Aggregator) applyTrends(ctx context.Context, buildingIDs []string, data *model.DashboardData) {
	if a.snapshots == nil {
		return
	}
	setHash := snapshot.SetHash(buildingIDs)

	prior, err := a.snapshots.Latest(ctx, setHash)
	if err != nil {
		a.logger.Warn("snapshot load failed", "set", setHash, "err", err)
	} else if prior != nil {
		data.Metrics.ViolationsTrend = data.Metrics.ActiveViolations - prior.ActiveViolations
		data.Metrics.InspectionsTrend = data.Metrics.PendingInspections - prior.PendingInspections
		data.Metrics.ResolvedTrend = data.Metrics.ResolvedThisMonth - prior.ResolvedThisMonth
	}

	err = a.snapshots.Save(ctx, snapshot.Record{
		SnapshotID:         data.SnapshotID,
		BuildingSetHash:    setHash,
		TakenAt:            data.GeneratedAt,
		OverallScore:       data.Metrics.OverallScore,
		ActiveViolations:   data.Metrics.ActiveViolations,
		PendingInspections: data.Metrics.PendingInspections,
		ResolvedThisMonth:  data.Metrics.ResolvedThisMonth,
	})
	if err != nil {
		a.logger.Warn("snapshot save failed", "set", setHash, "err", err)
	}
}

// buildInsights derives advisory text from the finished snapshot. The rules
// are deterministic; confidence reflects how directly the underlying counts
// support the advice.
func buildInsights(data *model.DashboardData) []model.Insight {
	var insights []model.Insight

	var openCritical int
	for _, issue := range data.RecentViolations {
		if issue.Severity == model.SeverityCritical && issue.Open() {
			openCritical++
		}
	}
	var overdue int
	for _, d := range data.CriticalDeadlines {
		if d.Overdue {
			overdue++
		}
	}

	if openCritical > 0 {
		insights = append(insights, model.Insight{
			Text:       fmt.Sprintf("%d immediately hazardous violations are open; schedule remediation first", openCritical),
			Confidence: 0.9,
		})
	}
	if overdue > 0 {
		insights = append(insights, model.Insight{
			Text:       fmt.Sprintf("%d compliance deadlines are past due; penalties accrue until certified", overdue),
			Confidence: 0.85,
		})
	}
	if data.Metrics.ComplianceCost > 0 {
		insights = append(insights, model.Insight{
			Text:       fmt.Sprintf("outstanding penalty exposure is %s across the portfolio", data.Metrics.FormattedComplianceCost()),
			Confidence: 0.8,
		})
	}
	switch {
	case data.Metrics.ViolationsTrend > 0:
		insights = append(insights, model.Insight{
			Text:       fmt.Sprintf("open violations are up %d since the last refresh", data.Metrics.ViolationsTrend),
			Confidence: 0.6,
		})
	case data.Metrics.ViolationsTrend < 0:
		insights = append(insights, model.Insight{
			Text:       fmt.Sprintf("open violations are down %d since the last refresh", -data.Metrics.ViolationsTrend),
			Confidence: 0.7,
		})
	}
	return insights
}

// recentIssues returns the most recent issues, bounded, most recent first.
func recentIssues(issues []model.Issue, limit int) []model.Issue {
	out := make([]model.Issue, len(issues))
	copy(out, issues)
	normalize.Sort(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortCategories(cs []model.Category) {
	sort.Slice(cs, func(i, j int) bool { return cs[i] < cs[j] })
}

func sortDeadlines(ds []model.Deadline) []model.Deadline {
	sort.SliceStable(ds, func(i, j int) bool {
		if !ds[i].DueDate.Equal(ds[j].DueDate) {
			return ds[i].DueDate.Before(ds[j].DueDate)
		}
		return ds[i].BuildingID < ds[j].BuildingID
	})
	return ds
}
