// Package compliance wires the source adapters, refresh controller, scoring
// engine, deadline tracker, and dashboard aggregator into the single service
// the application layer talks to.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsforge/buildingcompliance/pkg/buildings"
	"github.com/opsforge/buildingcompliance/pkg/compliance/dashboard"
	"github.com/opsforge/buildingcompliance/pkg/compliance/deadline"
	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
	"github.com/opsforge/buildingcompliance/pkg/compliance/refresh"
	"github.com/opsforge/buildingcompliance/pkg/compliance/scoring"
	"github.com/opsforge/buildingcompliance/pkg/compliance/snapshot"
	"github.com/opsforge/buildingcompliance/pkg/compliance/sources"
	"github.com/opsforge/buildingcompliance/pkg/observability"
)

// Engine is the public surface of the compliance engine.
type Engine interface {
	// LoadComplianceData builds a full dashboard snapshot for a set of
	// buildings. Partial results are valid results: buildings whose sources
	// fail are annotated, never silently dropped.
	LoadComplianceData(ctx context.Context, buildingIDs []string) (*model.DashboardData, error)

	// GetBuildingComplianceSummary returns the per-building rollup.
	GetBuildingComplianceSummary(ctx context.Context, buildingID string) (*model.BuildingSummary, error)

	// GetHPDViolationsForBuilding returns the building's normalized housing
	// maintenance violations.
	GetHPDViolationsForBuilding(ctx context.Context, buildingID string) ([]model.Issue, error)

	// GetDOBPermitsForBuilding returns the building's typed permit roster.
	GetDOBPermitsForBuilding(ctx context.Context, buildingID string) ([]sources.Permit, error)

	// GetDSNYCollectionScheduleForBuilding returns the building's sanitation
	// collection schedule.
	GetDSNYCollectionScheduleForBuilding(ctx context.Context, buildingID string) (*sources.CollectionSchedule, error)

	// GetLL97EmissionsForBuilding returns the building's annual emissions
	// filings, most recent year first.
	GetLL97EmissionsForBuilding(ctx context.Context, buildingID string) ([]sources.EmissionsFiling, error)
}

// Clients bundles the raw per-agency open-data clients the adapters sit on.
type Clients struct {
	HPD  sources.HPDClient
	DOB  sources.DOBClient
	DSNY sources.DSNYClient
	LL97 sources.LL97Client
}

// Options tunes the service. The zero value selects defaults throughout.
type Options struct {
	Scoring       *scoring.Config
	TTLs          map[model.Category]time.Duration
	HorizonDays   int
	Concurrency   int
	RecentLimit   int
	Snapshots     snapshot.Store
	SharedCache   refresh.SharedCache
	Observability *observability.Provider
	Clock         func() time.Time
}

// Service implements Engine.
type Service struct {
	registry   buildings.Registry
	hpd        *sources.HPDAdapter
	dob        *sources.DOBAdapter
	dsny       *sources.DSNYAdapter
	ll97       *sources.LL97Adapter
	controller *refresh.Controller
	aggregator *dashboard.Aggregator
	logger     *slog.Logger
}

// NewService assembles the engine from a building registry and the raw
// agency clients.
func NewService(registry buildings.Registry, clients Clients, opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	scoringCfg := scoring.DefaultConfig()
	if opts.Scoring != nil {
		scoringCfg = *opts.Scoring
	}
	horizon := opts.HorizonDays
	if horizon <= 0 {
		horizon = deadline.DefaultHorizonDays
	}
	snapshots := opts.Snapshots
	if snapshots == nil {
		snapshots = snapshot.NewMemoryStore()
	}

	s := &Service{
		registry: registry,
		hpd:      sources.NewHPDAdapter(clients.HPD),
		dob:      sources.NewDOBAdapter(clients.DOB).WithClock(clock),
		dsny:     sources.NewDSNYAdapter(clients.DSNY),
		ll97:     sources.NewLL97Adapter(clients.LL97).WithClock(clock),
		logger:   slog.Default().With("component", "engine"),
	}

	s.controller = refresh.NewController(s.fetch, opts.TTLs).WithClock(clock)
	if opts.SharedCache != nil {
		s.controller = s.controller.WithSharedCache(opts.SharedCache)
	}
	if opts.Observability != nil {
		s.controller = s.controller.WithObservability(opts.Observability)
	}

	tracker := deadline.New(horizon).WithClock(clock)
	s.aggregator = dashboard.New(s.controller, scoring.New(scoringCfg), tracker, snapshots).WithClock(clock)
	if opts.Concurrency > 0 {
		s.aggregator = s.aggregator.WithConcurrency(opts.Concurrency)
	}
	if opts.RecentLimit > 0 {
		s.aggregator = s.aggregator.WithRecentLimit(opts.RecentLimit)
	}
	if opts.Observability != nil {
		s.aggregator = s.aggregator.WithObservability(opts.Observability)
	}
	return s
}

// fetch is the refresh controller's fetch function. It resolves the building
// once and dispatches to the category's adapter, packing the category's
// typed extras alongside the normalized issues.
func (s *Service) fetch(ctx context.Context, key refresh.Key) (refresh.Payload, error) {
	b, err := s.registry.Resolve(key.BuildingID)
	if err != nil {
		return refresh.Payload{}, err
	}

	var p refresh.Payload
	switch key.Category {
	case model.CategoryHousing:
		p.Issues, err = s.hpd.FetchIssues(ctx, b)
	case model.CategoryPermit:
		p.Permits, err = s.dob.FetchPermits(ctx, b)
		if err == nil {
			p.Issues = s.dob.IssuesFromPermits(b.ID, p.Permits)
		}
	case model.CategorySanitation:
		var schedule sources.CollectionSchedule
		schedule, err = s.dsny.FetchSchedule(ctx, b)
		if err == nil {
			p.Schedule = &schedule
			p.Issues, err = s.dsny.FetchIssues(ctx, b)
		}
	case model.CategoryEmissions:
		p.Filings, err = s.ll97.FetchFilings(ctx, b)
		if err == nil {
			p.Issues = s.ll97.IssuesFromFilings(b, p.Filings)
		}
	default:
		return refresh.Payload{}, fmt.Errorf("no adapter for category %s", key.Category)
	}
	if err != nil {
		return refresh.Payload{}, err
	}
	return p, nil
}

// LoadComplianceData implements Engine.
func (s *Service) LoadComplianceData(ctx context.Context, buildingIDs []string) (*model.DashboardData, error) {
	if len(buildingIDs) == 0 {
		ids := make([]string, 0)
		for _, b := range s.registry.List() {
			ids = append(ids, b.ID)
		}
		buildingIDs = ids
	}
	return s.aggregator.Load(ctx, buildingIDs)
}

// GetBuildingComplianceSummary implements Engine.
func (s *Service) GetBuildingComplianceSummary(ctx context.Context, buildingID string) (*model.BuildingSummary, error) {
	return s.aggregator.Summary(ctx, buildingID)
}

// GetHPDViolationsForBuilding implements Engine.
func (s *Service) GetHPDViolationsForBuilding(ctx context.Context, buildingID string) ([]model.Issue, error) {
	p, err := s.controller.Get(ctx, refresh.Key{BuildingID: buildingID, Category: model.CategoryHousing})
	if err != nil {
		return nil, err
	}
	return p.Issues, nil
}

// GetDOBPermitsForBuilding implements Engine.
func (s *Service) GetDOBPermitsForBuilding(ctx context.Context, buildingID string) ([]sources.Permit, error) {
	p, err := s.controller.Get(ctx, refresh.Key{BuildingID: buildingID, Category: model.CategoryPermit})
	if err != nil {
		return nil, err
	}
	return p.Permits, nil
}

// GetDSNYCollectionScheduleForBuilding implements Engine.
func (s *Service) GetDSNYCollectionScheduleForBuilding(ctx context.Context, buildingID string) (*sources.CollectionSchedule, error) {
	p, err := s.controller.Get(ctx, refresh.Key{BuildingID: buildingID, Category: model.CategorySanitation})
	if err != nil {
		return nil, err
	}
	return p.Schedule, nil
}

// GetLL97EmissionsForBuilding implements Engine.
func (s *Service) GetLL97EmissionsForBuilding(ctx context.Context, buildingID string) ([]sources.EmissionsFiling, error) {
	p, err := s.controller.Get(ctx, refresh.Key{BuildingID: buildingID, Category: model.CategoryEmissions})
	if err != nil {
		return nil, err
	}
	return p.Filings, nil
}

// Invalidate drops a building's cached category data so the next access
// re-fetches from the source.
func (s *Service) Invalidate(buildingID string, category model.Category) {
	s.controller.Invalidate(refresh.Key{BuildingID: buildingID, Category: category})
}

// SourceHealth reports per-source adapter health from the last fetches.
func (s *Service) SourceHealth(ctx context.Context) map[string]bool {
	return map[string]bool{
		s.hpd.Source():  s.hpd.IsHealthy(ctx),
		s.dob.Source():  s.dob.IsHealthy(ctx),
		s.dsny.Source(): s.dsny.IsHealthy(ctx),
		s.ll97.Source(): s.ll97.IsHealthy(ctx),
	}
}
