// Package sources implements the four regulatory source adapters: HPD
// housing violations, DOB permits, DSNY sanitation, and LL97 emissions.
// Each adapter owns the mapping from its source's native class/status
// vocabulary to the common severity/status enums; no cross-category logic
// lives here. Raw HTTP transport is injected via the per-agency client
// interfaces, which return the raw JSON rows of the open-data endpoints.
package sources

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/opsforge/buildingcompliance/pkg/buildings"
	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
)

// SourceAdapter converts source-specific raw records into normalized issues.
type SourceAdapter interface {
	// Category returns the regulatory domain this adapter feeds.
	Category() model.Category

	// Source returns the short source name used in SourceRefs.
	Source() string

	// FetchIssues retrieves and normalizes all findings for a building.
	// Failures are reported as model.ErrSourceUnavailable; individually
	// malformed records are skipped, not fatal.
	FetchIssues(ctx context.Context, b buildings.Building) ([]model.Issue, error)

	// IsHealthy reports whether the last fetch against the source succeeded.
	IsHealthy(ctx context.Context) bool
}

// BaseAdapter provides common functionality for source adapters: identity,
// rate limiting against the upstream open-data API, per-call timeout, and a
// health flag maintained across fetches.
type BaseAdapter struct {
	category model.Category
	source   string
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	healthy bool
}

func newBaseAdapter(category model.Category, source string, r rate.Limit, burst int, timeout time.Duration) BaseAdapter {
	return BaseAdapter{
		category: category,
		source:   source,
		limiter:  rate.NewLimiter(r, burst),
		timeout:  timeout,
		logger:   slog.Default().With("component", "sources", "source", source),
		healthy:  true,
	}
}

// Category returns the adapter's regulatory domain.
func (b *BaseAdapter) Category() model.Category { return b.category }

// Source returns the short source name.
func (b *BaseAdapter) Source() string { return b.source }

// IsHealthy reports whether the last fetch succeeded.
func (b *BaseAdapter) IsHealthy(ctx context.Context) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.healthy
}

func (b *BaseAdapter) setHealthy(healthy bool) {
	b.mu.Lock()
	b.healthy = healthy
	b.mu.Unlock()
}

// acquire waits for rate-limit budget and derives the per-call timeout
// context. A limiter or deadline failure is treated as SourceUnavailable by
// the caller.
func (b *BaseAdapter) acquire(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	return cctx, cancel, nil
}

// HPDClient fetches raw HPD housing maintenance violation rows for a BBL.
type HPDClient interface {
	ViolationsForBBL(ctx context.Context, bbl string) ([]json.RawMessage, error)
}

// DOBClient fetches raw DOB permit/job rows for a BIN.
type DOBClient interface {
	PermitsForBIN(ctx context.Context, bin string) ([]json.RawMessage, error)
}

// DSNYClient fetches sanitation collection schedules and summonses.
type DSNYClient interface {
	CollectionForDistrict(ctx context.Context, district string) ([]json.RawMessage, error)
	SummonsesForAddress(ctx context.Context, address string) ([]json.RawMessage, error)
}

// LL97Client fetches raw LL97 annual emissions filing rows for a BBL.
type LL97Client interface {
	EmissionsForBBL(ctx context.Context, bbl string) ([]json.RawMessage, error)
}

// Open-data timestamps come in a handful of layouts depending on dataset
// vintage.
var dateLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
}

func parseSourceDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseSourceFloat(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
