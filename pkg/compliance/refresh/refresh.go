// Package refresh governs when source adapters are re-queried versus served
// from cache. Each (building, category) pair moves through
// STALE → FETCHING → FRESH → (TTL) → STALE; only one fetch per pair is ever
// in flight, and concurrent callers share its result, since the upstream
// regulatory APIs are rate-limited.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
	"github.com/opsforge/buildingcompliance/pkg/compliance/sources"
	"github.com/opsforge/buildingcompliance/pkg/observability"
)

// State is the cache state of one (building, category) entry.
type State string

const (
	StateStale    State = "STALE"
	StateFetching State = "FETCHING"
	StateFresh    State = "FRESH"
)

// Key identifies one cache entry. The cache is an explicit object owned by
// its constructor — no process-global state.
type Key struct {
	BuildingID string         `json:"building_id"`
	Category   model.Category `json:"category"`
}

// Payload is everything one category fetch produces for a building: the
// normalized issues plus the category's typed extras.
type Payload struct {
	Issues    []model.Issue               `json:"issues"`
	Permits   []sources.Permit            `json:"permits,omitempty"`
	Schedule  *sources.CollectionSchedule `json:"schedule,omitempty"`
	Filings   []sources.EmissionsFiling   `json:"filings,omitempty"`
	FetchedAt time.Time                   `json:"fetched_at"`
}

// FetchFunc performs the actual source fetch for a key.
type FetchFunc func(ctx context.Context, key Key) (Payload, error)

// SharedCache is an optional second-level cache (e.g. Redis) consulted
// before hitting the source, for multi-instance deployments.
type SharedCache interface {
	Get(ctx context.Context, key Key) (Payload, bool, error)
	Set(ctx context.Context, key Key, p Payload, ttl time.Duration) error
}

// DefaultTTLs returns the per-category cache lifetimes. Sanitation schedules
// change rarely; violations can change daily.
func DefaultTTLs() map[model.Category]time.Duration {
	return map[model.Category]time.Duration{
		model.CategoryHousing:    6 * time.Hour,
		model.CategoryPermit:     6 * time.Hour,
		model.CategorySanitation: 7 * 24 * time.Hour,
		model.CategoryEmissions:  24 * time.Hour,
	}
}

type pendingFetch struct {
	done    chan struct{}
	payload Payload
	err     error
}

type entry struct {
	state     State
	payload   Payload
	fetchedAt time.Time
	pending   *pendingFetch
}

// Controller is the refresh/cache state machine.
type Controller struct {
	mu         sync.Mutex
	entries    map[Key]*entry
	ttls       map[model.Category]time.Duration
	defaultTTL time.Duration
	fetch      FetchFunc
	shared     SharedCache
	obs        *observability.Provider
	clock      func() time.Time
	logger     *slog.Logger
}

// NewController creates a controller over the given fetch function. A nil
// ttls map uses DefaultTTLs.
func NewController(fetch FetchFunc, ttls map[model.Category]time.Duration) *Controller {
	if ttls == nil {
		ttls = DefaultTTLs()
	}
	return &Controller{
		entries:    make(map[Key]*entry),
		ttls:       ttls,
		defaultTTL: 6 * time.Hour,
		fetch:      fetch,
		clock:      time.Now,
		logger:     slog.Default().With("component", "refresh"),
	}
}

// WithClock overrides the clock for testing.
func (c *Controller) WithClock(clock func() time.Time) *Controller {
	c.clock = clock
	return c
}

// WithSharedCache attaches a second-level cache.
func (c *Controller) WithSharedCache(shared SharedCache) *Controller {
	c.shared = shared
	return c
}

// WithObservability attaches metrics recording.
func (c *Controller) WithObservability(obs *observability.Provider) *Controller {
	c.obs = obs
	return c
}

// TTL returns the cache lifetime for a category.
func (c *Controller) TTL(category model.Category) time.Duration {
	if ttl, ok := c.ttls[category]; ok {
		return ttl
	}
	return c.defaultTTL
}

// Get returns the payload for a key, serving FRESH entries from cache and
// otherwise fetching. Callers arriving while a fetch is in flight wait for
// and share that fetch's result; the fetch itself is detached from any one
// caller's cancellation so abandoning a request does not fail the others.
func (c *Controller) Get(ctx context.Context, key Key) (Payload, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{state: StateStale}
		c.entries[key] = e
	}

	now := c.clock()
	ttl := c.TTL(key.Category)

	if e.state == StateFresh && now.Sub(e.fetchedAt) < ttl {
		payload := e.payload
		c.mu.Unlock()
		c.obs.RecordCacheHit(ctx, string(key.Category))
		return payload, nil
	}

	if e.pending != nil {
		p := e.pending
		c.mu.Unlock()
		select {
		case <-p.done:
			return p.payload, p.err
		case <-ctx.Done():
			return Payload{}, ctx.Err()
		}
	}

	// This caller owns the STALE→FETCHING transition.
	p := &pendingFetch{done: make(chan struct{})}
	e.pending = p
	e.state = StateFetching
	c.mu.Unlock()
	c.obs.RecordCacheMiss(ctx, string(key.Category))

	fctx := context.WithoutCancel(ctx)

	if c.shared != nil {
		if payload, ok, err := c.shared.Get(fctx, key); err == nil && ok && now.Sub(payload.FetchedAt) < ttl {
			c.complete(key, p, payload, nil)
			return payload, nil
		} else if err != nil {
			c.logger.Warn("shared cache read failed", "key", key, "err", err)
		}
	}

	start := c.clock()
	payload, err := c.fetch(fctx, key)
	c.obs.RecordFetch(ctx, string(key.Category), c.clock().Sub(start), err)
	if err == nil {
		payload.FetchedAt = c.clock()
		if c.shared != nil {
			if serr := c.shared.Set(fctx, key, payload, ttl); serr != nil {
				c.logger.Warn("shared cache write failed", "key", key, "err", serr)
			}
		}
	}
	c.complete(key, p, payload, err)
	return payload, err
}

// complete performs the FETCHING→FRESH (or →STALE on error) transition and
// releases all waiters with the shared result. Only the fetch owner calls
// it, so readers see either the previous FRESH payload or the new one, never
// a half-written entry.
func (c *Controller) complete(key Key, p *pendingFetch, payload Payload, err error) {
	c.mu.Lock()
	e := c.entries[key]
	if err == nil {
		e.state = StateFresh
		e.payload = payload
		e.fetchedAt = payload.FetchedAt
	} else {
		e.state = StateStale
	}
	e.pending = nil
	p.payload = payload
	p.err = err
	c.mu.Unlock()
	close(p.done)
}

// StateOf reports the current state of a key, for tests and diagnostics. A
// FRESH entry past its TTL reports STALE.
func (c *Controller) StateOf(key Key) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return StateStale
	}
	if e.state == StateFresh && c.clock().Sub(e.fetchedAt) >= c.TTL(key.Category) {
		return StateStale
	}
	return e.state
}

// Invalidate drops a key so the next access re-fetches.
func (c *Controller) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.pending == nil {
		delete(c.entries, key)
	}
}
