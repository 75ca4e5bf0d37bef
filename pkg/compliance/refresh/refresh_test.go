package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
)

var testKey = Key{BuildingID: "bldg-a", Category: model.CategoryHousing}

func TestGetFetchesOnceWithinTTL(t *testing.T) {
	var calls atomic.Int32
	fetch := func(ctx context.Context, key Key) (Payload, error) {
		calls.Add(1)
		return Payload{Issues: []model.Issue{{ID: "hpd-1"}}}, nil
	}

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	c := NewController(fetch, nil).WithClock(func() time.Time { return now })

	p, err := c.Get(context.Background(), testKey)
	require.NoError(t, err)
	require.Len(t, p.Issues, 1)
	require.Equal(t, StateFresh, c.StateOf(testKey))

	_, err = c.Get(context.Background(), testKey)
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load(), "second access within TTL is a cache hit")
}

func TestGetRefetchesAfterTTL(t *testing.T) {
	var calls atomic.Int32
	fetch := func(ctx context.Context, key Key) (Payload, error) {
		calls.Add(1)
		return Payload{}, nil
	}

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	c := NewController(fetch, nil).WithClock(func() time.Time { return now })

	_, err := c.Get(context.Background(), testKey)
	require.NoError(t, err)

	now = now.Add(7 * time.Hour) // housing TTL is 6h
	require.Equal(t, StateStale, c.StateOf(testKey))

	_, err = c.Get(context.Background(), testKey)
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestConcurrentCallersShareOneFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context, key Key) (Payload, error) {
		calls.Add(1)
		<-release
		return Payload{Issues: []model.Issue{{ID: "hpd-1"}}}, nil
	}

	c := NewController(fetch, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Payload, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), testKey)
		}(i)
	}

	// Let the goroutines pile up behind the single in-flight fetch.
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load(), "all callers share one fetch")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Len(t, results[i].Issues, 1)
	}
}

func TestFetchErrorLeavesStale(t *testing.T) {
	fetchErr := model.SourceUnavailable("HPD", errors.New("503"))
	fetch := func(ctx context.Context, key Key) (Payload, error) {
		return Payload{}, fetchErr
	}

	c := NewController(fetch, nil)
	_, err := c.Get(context.Background(), testKey)
	require.ErrorIs(t, err, model.ErrSourceUnavailable)
	require.Equal(t, StateStale, c.StateOf(testKey))
}

func TestWaiterCancellation(t *testing.T) {
	release := make(chan struct{})
	fetch := func(ctx context.Context, key Key) (Payload, error) {
		<-release
		return Payload{}, nil
	}

	c := NewController(fetch, nil)

	ownerDone := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), testKey)
		ownerDone <- err
	}()

	require.Eventually(t, func() bool { return c.StateOf(testKey) == StateFetching }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Get(ctx, testKey)
	require.ErrorIs(t, err, context.Canceled, "a waiter can abandon without affecting the fetch")

	close(release)
	require.NoError(t, <-ownerDone)
	require.Equal(t, StateFresh, c.StateOf(testKey))
}

type fakeShared struct {
	mu      sync.Mutex
	entries map[Key]Payload
	gets    int
	sets    int
}

func newFakeShared() *fakeShared {
	return &fakeShared{entries: make(map[Key]Payload)}
}

func (f *fakeShared) Get(ctx context.Context, key Key) (Payload, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	p, ok := f.entries[key]
	return p, ok, nil
}

func (f *fakeShared) Set(ctx context.Context, key Key, p Payload, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.entries[key] = p
	return nil
}

func TestSharedCacheServesBeforeSource(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	shared := newFakeShared()
	shared.entries[testKey] = Payload{
		Issues:    []model.Issue{{ID: "hpd-cached"}},
		FetchedAt: now.Add(-time.Hour),
	}

	var calls atomic.Int32
	fetch := func(ctx context.Context, key Key) (Payload, error) {
		calls.Add(1)
		return Payload{}, nil
	}

	c := NewController(fetch, nil).WithClock(func() time.Time { return now }).WithSharedCache(shared)
	p, err := c.Get(context.Background(), testKey)
	require.NoError(t, err)
	require.Equal(t, "hpd-cached", p.Issues[0].ID)
	require.Zero(t, calls.Load(), "a fresh shared-cache entry avoids the source")
	require.Equal(t, StateFresh, c.StateOf(testKey))
}

func TestSharedCachePopulatedAfterFetch(t *testing.T) {
	shared := newFakeShared()
	fetch := func(ctx context.Context, key Key) (Payload, error) {
		return Payload{Issues: []model.Issue{{ID: "hpd-1"}}}, nil
	}

	c := NewController(fetch, nil).WithSharedCache(shared)
	_, err := c.Get(context.Background(), testKey)
	require.NoError(t, err)
	require.Equal(t, 1, shared.sets)
	require.Len(t, shared.entries[testKey].Issues, 1)
}

func TestInvalidate(t *testing.T) {
	var calls atomic.Int32
	fetch := func(ctx context.Context, key Key) (Payload, error) {
		calls.Add(1)
		return Payload{}, nil
	}

	c := NewController(fetch, nil)
	_, err := c.Get(context.Background(), testKey)
	require.NoError(t, err)

	c.Invalidate(testKey)
	require.Equal(t, StateStale, c.StateOf(testKey))

	_, err = c.Get(context.Background(), testKey)
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestTTLDefaults(t *testing.T) {
	c := NewController(nil, nil)
	require.Equal(t, 6*time.Hour, c.TTL(model.CategoryHousing))
	require.Equal(t, 7*24*time.Hour, c.TTL(model.CategorySanitation))
	require.Equal(t, 24*time.Hour, c.TTL(model.CategoryEmissions))
	require.Equal(t, 6*time.Hour, c.TTL(model.CategoryFire), "unlisted categories get the default")
}
