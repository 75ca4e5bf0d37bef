// Package snapshot persists the counts of the most recent dashboard
// snapshot per building set, so trend deltas survive process restarts.
// Trends compare the current refresh against the last stored snapshot and
// fall back to zero when none exists — never to a fabricated value.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
)

// Record captures the trend-relevant counts of one dashboard snapshot.
type Record struct {
	SnapshotID         string    `json:"snapshot_id"`
	BuildingSetHash    string    `json:"building_set_hash"`
	TakenAt            time.Time `json:"taken_at"`
	OverallScore       float64   `json:"overall_score"`
	ActiveViolations   int       `json:"active_violations"`
	PendingInspections int       `json:"pending_inspections"`
	ResolvedThisMonth  int       `json:"resolved_this_month"`
}

// Store persists and recalls the latest Record per building set.
type Store interface {
	// Latest returns the most recent record for the building set, or nil
	// when none has been saved.
	Latest(ctx context.Context, buildingSetHash string) (*Record, error)

	// Save stores a record as the new latest for its building set.
	Save(ctx context.Context, r Record) error
}

// SetHash derives the stable identity of a building set. The IDs are sorted
// and canonicalized (JCS) before hashing so equal sets always compare equal.
func SetHash(buildingIDs []string) string {
	ids := make([]string, len(buildingIDs))
	copy(ids, buildingIDs)
	sort.Strings(ids)

	data, err := json.Marshal(ids)
	if err != nil {
		// A string slice always marshals; keep the signature clean.
		panic(err)
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		panic(err)
	}
	h := sha256.Sum256(canonical)
	return hex.EncodeToString(h[:])[:16]
}

// MemoryStore is an in-memory Store for tests and cache-less deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	latest map[string]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{latest: make(map[string]Record)}
}

// Latest implements Store.
func (s *MemoryStore) Latest(ctx context.Context, buildingSetHash string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.latest[buildingSetHash]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[r.BuildingSetHash] = r
	return nil
}
