// Package memory holds process-local stores.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alem-hub/attainment-engine/internal/domain/cluster"
)

// pruneFloor is the number of scopes below which Save never scans for
// expired entries.
const pruneFloor = 100

// ClusterStore is a process-local cluster.Store. Entries are immutable once
// stored. Entries older than twice the freshness window are never returned
// and are dropped when the map grows past its prune mark.
type ClusterStore struct {
	mu        sync.RWMutex
	entries   map[string]*cluster.Entry
	maxAge    time.Duration
	nextPrune int
	now       func() time.Time
}

// NewClusterStore creates an empty store that retains entries for twice
// freshness. A non-positive freshness keeps entries forever.
func NewClusterStore(freshness time.Duration) *ClusterStore {
	var maxAge time.Duration
	if freshness > 0 {
		maxAge = 2 * freshness
	}
	return &ClusterStore{
		entries:   make(map[string]*cluster.Entry),
		maxAge:    maxAge,
		nextPrune: pruneFloor,
		now:       time.Now,
	}
}

var _ cluster.Store = (*ClusterStore)(nil)

// Load implements cluster.Store.
func (s *ClusterStore) Load(_ context.Context, key string) (*cluster.Entry, error) {
	s.mu.RLock()
	e := s.entries[key]
	s.mu.RUnlock()

	if e == nil || s.expired(e, s.now()) {
		return nil, nil
	}
	return e, nil
}

// Save implements cluster.Store.
func (s *ClusterStore) Save(_ context.Context, entry *cluster.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Key()] = entry
	if len(s.entries) > s.nextPrune {
		s.prune()
		s.nextPrune = max(pruneFloor, 2*len(s.entries))
	}
	return nil
}

// prune drops expired entries. The caller holds mu.
func (s *ClusterStore) prune() {
	if s.maxAge <= 0 {
		return
	}
	now := s.now()
	for k, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, k)
		}
	}
}

func (s *ClusterStore) expired(e *cluster.Entry, now time.Time) bool {
	return s.maxAge > 0 && e.Age(now) >= s.maxAge
}

// Len returns the number of cached scopes, expired ones included until the
// next prune.
func (s *ClusterStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
