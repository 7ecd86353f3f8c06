package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/attainment-engine/internal/domain/cluster"
)

// ClusterStore implements cluster.Store on Redis. Keys outlive the gateway TTL
// so a stale entry can still be served when a refresh fails.
type ClusterStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewClusterStore creates a store whose keys expire after twice freshness.
// A non-positive freshness keeps keys without expiry.
func NewClusterStore(cache *Cache, freshness time.Duration) *ClusterStore {
	var ttl time.Duration
	if freshness > 0 {
		ttl = 2 * freshness
	}
	return &ClusterStore{cache: cache, ttl: ttl}
}

var _ cluster.Store = (*ClusterStore)(nil)

// Load implements cluster.Store.
func (s *ClusterStore) Load(ctx context.Context, key string) (*cluster.Entry, error) {
	var e cluster.Entry
	if err := s.cache.Get(ctx, ClusterKey(key), &e); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	if e.Assignments == nil {
		e.Assignments = map[int64]cluster.Assignment{}
	}
	return &e, nil
}

// Save implements cluster.Store.
func (s *ClusterStore) Save(ctx context.Context, entry *cluster.Entry) error {
	return s.cache.Set(ctx, ClusterKey(entry.Key()), entry, s.ttl)
}
