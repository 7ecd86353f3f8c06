package cluster

import (
	"context"
	"errors"
	"time"
)

// TieredStore checks a fast local store before a shared one and fills the
// local store on a shared hit. A local entry past the freshness window is
// checked against the shared store, which another instance may have
// refreshed.
type TieredStore struct {
	l1        Store
	l2        Store
	freshness time.Duration
	now       func() time.Time
}

// NewTieredStore creates a two-level store. A non-positive freshness lets
// every local hit win.
func NewTieredStore(l1, l2 Store, freshness time.Duration) *TieredStore {
	return &TieredStore{l1: l1, l2: l2, freshness: freshness, now: time.Now}
}

// Load implements Store.
func (t *TieredStore) Load(ctx context.Context, key string) (*Entry, error) {
	local, err := t.l1.Load(ctx, key)
	if err != nil {
		local = nil
	}
	if local != nil && (t.freshness <= 0 || local.Age(t.now()) < t.freshness) {
		return local, nil
	}

	shared, err := t.l2.Load(ctx, key)
	if err != nil || shared == nil {
		if local != nil {
			return local, nil
		}
		return nil, err
	}
	if local != nil && !shared.GeneratedAt.After(local.GeneratedAt) {
		return local, nil
	}
	// Best-effort promotion.
	_ = t.l1.Save(ctx, shared)
	return shared, nil
}

// Save implements Store. Both levels are written; errors are joined.
func (t *TieredStore) Save(ctx context.Context, entry *Entry) error {
	return errors.Join(t.l2.Save(ctx, entry), t.l1.Save(ctx, entry))
}
