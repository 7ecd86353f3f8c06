package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attainment-engine/internal/domain/cluster"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newStore(freshness time.Duration) *ClusterStore {
	s := NewClusterStore(freshness)
	s.now = func() time.Time { return t0 }
	return s
}

func TestClusterStore_LoadMissing(t *testing.T) {
	s := NewClusterStore(time.Hour)

	e, err := s.Load(context.Background(), "offering:1:term:1")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestClusterStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	s := newStore(time.Hour)
	scope := cluster.OfferingScope(1, 2, "")

	first := cluster.NewEntry(scope, []cluster.Assignment{{StudentID: 1}}, nil, t0)
	second := cluster.NewEntry(scope, []cluster.Assignment{{StudentID: 1}, {StudentID: 2}}, nil, t0)

	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	got, err := s.Load(ctx, scope.Key())
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.Len(t, got.Assignments, 2)
	assert.Equal(t, 1, s.Len())
}

func TestClusterStore_StaleWithinRetentionIsServed(t *testing.T) {
	ctx := context.Background()
	s := newStore(24 * time.Hour)
	scope := cluster.OfferingScope(1, 2, "")

	stale := cluster.NewEntry(scope, nil, nil, t0.Add(-30*time.Hour))
	require.NoError(t, s.Save(ctx, stale))
	got, err := s.Load(ctx, scope.Key())
	require.NoError(t, err)
	assert.Same(t, stale, got)

	expired := cluster.NewEntry(scope, nil, nil, t0.Add(-48*time.Hour))
	require.NoError(t, s.Save(ctx, expired))
	got, err = s.Load(ctx, scope.Key())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClusterStore_PrunesExpiredScopes(t *testing.T) {
	ctx := context.Background()
	s := newStore(24 * time.Hour)

	for i := int64(1); i <= 5000; i++ {
		scope := cluster.StudentSetScope([]int64{i, i + 1}, 1, "")
		require.NoError(t, s.Save(ctx, cluster.NewEntry(scope, nil, nil, t0.Add(-72*time.Hour))))
	}
	assert.LessOrEqual(t, s.Len(), pruneFloor+1)

	live := cluster.OfferingScope(9, 1, "")
	require.NoError(t, s.Save(ctx, cluster.NewEntry(live, nil, nil, t0)))
	got, err := s.Load(ctx, live.Key())
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestClusterStore_KeepsLiveScopes(t *testing.T) {
	ctx := context.Background()
	s := newStore(24 * time.Hour)

	for i := int64(1); i <= 3*pruneFloor; i++ {
		scope := cluster.OfferingScope(i, 1, "")
		require.NoError(t, s.Save(ctx, cluster.NewEntry(scope, nil, nil, t0.Add(-time.Hour))))
	}
	assert.Equal(t, 3*pruneFloor, s.Len())

	for i := int64(1); i <= 3*pruneFloor; i++ {
		got, err := s.Load(ctx, cluster.OfferingScope(i, 1, "").Key())
		require.NoError(t, err)
		require.NotNil(t, got, fmt.Sprintf("offering %d", i))
	}
}

func TestClusterStore_NoRetentionLimit(t *testing.T) {
	ctx := context.Background()
	s := newStore(0)

	for i := int64(1); i <= 2*pruneFloor; i++ {
		scope := cluster.OfferingScope(i, 1, "")
		require.NoError(t, s.Save(ctx, cluster.NewEntry(scope, nil, nil, t0.Add(-365*24*time.Hour))))
	}
	assert.Equal(t, 2*pruneFloor, s.Len())
}

func TestClusterStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewClusterStore(time.Hour)

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			scope := cluster.OfferingScope(id, 1, "")
			_ = s.Save(ctx, cluster.NewEntry(scope, nil, nil, time.Now()))
		}(i)
		go func(id int64) {
			defer wg.Done()
			_, _ = s.Load(ctx, cluster.OfferingScope(id, 1, "").Key())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, s.Len())
}
