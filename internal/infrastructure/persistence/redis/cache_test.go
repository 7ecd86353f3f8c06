package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "cache"
	cfg.Password = "secret"
	cfg.DB = 2

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)

	cfg.URL = "redis://:pw@redis.internal:6380/5"
	cfg.PoolSize = 25
	opts, err = cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 5, opts.DB)
	assert.Equal(t, 25, opts.PoolSize)

	cfg.URL = "http://nope"
	_, err = cfg.Options()
	assert.Error(t, err)
}

func TestCache_RejectsBadArguments(t *testing.T) {
	// The client is never dialled: every call fails validation first.
	c := &Cache{client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})}
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	assert.ErrorIs(t, c.Set(ctx, "", 1, time.Minute), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, time.Minute), ErrCacheNilValue)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
	assert.ErrorIs(t, c.Set(ctx, "k", func() {}, time.Minute), ErrCacheSerialization)

	var dest map[string]any
	assert.ErrorIs(t, c.Get(ctx, "", &dest), ErrCacheKeyEmpty)
}

func TestClusterStore_KeysAndTTL(t *testing.T) {
	assert.Equal(t, "cluster:co:12|t:3|f:", ClusterKey("co:12|t:3|f:"))

	assert.Equal(t, 48*time.Hour, NewClusterStore(nil, 24*time.Hour).ttl)
	assert.Zero(t, NewClusterStore(nil, 0).ttl)
}
