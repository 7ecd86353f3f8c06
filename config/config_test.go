package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "attainment-engine", cfg.App.Name)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.Clustering.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Clustering.CacheMaxAge)
	assert.Equal(t, CacheBackendMemory, cfg.Clustering.CacheBackend)
	assert.False(t, cfg.Clustering.Enabled())
	assert.Equal(t, 75.0, cfg.Attainment.PassThreshold)
	assert.Equal(t, 80.0, cfg.Attainment.HighThreshold)
	assert.Equal(t, 60.0, cfg.Attainment.LowThreshold)
	assert.Equal(t, "inclusive", cfg.Attainment.SyllabusFallback)
}

func TestFromEnv_ClusteringURLPrecedence(t *testing.T) {
	t.Setenv("VITE_CLUSTER_API_URL", "http://vite:1")
	t.Setenv("CLUSTER_API_URL", "http://api:2")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://api:2", cfg.Clustering.URL)
	assert.True(t, cfg.Clustering.Enabled())

	t.Setenv("CLUSTER_SERVICE_URL", "http://svc:3")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://svc:3", cfg.Clustering.URL)
}

func TestFromEnv_DisableClustering(t *testing.T) {
	t.Setenv("CLUSTER_SERVICE_URL", "http://svc:3")
	t.Setenv("DISABLE_CLUSTERING", "1")
	t.Setenv("CLUSTER_API_TIMEOUT_MS", "1500")
	t.Setenv("CLUSTER_CACHE_MAX_AGE_HOURS", "6")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.Clustering.Enabled())
	assert.Equal(t, 1500*time.Millisecond, cfg.Clustering.Timeout)
	assert.Equal(t, 6*time.Hour, cfg.Clustering.CacheMaxAge)
}

func TestFromEnv_ValidationErrorsAreJoined(t *testing.T) {
	t.Setenv("CLUSTER_CACHE_BACKEND", "disk")
	t.Setenv("ATTAINMENT_LOW_THRESHOLD", "90")
	t.Setenv("ATTAINMENT_SYLLABUS_FALLBACK", "sometimes")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLUSTER_CACHE_BACKEND")
	assert.Contains(t, err.Error(), "low_threshold 90.00 exceeds high_threshold 80.00")
	assert.Contains(t, err.Error(), "syllabus_fallback")
}

func TestFromEnv_PolicyFileOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	policy := `
pass_threshold: 70
low_threshold: 55
syllabus_fallback: Disabled
strategy_order: [explicit_weight, task_code]
`
	require.NoError(t, os.WriteFile(path, []byte(policy), 0o600))
	t.Setenv("ATTAINMENT_POLICY_FILE", path)
	t.Setenv("ATTAINMENT_HIGH_THRESHOLD", "85")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 70.0, cfg.Attainment.PassThreshold)
	assert.Equal(t, 85.0, cfg.Attainment.HighThreshold)
	assert.Equal(t, 55.0, cfg.Attainment.LowThreshold)
	assert.Equal(t, "disabled", cfg.Attainment.SyllabusFallback)
	assert.Equal(t, []string{"explicit_weight", "task_code"}, cfg.Attainment.StrategyOrder)
}

func TestFromEnv_PolicyFileUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("passing: 70\n"), 0o600))
	t.Setenv("ATTAINMENT_POLICY_FILE", path)

	_, err := FromEnv()
	assert.Error(t, err)
}
