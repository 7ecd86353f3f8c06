package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attainment-engine/config"
	"github.com/alem-hub/attainment-engine/internal/domain/outcome"
)

func TestNewResolver(t *testing.T) {
	r, err := newResolver(config.AttainmentConfig{})
	require.NoError(t, err)
	assert.Equal(t, outcome.DefaultStrategyOrder, r.Strategies())

	r, err = newResolver(config.AttainmentConfig{
		SyllabusFallback: "disabled",
		StrategyOrder:    []string{" Task_Code ", "explicit_weight", "syllabus_fallback"},
	})
	require.NoError(t, err)
	assert.Equal(t, []outcome.StrategyName{outcome.StrategyTaskCode, outcome.StrategyExplicitWeight}, r.Strategies())

	_, err = newResolver(config.AttainmentConfig{SyllabusFallback: "sometimes"})
	assert.Error(t, err)

	_, err = newResolver(config.AttainmentConfig{StrategyOrder: []string{"rubric", "rubric"}})
	assert.Error(t, err)
}

func TestPostgresConfig(t *testing.T) {
	pc := postgresConfig(config.DatabaseConfig{
		URL:             "postgres://u:p@db:5432/records",
		MaxConns:        20,
		MinConns:        2,
		ConnMaxLifetime: time.Hour,
		QueryTimeout:    5 * time.Second,
	})
	assert.Equal(t, "postgres://u:p@db:5432/records", pc.DSN())
	assert.EqualValues(t, 20, pc.MaxConns)
	assert.EqualValues(t, 2, pc.MinConns)
	assert.Equal(t, 5*time.Second, pc.StatementTimeout)
}

func TestStandardFilterFlags(t *testing.T) {
	t.Cleanup(func() { family, targetID = "", 0 })

	family, targetID = "", 0
	f, err := standardFilter()
	require.NoError(t, err)
	assert.Nil(t, f)

	family, targetID = "so", 0
	_, err = standardFilter()
	assert.Error(t, err)

	family, targetID = "sdg", 4
	f, err = standardFilter()
	require.NoError(t, err)
	assert.Equal(t, "SDG:4", f.Key())
}
