package container

import (
	"context"
	"testing"

	"kickchoice/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) *config.Config {
	return &config.Config{
		Estimation: config.EstimationConfig{
			Model:             "asc_only",
			Draws:             10,
			DrawMethod:        "halton",
			MaxIterations:     50,
			GradientTolerance: 1e-6,
			MaxConcurrentRuns: 1,
		},
		Database: config.DatabaseConfig{Driver: "sqlite", URL: url},
	}
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestInit_WithoutDatabase(t *testing.T) {
	c, err := New(testConfig(""))
	require.NoError(t, err)
	require.NoError(t, c.Init(context.Background()))
	assert.Nil(t, c.DB)
	assert.Nil(t, c.RunRepo)
	assert.NotNil(t, c.EstimationService)
	assert.NotNil(t, c.SSEHub)
	assert.NoError(t, c.Close())
}

func TestInit_SQLite(t *testing.T) {
	c, err := New(testConfig(":memory:"))
	require.NoError(t, err)
	require.NoError(t, c.Init(context.Background()))
	defer c.Close()

	require.NotNil(t, c.DB)
	require.NotNil(t, c.RunRepo)
	var tables int
	require.NoError(t, c.DB.Get(&tables, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('estimation_runs', 'parameter_estimates')`))
	assert.Equal(t, 2, tables)
}
