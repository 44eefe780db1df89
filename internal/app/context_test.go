package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asylum/internal/config"
	"asylum/internal/engine"
	"asylum/internal/logging"
	"asylum/internal/query"
)

func TestBootstrapWiresCore(t *testing.T) {
	cfg := config.Default()
	cfg.Descriptor.StrictMerge = true
	cfg.Pagination.MaxPageSize = 5

	a, err := Bootstrap(t.TempDir(), cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Engine.Descriptor.Strict)
	assert.Equal(t, 5, a.Query.MaxPageSize)
	assert.False(t, a.StartedAt.IsZero())

	ctx := context.Background()
	e, err := a.Engine.CreateExecutor(ctx, engine.ExecutorCreateOptions{Name: "Alice", Age: 30})
	require.NoError(t, err)
	got, err := a.Query.GetExecutor(ctx, e.UID, query.ExecutorIncludes{})
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
}

func TestBootstrapRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "oracle"
	_, err := Bootstrap(t.TempDir(), cfg, logging.Discard())
	require.Error(t, err)
}
