package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokostok/backend/internal/domain"
)

func TestRedisVersionCacheIntegration(t *testing.T) {
	addr := os.Getenv("TOKOSTOK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TOKOSTOK_TEST_REDIS_ADDR is not set")
	}

	ctx := context.Background()
	c := NewRedisVersionCache(addr, os.Getenv("TOKOSTOK_TEST_REDIS_PASSWORD"), 0)
	defer c.Close()
	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Invalidate(ctx, domain.KindCatalog))

	_, ok, err := c.Get(ctx, domain.KindCatalog)
	require.NoError(t, err)
	assert.False(t, ok)

	want := domain.NewVersion(domain.KindCatalog, "2024-05-01T08:00:00Z")
	want.Generation = 2
	require.NoError(t, c.Set(ctx, want, time.Minute))

	stale := domain.NewVersion(domain.KindCatalog, "2024-04-30T08:00:00Z")
	stale.Generation = 1
	require.NoError(t, c.Set(ctx, stale, time.Minute))

	got, ok, err := c.Get(ctx, domain.KindCatalog)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	require.NoError(t, c.Invalidate(ctx, domain.KindCatalog))
	_, ok, err = c.Get(ctx, domain.KindCatalog)
	require.NoError(t, err)
	assert.False(t, ok)
}
