package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framefold/canvas/common/logger"
)

func newTestCache(t *testing.T, budget int) *MemoryCache {
	t.Helper()
	c := &MemoryCache{
		data:   make(map[string]*entry),
		budget: budget,
		log:    logger.New("error", "json"),
		stop:   make(chan struct{}),
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := newTestCache(t, defaultBudget)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "blob:a", []byte("payload"), time.Minute))

	got, ok, err := c.Get(ctx, "blob:a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)
}

func TestMemoryCache_ExpiredEntryMisses(t *testing.T) {
	c := newTestCache(t, defaultBudget)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "blob:a", []byte("payload"), -time.Second))

	_, ok, err := c.Get(ctx, "blob:a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_Delete(t *testing.T) {
	c := newTestCache(t, defaultBudget)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "blob:a", []byte("payload"), time.Minute))
	require.NoError(t, c.Delete(ctx, "blob:a"))

	_, ok, err := c.Get(ctx, "blob:a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyRead(t *testing.T) {
	c := newTestCache(t, 10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "b", []byte("2222"), time.Minute))
	require.NoError(t, c.Set(ctx, "a", []byte("1111"), time.Minute))

	// Reading "b" makes "a" the eviction candidate once "c" overflows the
	// budget.
	_, ok, err := c.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "c", []byte("3333"), time.Minute))

	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok, "least recently read entry should be evicted")

	_, ok, _ = c.Get(ctx, "b")
	assert.True(t, ok)

	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	c := NewMemoryCache(logger.New("error", "json"))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
