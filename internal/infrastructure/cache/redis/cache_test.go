package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheWithClient(client, "test:"), mr
}

func TestCacheJSONRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	type status struct {
		State string `json:"state"`
	}
	require.NoError(t, cache.Set(ctx, "bot", status{State: "running"}, time.Minute))

	var got status
	require.NoError(t, cache.Get(ctx, "bot", &got))
	assert.Equal(t, "running", got.State)

	require.NoError(t, cache.Delete(ctx, "bot"))
	assert.ErrorIs(t, cache.Get(ctx, "bot", &got), ErrCacheMiss)
}

func TestIdempotencyStoreMarksOnce(t *testing.T) {
	cache, mr := newTestCache(t)
	store := NewIdempotencyStore(cache, time.Hour)
	ctx := context.Background()

	seen, err := store.Seen(ctx, "g:trade.closed:evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	first, err := store.Mark(ctx, "g:trade.closed:evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := store.Mark(ctx, "g:trade.closed:evt-1")
	require.NoError(t, err)
	assert.False(t, again)

	seen, err = store.Seen(ctx, "g:trade.closed:evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	mr.FastForward(2 * time.Hour)
	seen, err = store.Seen(ctx, "g:trade.closed:evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestCheckRateLimit(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := cache.CheckRateLimit(ctx, "user-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := cache.CheckRateLimit(ctx, "user-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
