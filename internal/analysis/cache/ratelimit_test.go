package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushkal/server/internal/analysis/model"
)

func TestCheckRateLimitWindow(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	const limit = 3

	for i := 1; i <= limit; i++ {
		ok, remaining := c.CheckRateLimit(ctx, "s1", limit, time.Minute)
		require.True(t, ok, "call %d", i)
		assert.Equal(t, limit-i, remaining)
	}
	ok, remaining := c.CheckRateLimit(ctx, "s1", limit, time.Minute)
	assert.False(t, ok)
	assert.Zero(t, remaining)
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:s1"))

	info := c.GetRateLimitInfo(ctx, "s1")
	assert.Equal(t, limit+1, info.Requests)
	assert.Equal(t, time.Minute, info.TTL)

	mr.FastForward(time.Minute + time.Second)

	ok, remaining = c.CheckRateLimit(ctx, "s1", limit, time.Minute)
	assert.True(t, ok)
	assert.Equal(t, limit-1, remaining)
}

func TestCheckRateLimitIdentifiersAreIndependent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	ok, _ := c.CheckRateLimit(ctx, "a", 1, time.Minute)
	require.True(t, ok)
	ok, _ = c.CheckRateLimit(ctx, "a", 1, time.Minute)
	require.False(t, ok)

	ok, remaining := c.CheckRateLimit(ctx, "b", 1, time.Minute)
	assert.True(t, ok)
	assert.Zero(t, remaining)
}

func TestCheckRateLimitFailsOpen(t *testing.T) {
	ok, remaining := New(nil, model.DefaultCacheConfig()).CheckRateLimit(context.Background(), "s", 5, time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 5, remaining)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	c := New(rdb, model.DefaultCacheConfig())
	ok, remaining = c.CheckRateLimit(context.Background(), "s", 5, time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 5, remaining)
	assert.Equal(t, RateLimitInfo{}, c.GetRateLimitInfo(context.Background(), "s"))
}

func TestGetRateLimitInfoUnknown(t *testing.T) {
	c, _ := newTestCache(t)
	assert.Equal(t, RateLimitInfo{}, c.GetRateLimitInfo(context.Background(), "nobody"))
}
