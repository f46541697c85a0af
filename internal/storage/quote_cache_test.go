package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestQuoteCache creates a QuoteCache backed by an embedded Redis.
func setupTestQuoteCache(t *testing.T, ttl time.Duration) (*QuoteCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return NewQuoteCache(NewRedisCacheFromClient(client), ttl), mr
}

func TestQuoteCacheRoundTrip(t *testing.T) {
	cache, _ := setupTestQuoteCache(t, time.Minute)
	ctx := context.Background()

	price := decimal.RequireFromString("190.25")
	require.NoError(t, cache.SetPrice(ctx, "AAPL", price))

	got, ok, err := cache.GetPrice(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(price), "expected %s, got %s", price, got)
}

func TestQuoteCacheMiss(t *testing.T) {
	cache, _ := setupTestQuoteCache(t, time.Minute)

	got, ok, err := cache.GetPrice(context.Background(), "ZZZZ")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, got.IsZero())
}

func TestQuoteCacheExpiry(t *testing.T) {
	cache, mr := setupTestQuoteCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.SetPrice(ctx, "AAPL", decimal.RequireFromString("190.25")))
	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.GetPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, ok, "expected entry expired after TTL")
}

func TestQuoteCacheCorruptEntryEvicted(t *testing.T) {
	cache, mr := setupTestQuoteCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, mr.Set("quote:AAPL", "not-a-number"))

	_, ok, err := cache.GetPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, ok, "corrupt entry must read as a miss")
	assert.False(t, mr.Exists("quote:AAPL"), "corrupt entry must be evicted")
}

func TestQuoteCacheInvalidate(t *testing.T) {
	cache, _ := setupTestQuoteCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.SetPrice(ctx, "AAPL", decimal.NewFromInt(190)))
	require.NoError(t, cache.SetPrice(ctx, "MSFT", decimal.NewFromInt(410)))

	require.NoError(t, cache.Invalidate(ctx, "AAPL", "MSFT"))

	for _, symbol := range []string{"AAPL", "MSFT"} {
		_, ok, err := cache.GetPrice(ctx, symbol)
		require.NoError(t, err)
		assert.False(t, ok, "expected %s invalidated", symbol)
	}

	// Invalidating nothing is a no-op.
	require.NoError(t, cache.Invalidate(ctx))
}
