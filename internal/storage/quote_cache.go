package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// QuoteCache caches quote prices in Redis so refresh pipelines running
// close together do not hammer the quotes table. A miss is not an
// error; callers fall back to the relational store.
type QuoteCache struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewQuoteCache creates a new quote cache with the given TTL
func NewQuoteCache(cache *RedisCache, ttl time.Duration) *QuoteCache {
	return &QuoteCache{cache: cache, ttl: ttl}
}

func quoteKey(symbol string) string {
	return fmt.Sprintf("quote:%s", symbol)
}

// SetPrice caches the price for a symbol
func (q *QuoteCache) SetPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	if err := q.cache.Client().Set(ctx, quoteKey(symbol), price.String(), q.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache quote for %s: %w", symbol, err)
	}
	return nil
}

// GetPrice retrieves a cached price. The second return value reports
// whether the symbol was present.
func (q *QuoteCache) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	val, err := q.cache.Client().Get(ctx, quoteKey(symbol)).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to read cached quote for %s: %w", symbol, err)
	}

	price, err := decimal.NewFromString(val)
	if err != nil {
		// A corrupt entry is treated as a miss and evicted.
		_ = q.cache.Client().Del(ctx, quoteKey(symbol)).Err() // nolint:errcheck // best-effort eviction
		return decimal.Zero, false, nil
	}

	return price, true, nil
}

// Invalidate removes cached prices for the given symbols
func (q *QuoteCache) Invalidate(ctx context.Context, symbols ...string) error {
	if len(symbols) == 0 {
		return nil
	}
	keys := make([]string, 0, len(symbols))
	for _, s := range symbols {
		keys = append(keys, quoteKey(s))
	}
	if err := q.cache.Client().Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached quotes: %w", err)
	}
	return nil
}
