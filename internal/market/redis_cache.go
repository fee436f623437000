package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const quoteKeyPrefix = "portfoliobuddy:quote:"

// RedisQuoteCache keeps recent quotes in Redis so repeated questions within
// a short window do not hit the upstream provider.
type RedisQuoteCache struct {
	client *redis.Client
	ttl    time.Duration
}

type quoteCacheEntry struct {
	Quote    Quote     `json:"quote"`
	CachedAt time.Time `json:"cached_at"`
}

// NewRedisQuoteCache returns nil when client is nil so callers can treat the
// cache as optional.
func NewRedisQuoteCache(client *redis.Client, ttl time.Duration) *RedisQuoteCache {
	if client == nil {
		return nil
	}
	if ttl == 0 {
		ttl = 60 * time.Second
	}
	return &RedisQuoteCache{client: client, ttl: ttl}
}

// Get returns a cached quote. Errors are treated as misses.
func (c *RedisQuoteCache) Get(ctx context.Context, symbol string) (*Quote, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	key := quoteKeyPrefix + symbol

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	raw, err := c.client.Get(cacheCtx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug().Err(err).Str("key", key).Msg("Redis get error - treating as cache miss")
		}
		return nil, false
	}

	var entry quoteCacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached quote")
		return nil, false
	}

	log.Debug().
		Str("symbol", symbol).
		Float64("price", entry.Quote.Price).
		Time("cached_at", entry.CachedAt).
		Msg("Cache hit for quote")

	return &entry.Quote, true
}

// Set stores a quote with the configured TTL.
func (c *RedisQuoteCache) Set(ctx context.Context, q *Quote) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}
	if q == nil {
		return fmt.Errorf("quote is nil")
	}

	data, err := json.Marshal(quoteCacheEntry{Quote: *q, CachedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := c.client.Set(cacheCtx, quoteKeyPrefix+q.Symbol, data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("symbol", q.Symbol).Msg("Failed to cache quote")
		return err
	}
	return nil
}

// Delete drops a cached quote.
func (c *RedisQuoteCache) Delete(ctx context.Context, symbol string) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := c.client.Del(cacheCtx, quoteKeyPrefix+symbol).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key: %w", err)
	}
	return nil
}

// Health pings Redis.
func (c *RedisQuoteCache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
