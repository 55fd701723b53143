package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const symbolPrefix = "pricecheck:symbol:"

// DefaultSymbolTTL keeps search results for a week.
const DefaultSymbolTTL = 7 * 24 * time.Hour

// SearchCache stores symbol search results keyed by the normalized query.
type SearchCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewSearchCache(client *redis.Client, ttl time.Duration) *SearchCache {
	if ttl <= 0 {
		ttl = DefaultSymbolTTL
	}
	return &SearchCache{Client: client, TTL: ttl}
}

func (c *SearchCache) GetSymbol(ctx context.Context, query string) (string, bool, error) {
	v, err := c.Client.Get(ctx, symbolPrefix+query).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *SearchCache) SetSymbol(ctx context.Context, query, ticker string) error {
	return c.Client.Set(ctx, symbolPrefix+query, ticker, c.TTL).Err()
}
