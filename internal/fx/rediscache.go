package fx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/mmynk/pledgeledger/internal/models"
)

// DefaultCacheTTL is how long a resolved rate stays fresh.
const DefaultCacheTTL = 24 * time.Hour

// RedisCache stores resolved rates in redis with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a RedisCache. A non-positive ttl uses DefaultCacheTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached rate for key, if present and not expired.
func (c *RedisCache) Get(ctx context.Context, key string) (Rate, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return Rate{}, false, nil
	}
	if err != nil {
		return Rate{}, false, fmt.Errorf("failed to read cached rate: %w", err)
	}

	rate, err := decodeRate(val)
	if err != nil {
		return Rate{}, false, err
	}
	return rate, true, nil
}

// Set caches rate under key for the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, rate Rate) error {
	if err := c.client.Set(ctx, key, encodeRate(rate), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache rate: %w", err)
	}
	return nil
}

// encodeRate serializes a rate as "value|source|date".
func encodeRate(rate Rate) string {
	date := ""
	if !rate.Date.IsZero() {
		date = rate.Date.Format(models.DateFormat)
	}
	return rate.Value.String() + "|" + string(rate.Source) + "|" + date
}

func decodeRate(val string) (Rate, error) {
	parts := strings.Split(val, "|")
	if len(parts) != 3 {
		return Rate{}, fmt.Errorf("malformed cached rate %q", val)
	}
	value, err := decimal.NewFromString(parts[0])
	if err != nil {
		return Rate{}, fmt.Errorf("malformed cached rate %q: %w", val, err)
	}
	rate := Rate{Value: value, Source: Source(parts[1])}
	if parts[2] != "" {
		if rate.Date, err = models.ParseDate(parts[2]); err != nil {
			return Rate{}, fmt.Errorf("malformed cached rate date %q: %w", val, err)
		}
	}
	return rate, nil
}
