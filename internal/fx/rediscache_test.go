package fx

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

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, 0), mr
}

func TestRedisCache_RoundTrip(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()
	key := CacheKey("EUR", "USD", day("2024-01-15"))

	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	want := Rate{Value: decimal.RequireFromString("1.0845"), Source: SourceLatest, Date: day("2024-01-12")}
	require.NoError(t, cache.Set(ctx, key, want))

	got, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Value.Equal(want.Value))
	assert.Equal(t, want.Source, got.Source)
	assert.True(t, got.Date.Equal(want.Date))
}

func TestRedisCache_ExpiresAfterADay(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()
	key := CacheKey("EUR", "USD", day("2024-01-15"))

	require.NoError(t, cache.Set(ctx, key, Rate{Value: decimal.NewFromInt(1), Source: SourceExact}))

	mr.FastForward(23 * time.Hour)
	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok, "rate should still be fresh after 23h")

	mr.FastForward(2 * time.Hour)
	_, ok, err = cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "rate should be stale after 24h")
}

func TestRedisCache_Malformed(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	require.NoError(t, mr.Set("fxrate:bad", "nope"))

	_, _, err := cache.Get(context.Background(), "fxrate:bad")
	assert.Error(t, err)
}

func TestResolver_WithRedisCache(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	store := newMemRateStore()
	store.add("USD", "EUR", "2024-01-10", "0.90")
	r := NewResolver(store, WithCache(cache))
	ctx := context.Background()

	first, err := r.Resolve(ctx, "EUR", "USD", day("2024-01-15"), decimal.NullDecimal{})
	require.NoError(t, err)
	assert.Equal(t, SourceInverse, first.Source)

	second, err := r.Resolve(ctx, "EUR", "USD", day("2024-01-15"), decimal.NullDecimal{})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, second.Source)
	assert.True(t, first.Value.Equal(second.Value))
}
