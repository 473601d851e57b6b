package cache

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/autoquery/pkg/config"
)

func TestMemoryProviderTags(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(nil)

	require.NoError(t, p.SetWithTags(ctx, "a", []byte("1"), 0, []string{"table:people"}))
	require.NoError(t, p.SetWithTags(ctx, "b", []byte("2"), 0, []string{"table:people", "table:tags"}))
	require.NoError(t, p.Set(ctx, "c", []byte("3"), 0))

	require.NoError(t, p.DeleteByTag(ctx, "table:people"))
	_, ok := p.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = p.Get(ctx, "b")
	assert.False(t, ok)
	v, ok := p.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, []byte("3"), v)

	// b was dropped from its other tag as well
	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Keys)
	assert.Equal(t, 0, stats.ProviderStats["tags"])
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestMemoryProviderExpiryAndEviction(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewMemoryProvider(&Options{DefaultTTL: time.Minute, MaxSize: 2})
	p.now = func() time.Time { return now }

	require.NoError(t, p.Set(ctx, "old", []byte("x"), 0))
	now = now.Add(time.Second)
	require.NoError(t, p.Set(ctx, "new", []byte("y"), time.Hour))
	now = now.Add(time.Second)
	_, ok := p.Get(ctx, "old")
	require.True(t, ok)

	// "new" is now the least recently used
	now = now.Add(time.Second)
	require.NoError(t, p.Set(ctx, "third", []byte("z"), 0))
	_, ok = p.Get(ctx, "new")
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = p.Get(ctx, "old")
	assert.False(t, ok, "default ttl should have expired the item")

	require.NoError(t, p.Clear(ctx))
	stats, _ := p.Stats(ctx)
	assert.Zero(t, stats.Keys)
}

func TestRedisProvider(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	p := NewRedisProvider(client, &Options{DefaultTTL: time.Minute})

	require.NoError(t, p.SetWithTags(ctx, "k1", []byte("one"), 0, []string{"table:people"}))
	require.NoError(t, p.SetWithTags(ctx, "k2", []byte("two"), 0, []string{"table:people"}))
	require.NoError(t, p.Set(ctx, "k3", []byte("three"), 0))
	assert.Equal(t, time.Minute, mr.TTL("k1"))
	assert.True(t, mr.Exists(tagKey("table:people")))

	v, ok := p.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("one"), v)

	require.NoError(t, p.DeleteByTag(ctx, "table:people"))
	assert.False(t, mr.Exists("k1"))
	assert.False(t, mr.Exists("k2"))
	assert.False(t, mr.Exists(tagKey("table:people")))
	assert.True(t, mr.Exists("k3"))
	require.NoError(t, p.DeleteByTag(ctx, "table:unknown"))

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Keys)
	assert.Equal(t, int64(1), stats.Hits)

	// The caller owns the client
	require.NoError(t, p.Close())
	assert.NoError(t, client.Ping(ctx).Err())
}

func TestRedisProviderFromConfig(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	c, err := FromConfig(context.Background(), config.CacheConfig{
		Enabled:  true,
		Provider: "redis",
		TTL:      time.Minute,
		Redis:    config.RedisConfig{Host: mr.Host(), Port: mustPort(t, mr)},
	})
	require.NoError(t, err)
	defer c.Close()
	assert.IsType(t, &RedisProvider{}, c.Provider())

	require.NoError(t, c.Set(context.Background(), "k", map[string]int{"n": 1}, 0, TableTag("People")))
	assert.True(t, mr.Exists(tagKey("table:people")))
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return port
}

func TestFromConfig(t *testing.T) {
	c, err := FromConfig(context.Background(), config.CacheConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = FromConfig(context.Background(), config.CacheConfig{Enabled: true, MaxSize: 5})
	require.NoError(t, err)
	assert.IsType(t, &MemoryProvider{}, c.Provider())

	_, err = FromConfig(context.Background(), config.CacheConfig{Enabled: true, Provider: "disk"})
	assert.Error(t, err)
}

func TestRemember(t *testing.T) {
	ctx := context.Background()
	c := NewCache(NewMemoryProvider(nil), time.Minute)

	calls := 0
	load := func() (CachedAggregates, error) {
		calls++
		return CachedAggregates{Values: map[string]string{"aq_agg_0": "3"}}, nil
	}

	v, hit, err := Remember(ctx, c, "q", []string{"table:people"}, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "3", v.Values["aq_agg_0"])

	v, hit, err = Remember(ctx, c, "q", []string{"table:people"}, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "3", v.Values["aq_agg_0"])
	assert.Equal(t, 1, calls)

	require.NoError(t, InvalidateCacheForTable(ctx, c, "PEOPLE"))
	var out CachedAggregates
	assert.ErrorIs(t, c.Get(ctx, "q", &out), ErrNotFound)

	boom := errors.New("boom")
	_, _, err = Remember(ctx, c, "q", nil, func() (CachedAggregates, error) { return CachedAggregates{}, boom })
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, InvalidateCacheForTable(ctx, nil, "people"))
}

func TestBuildQueryCacheKey(t *testing.T) {
	a := BuildQueryCacheKey("", "SELECT COUNT(*) FROM people WHERE age > ?", []interface{}{30})
	assert.Len(t, a, 64)
	assert.Equal(t, a, BuildQueryCacheKey("", "SELECT COUNT(*) FROM people WHERE age > ?", []interface{}{30}))
	assert.NotEqual(t, a, BuildQueryCacheKey("", "SELECT COUNT(*) FROM people WHERE age > ?", []interface{}{31}))
	assert.NotEqual(t, a, BuildQueryCacheKey("reporting", "SELECT COUNT(*) FROM people WHERE age > ?", []interface{}{30}))
	assert.Equal(t, "query_aggregate:"+a, GetQueryAggregateCacheKey(a))
	assert.Equal(t, "table:sales.orders", TableTag("Sales.Orders"))
}

func TestMemcacheKeyIndexEncoding(t *testing.T) {
	assert.Nil(t, decodeKeys(nil))
	keys := []string{"query_aggregate:a", "query_aggregate:b"}
	assert.Equal(t, keys, decodeKeys(encodeKeys(keys)))

	assert.Equal(t, int32(0), expirationSeconds(0))
	assert.Equal(t, int32(1), expirationSeconds(10*time.Millisecond))
	assert.Equal(t, int32(300), expirationSeconds(5*time.Minute))
}
