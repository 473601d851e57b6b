package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bitechdev/autoquery/pkg/config"
)

// RedisProvider stores items as plain keys and keeps one set per tag.
type RedisProvider struct {
	client  *redis.Client
	options *Options
	owned   bool
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewRedisProvider wraps an existing client. The caller keeps ownership of
// client; Close does not close it.
func NewRedisProvider(client *redis.Client, opts *Options) *RedisProvider {
	if opts == nil {
		opts = defaultOptions()
	}
	return &RedisProvider{client: client, options: opts}
}

// NewRedisProviderFromConfig connects to the server described by cfg and
// pings it.
func NewRedisProviderFromConfig(ctx context.Context, cfg config.RedisConfig, opts *Options) (*RedisProvider, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6379
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	p := NewRedisProvider(client, opts)
	p.owned = true
	return p, nil
}

func (r *RedisProvider) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		r.misses.Add(1)
		return nil, false
	}
	r.hits.Add(1)
	return val, true
}

func (r *RedisProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, r.options.ttl(ttl)).Err()
}

func (r *RedisProvider) SetWithTags(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	ttl = r.options.ttl(ttl)
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, value, ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, tagKey(tag), key)
		// The set outlives its members so a late DeleteByTag still finds them
		if ttl > 0 {
			pipe.Expire(ctx, tagKey(tag), ttl+time.Hour)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisProvider) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisProvider) DeleteByTag(ctx context.Context, tag string) error {
	keys, err := r.client.SMembers(ctx, tagKey(tag)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	pipe := r.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, tagKey(tag))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisProvider) Clear(ctx context.Context) error {
	return r.client.FlushDB(ctx).Err()
}

func (r *RedisProvider) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}

func (r *RedisProvider) Stats(ctx context.Context) (*CacheStats, error) {
	size, err := r.client.DBSize(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get DB size: %w", err)
	}
	return &CacheStats{
		Hits:         r.hits.Load(),
		Misses:       r.misses.Load(),
		Keys:         size,
		ProviderType: "redis",
	}, nil
}
