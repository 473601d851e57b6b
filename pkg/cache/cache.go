// Package cache stores computed query results behind a pluggable provider
// and invalidates them by table.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bitechdev/autoquery/pkg/config"
	"github.com/bitechdev/autoquery/pkg/logger"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("cache: key not found")

// Cache serializes values to JSON on top of a Provider.
type Cache struct {
	provider Provider
	ttl      time.Duration
}

// NewCache creates a cache over provider. ttl applies to every Set that
// passes zero.
func NewCache(provider Provider, ttl time.Duration) *Cache {
	return &Cache{provider: provider, ttl: ttl}
}

// FromConfig builds the provider named by cfg. It returns nil, nil when the
// cache is disabled.
func FromConfig(ctx context.Context, cfg config.CacheConfig) (*Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	opts := &Options{DefaultTTL: cfg.TTL, MaxSize: cfg.MaxSize}

	var provider Provider
	switch cfg.Provider {
	case "", "memory":
		provider = NewMemoryProvider(opts)
	case "redis":
		p, err := NewRedisProviderFromConfig(ctx, cfg.Redis, opts)
		if err != nil {
			return nil, err
		}
		provider = p
	case "memcache":
		p, err := NewMemcacheProvider(&MemcacheConfig{Servers: cfg.MemcacheServers, Options: opts})
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		return nil, fmt.Errorf("unknown cache provider %q", cfg.Provider)
	}
	return NewCache(provider, cfg.TTL), nil
}

// Provider returns the underlying provider.
func (c *Cache) Provider() Provider { return c.provider }

// Get decodes the value of key into dest.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	data, ok := c.provider.Get(ctx, key)
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to deserialize %s: %w", key, err)
	}
	return nil
}

// Set encodes value and stores it under key and tags.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration, tags ...string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", key, err)
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	if len(tags) == 0 {
		return c.provider.Set(ctx, key, data, ttl)
	}
	return c.provider.SetWithTags(ctx, key, data, ttl, tags)
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.provider.Delete(ctx, key)
}

// DeleteByTag removes every key stored under tag.
func (c *Cache) DeleteByTag(ctx context.Context, tag string) error {
	return c.provider.DeleteByTag(ctx, tag)
}

// Clear removes all items.
func (c *Cache) Clear(ctx context.Context) error {
	return c.provider.Clear(ctx)
}

func (c *Cache) Stats(ctx context.Context) (*CacheStats, error) {
	return c.provider.Stats(ctx)
}

func (c *Cache) Close() error {
	return c.provider.Close()
}

// Remember returns the cached value of key, or runs loader, stores its result
// under tags and returns it. hit reports whether the cache answered. A failed
// store is logged, not returned.
func Remember[T any](ctx context.Context, c *Cache, key string, tags []string, loader func() (T, error)) (value T, hit bool, err error) {
	if err := c.Get(ctx, key, &value); err == nil {
		return value, true, nil
	}
	value, err = loader()
	if err != nil {
		return value, false, err
	}
	if err := c.Set(ctx, key, value, 0, tags...); err != nil {
		logger.Warn("Failed to cache %s: %v", key, err)
	}
	return value, false, nil
}
