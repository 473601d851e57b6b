package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheProvider stores items in memcached. Tags are index items holding
// newline separated keys, updated with compare-and-swap.
type MemcacheProvider struct {
	client  *memcache.Client
	options *Options
	hits    atomic.Int64
	misses  atomic.Int64
}

// MemcacheConfig contains Memcache-specific configuration.
type MemcacheConfig struct {
	// Servers defaults to localhost:11211
	Servers      []string
	MaxIdleConns int
	Timeout      time.Duration
	Options      *Options
}

// casRetries bounds the compare-and-swap loop of a tag index update.
const casRetries = 5

// NewMemcacheProvider connects to the configured servers and pings them.
func NewMemcacheProvider(cfg *MemcacheConfig) (*MemcacheProvider, error) {
	if cfg == nil {
		cfg = &MemcacheConfig{}
	}
	if len(cfg.Servers) == 0 {
		cfg.Servers = []string{"localhost:11211"}
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if cfg.Options == nil {
		cfg.Options = defaultOptions()
	}

	client := memcache.New(cfg.Servers...)
	client.MaxIdleConns = cfg.MaxIdleConns
	client.Timeout = cfg.Timeout
	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to Memcache: %w", err)
	}
	return &MemcacheProvider{client: client, options: cfg.Options}, nil
}

func (m *MemcacheProvider) Get(_ context.Context, key string) ([]byte, bool) {
	item, err := m.client.Get(key)
	if err != nil {
		m.misses.Add(1)
		return nil, false
	}
	m.hits.Add(1)
	return item.Value, true
}

func (m *MemcacheProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return m.client.Set(&memcache.Item{Key: key, Value: value, Expiration: expirationSeconds(m.options.ttl(ttl))})
}

func (m *MemcacheProvider) SetWithTags(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	if err := m.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	for _, tag := range tags {
		if err := m.index(tag, key); err != nil {
			return fmt.Errorf("index tag %s: %w", tag, err)
		}
	}
	return nil
}

// index appends key to the index item of tag.
func (m *MemcacheProvider) index(tag, key string) error {
	for i := 0; i < casRetries; i++ {
		item, err := m.client.Get(tagKey(tag))
		if errors.Is(err, memcache.ErrCacheMiss) {
			err = m.client.Add(&memcache.Item{Key: tagKey(tag), Value: encodeKeys([]string{key})})
			if errors.Is(err, memcache.ErrNotStored) {
				continue
			}
			return err
		}
		if err != nil {
			return err
		}
		keys := decodeKeys(item.Value)
		for _, k := range keys {
			if k == key {
				return nil
			}
		}
		item.Value = encodeKeys(append(keys, key))
		err = m.client.CompareAndSwap(item)
		if errors.Is(err, memcache.ErrCASConflict) || errors.Is(err, memcache.ErrNotStored) {
			continue
		}
		return err
	}
	return fmt.Errorf("tag index %s kept changing", tag)
}

func (m *MemcacheProvider) Delete(_ context.Context, key string) error {
	if err := m.client.Delete(key); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return err
	}
	return nil
}

func (m *MemcacheProvider) DeleteByTag(ctx context.Context, tag string) error {
	item, err := m.client.Get(tagKey(tag))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, key := range decodeKeys(item.Value) {
		if err := m.Delete(ctx, key); err != nil {
			return err
		}
	}
	return m.Delete(ctx, tagKey(tag))
}

func (m *MemcacheProvider) Clear(_ context.Context) error {
	return m.client.FlushAll()
}

// Close is a no-op; idle connections are dropped by the client.
func (m *MemcacheProvider) Close() error {
	return nil
}

// Stats reports the counters of this process only; memcached keeps no
// per-client key count.
func (m *MemcacheProvider) Stats(_ context.Context) (*CacheStats, error) {
	return &CacheStats{
		Hits:         m.hits.Load(),
		Misses:       m.misses.Load(),
		ProviderType: "memcache",
	}, nil
}

func expirationSeconds(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 0
	}
	if s := int32(ttl / time.Second); s > 0 {
		return s
	}
	return 1
}

func encodeKeys(keys []string) []byte {
	return []byte(strings.Join(keys, "\n"))
}

func decodeKeys(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	return strings.Split(string(b), "\n")
}
