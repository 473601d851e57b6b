package cache

import (
	"context"
	"time"
)

// Provider is a byte store with expiry and tag based invalidation.
type Provider interface {
	// Get returns nil, false when key is missing or expired.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores value for ttl. A zero ttl uses the provider default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetWithTags is Set that also indexes key under every tag.
	SetWithTags(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error

	Delete(ctx context.Context, key string) error

	// DeleteByTag removes every key indexed under tag.
	DeleteByTag(ctx context.Context, tag string) error

	Clear(ctx context.Context) error

	Close() error

	Stats(ctx context.Context) (*CacheStats, error)
}

// CacheStats contains cache statistics.
type CacheStats struct {
	Hits          int64          `json:"hits"`
	Misses        int64          `json:"misses"`
	Keys          int64          `json:"keys"`
	ProviderType  string         `json:"provider_type"`
	ProviderStats map[string]any `json:"provider_stats,omitempty"`
}

// Options contains configuration options for cache providers.
type Options struct {
	// DefaultTTL applies when Set is called with a zero ttl.
	DefaultTTL time.Duration

	// MaxSize bounds the in-memory provider. Zero is unbounded.
	MaxSize int
}

func (o *Options) ttl(ttl time.Duration) time.Duration {
	if ttl == 0 && o != nil {
		return o.DefaultTTL
	}
	return ttl
}

func defaultOptions() *Options {
	return &Options{DefaultTTL: 5 * time.Minute, MaxSize: 10000}
}

func tagKey(tag string) string { return "cache:tag:" + tag }
