package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type memoryItem struct {
	value      []byte
	expiration time.Time
	lastAccess time.Time
	tags       []string
}

func (m *memoryItem) expired(now time.Time) bool {
	return !m.expiration.IsZero() && now.After(m.expiration)
}

// MemoryProvider keeps items in process. It evicts the least recently used
// item once MaxSize is reached.
type MemoryProvider struct {
	mu        sync.Mutex
	items     map[string]*memoryItem
	tagToKeys map[string]map[string]struct{}
	options   *Options
	hits      atomic.Int64
	misses    atomic.Int64

	now func() time.Time
}

// NewMemoryProvider creates an in-memory provider. nil opts uses a five
// minute TTL and 10000 items.
func NewMemoryProvider(opts *Options) *MemoryProvider {
	if opts == nil {
		opts = defaultOptions()
	}
	return &MemoryProvider{
		items:     make(map[string]*memoryItem),
		tagToKeys: make(map[string]map[string]struct{}),
		options:   opts,
		now:       time.Now,
	}
}

func (m *MemoryProvider) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	now := m.now()
	if !ok || item.expired(now) {
		if ok {
			m.remove(key)
		}
		m.misses.Add(1)
		return nil, false
	}
	item.lastAccess = now
	m.hits.Add(1)
	return item.value, true
}

func (m *MemoryProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.SetWithTags(ctx, key, value, ttl, nil)
}

func (m *MemoryProvider) SetWithTags(_ context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var expiration time.Time
	if ttl = m.options.ttl(ttl); ttl > 0 {
		expiration = now.Add(ttl)
	}

	if _, exists := m.items[key]; exists {
		m.remove(key)
	} else if m.options.MaxSize > 0 && len(m.items) >= m.options.MaxSize {
		m.evictOne(now)
	}

	m.items[key] = &memoryItem{value: value, expiration: expiration, lastAccess: now, tags: tags}
	for _, tag := range tags {
		if m.tagToKeys[tag] == nil {
			m.tagToKeys[tag] = make(map[string]struct{})
		}
		m.tagToKeys[tag][key] = struct{}{}
	}
	return nil
}

func (m *MemoryProvider) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(key)
	return nil
}

func (m *MemoryProvider) DeleteByTag(_ context.Context, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.tagToKeys[tag] {
		m.remove(key)
	}
	delete(m.tagToKeys, tag)
	return nil
}

func (m *MemoryProvider) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*memoryItem)
	m.tagToKeys = make(map[string]map[string]struct{})
	m.hits.Store(0)
	m.misses.Store(0)
	return nil
}

func (m *MemoryProvider) Close() error {
	return m.Clear(context.Background())
}

func (m *MemoryProvider) Stats(_ context.Context) (*CacheStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var valid int64
	for _, item := range m.items {
		if !item.expired(now) {
			valid++
		}
	}
	return &CacheStats{
		Hits:          m.hits.Load(),
		Misses:        m.misses.Load(),
		Keys:          valid,
		ProviderType:  "memory",
		ProviderStats: map[string]any{"capacity": m.options.MaxSize, "tags": len(m.tagToKeys)},
	}, nil
}

// remove drops key and its tag index entries. Callers hold mu.
func (m *MemoryProvider) remove(key string) {
	item, ok := m.items[key]
	if !ok {
		return
	}
	for _, tag := range item.tags {
		if keys, ok := m.tagToKeys[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(m.tagToKeys, tag)
			}
		}
	}
	delete(m.items, key)
}

// evictOne drops an expired item if there is one, otherwise the least
// recently used. Callers hold mu.
func (m *MemoryProvider) evictOne(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for key, item := range m.items {
		if item.expired(now) {
			m.remove(key)
			return
		}
		if oldestKey == "" || item.lastAccess.Before(oldest) {
			oldestKey, oldest = key, item.lastAccess
		}
	}
	if oldestKey != "" {
		m.remove(oldestKey)
	}
}
