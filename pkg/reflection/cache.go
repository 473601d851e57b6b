package reflection

import "sync/atomic"

// Cache is an append-only map that readers access without locking.
// Writers copy the current map, add their entry and swap the copy in with a
// compare-and-swap, retrying when another writer got there first.
type Cache[K comparable, V any] struct {
	m atomic.Pointer[map[K]V]
}

// Load returns the cached value for key.
func (c *Cache[K, V]) Load(key K) (V, bool) {
	if p := c.m.Load(); p != nil {
		v, ok := (*p)[key]
		return v, ok
	}
	var zero V
	return zero, false
}

// GetOrAdd returns the cached value for key, building and publishing it on a miss.
// When two callers race, the value that was published first wins and is returned to both.
func (c *Cache[K, V]) GetOrAdd(key K, build func() (V, error)) (V, error) {
	if v, ok := c.Load(key); ok {
		return v, nil
	}
	v, err := build()
	if err != nil {
		return v, err
	}
	for {
		current := c.m.Load()
		size := 0
		if current != nil {
			if existing, ok := (*current)[key]; ok {
				return existing, nil
			}
			size = len(*current)
		}
		next := make(map[K]V, size+1)
		if current != nil {
			for k, existing := range *current {
				next[k] = existing
			}
		}
		next[key] = v
		if c.m.CompareAndSwap(current, &next) {
			return v, nil
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	if p := c.m.Load(); p != nil {
		return len(*p)
	}
	return 0
}
