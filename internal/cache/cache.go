// Package cache provides the generic LRU wrappers spec.md's cache
// layer describes for query results and catalog summaries, grounded
// on the teacher's CachedEmbedder (internal/embed/cached.go): the same
// hashicorp/golang-lru/v2 cache, generalized from a single
// string-to-[]float32 cache into a reusable generic wrapper any
// component can instantiate over its own key/value types. The
// content-hash payload cache itself lives in
// internal/storage/video (bounded by byte budget rather than entry
// count, since decoded payload sizes vary); this package is for the
// other cache layer spec.md lists: decoded frames, catalog summaries,
// and query results, which are naturally entry-count bounded.
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is used when a non-positive size is requested.
const DefaultSize = 1000

// Cache is a generic, entry-count-bounded LRU.
type Cache[K comparable, V any] struct {
	mu  sync.Mutex
	lru *lru.Cache[K, V]
}

// New creates a Cache holding at most size entries.
func New[K comparable, V any](size int) *Cache[K, V] {
	if size <= 0 {
		size = DefaultSize
	}
	l, _ := lru.New[K, V](size)
	return &Cache[K, V]{lru: l}
}

// Get returns the cached value for key, if present.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

// Add inserts or refreshes key's value, evicting the least recently
// used entry if the cache is at capacity.
func (c *Cache[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, value)
}

// Remove evicts key, if present.
func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Len reports the current number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge empties the cache.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// GetOrLoad returns the cached value for key, computing and caching it
// via load on a miss. load errors are not cached.
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Add(key, v)
	return v, nil
}
