package video

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// payloadCache is an LRU over reconstructed item bytes keyed by content
// hash, bounded by a total byte budget rather than entry count — the
// teacher's CachedEmbedder (internal/embed/cached.go) bounds by entry
// count because embeddings are fixed-size; decoded memory-item payloads
// vary widely, so eviction here tracks cumulative size instead.
type payloadCache struct {
	mu     sync.Mutex
	lru    *lru.Cache[string, []byte]
	bytes  int64
	budget int64
}

func newPayloadCache(budgetBytes int64) *payloadCache {
	c := &payloadCache{budget: budgetBytes}
	l, _ := lru.NewWithEvict[string, []byte](1<<20, func(_ string, v []byte) {
		c.bytes -= int64(len(v))
	})
	c.lru = l
	return c
}

func (c *payloadCache) Get(hash string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(hash)
}

// Add stores payload under hash, evicting the least recently used
// entries until the budget is satisfied. A payload larger than the
// entire budget is not cached.
func (c *payloadCache) Add(hash string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(payload))
	if size > c.budget {
		return
	}
	if c.lru.Contains(hash) {
		c.lru.Remove(hash)
	}
	for c.bytes+size > c.budget && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
	c.lru.Add(hash, payload)
	c.bytes += size
}

func (c *payloadCache) Remove(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(hash)
}

func (c *payloadCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.bytes = 0
}
