package embedding

import (
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
)

// EmbeddingCache holds recent text embeddings, least recently used evicted first.
// Keys are compared after trimming surrounding whitespace. Values are copied on
// the way in and out so callers may modify what they hold.
type EmbeddingCache struct {
	mu     sync.Mutex
	lru    *lru.Cache // nil when disabled
	hits   uint64
	misses uint64
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// NewEmbeddingCache creates a cache of at most capacity entries. A capacity of
// zero or less disables caching.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	c := &EmbeddingCache{}
	if capacity > 0 {
		c.lru = lru.New(capacity)
	}
	return c
}

// Get returns a copy of the embedding cached for text.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru != nil {
		if v, ok := c.lru.Get(cacheKey(text)); ok {
			c.hits++
			return append([]float32(nil), v.([]float32)...), true
		}
	}
	c.misses++
	return nil, false
}

// Set caches a copy of embedding for text.
func (c *EmbeddingCache) Set(text string, embedding []float32) {
	if c.lru == nil {
		return
	}
	stored := append([]float32(nil), embedding...)
	c.mu.Lock()
	c.lru.Add(cacheKey(text), stored)
	c.mu.Unlock()
}

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// Stats returns entry and lookup counts.
func (c *EmbeddingCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := CacheStats{Hits: c.hits, Misses: c.misses}
	if c.lru != nil {
		s.Entries = c.lru.Len()
	}
	return s
}

func cacheKey(text string) string {
	return strings.TrimSpace(text)
}
