package storage

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// readCache is the bounded LRU in front of the engine. It is never
// authoritative: a miss falls through to the engine, and writes refresh or
// invalidate the entry.
type readCache struct {
	entries *lru.Cache[string, []byte]
	hits    atomic.Uint64
	misses  atomic.Uint64
}

func newReadCache(maxSize int) (*readCache, error) {
	if maxSize <= 0 {
		maxSize = 1
	}
	entries, err := lru.New[string, []byte](maxSize)
	if err != nil {
		return nil, err
	}
	return &readCache{entries: entries}, nil
}

// get returns the cached value and records the hit or miss.
func (c *readCache) get(key string) ([]byte, bool) {
	if v, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return v, true
	}
	c.misses.Add(1)
	return nil, false
}

// put refreshes an entry after a read or write.
func (c *readCache) put(key string, value []byte) {
	c.entries.Add(key, value)
}

// remove invalidates an entry after a delete.
func (c *readCache) remove(key string) {
	c.entries.Remove(key)
}

// clear drops every entry and resets the counters.
func (c *readCache) clear() {
	c.entries.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}

// hitRate returns hits / (hits + misses), or 0 before any lookup.
func (c *readCache) hitRate() float64 {
	hits := c.hits.Load()
	misses := c.misses.Load()
	if hits+misses == 0 {
		return 0.0
	}
	return float64(hits) / float64(hits+misses)
}
