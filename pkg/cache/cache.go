package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is an in-process TTL cache backed by ristretto. Every entry costs 1,
// so capacity is a number of entries.
type Cache[V any] struct {
	c *ristretto.Cache[string, V]
}

// New creates a cache holding up to maxEntries values
func New[V any](maxEntries int64) (*Cache[V], error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, V]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache[V]{c: c}, nil
}

// Set stores a value with a given TTL. The write is applied before Set
// returns, so an immediate Get observes it.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.c.SetWithTTL(key, value, 1, ttl)
	c.c.Wait()
}

// Get retrieves a value if it is present and unexpired
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.c.Get(key)
}

// Delete removes a key from the cache
func (c *Cache[V]) Delete(key string) {
	c.c.Del(key)
}

// Clear removes all items from the cache
func (c *Cache[V]) Clear() {
	c.c.Clear()
}

// Close releases the cache's background goroutines
func (c *Cache[V]) Close() {
	c.c.Close()
}
