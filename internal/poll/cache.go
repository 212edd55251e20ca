package poll

import "sync"

// Cache holds the latest result per key. Entries are replaced wholesale and
// treated as immutable once stored; readers receive copies.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// NewCache returns an empty cache.
func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{entries: make(map[K]V)}
}

// Get returns the entry stored under key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.entries[key]
	return value, ok
}

// Put stores value under key, replacing any previous entry.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// PutAll merges entries into the cache. Keys not present in entries keep
// their current value.
func (c *Cache[K, V]) PutAll(entries map[K]V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, value := range entries {
		c.entries[key] = value
	}
}

// Snapshot returns an independent copy of the cache contents.
func (c *Cache[K, V]) Snapshot() map[K]V {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make(map[K]V, len(c.entries))
	for key, value := range c.entries {
		snapshot[key] = value
	}
	return snapshot
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
