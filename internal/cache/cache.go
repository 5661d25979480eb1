// Package cache provides a small in-memory TTL cache.
//
// Staleness is evaluated at read time against a caller-supplied max age;
// there is no background eviction timer. Entries can still be read past
// their age via GetStale, which callers use as a last resort when a
// refetch fails.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a mutex-guarded map of values with store timestamps.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	now     func() time.Time
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		now:     time.Now,
	}
}

// Set stores value under key, resetting its age.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, storedAt: c.now()}
}

// Get returns the value for key if it was stored within maxAge.
func (c *Cache[V]) Get(key string, maxAge time.Duration) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.storedAt) > maxAge {
		var zero V
		return zero, false
	}
	return e.value, true
}

// GetStale returns the value for key regardless of age.
func (c *Cache[V]) GetStale(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Age returns how long ago key was stored.
func (c *Cache[V]) Age(key string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	return c.now().Sub(e.storedAt), true
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
