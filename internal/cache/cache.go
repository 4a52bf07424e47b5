// Package cache provides the TTL keyed cache sitting in front of the query
// layer. It is a pure optimisation: removing it changes latency, never
// results. The ingestion orchestrator purges it wholesale after every refresh
// cycle so no pre-refresh snapshot outlives new data.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     any
	createdAt time.Time
}

// Cache is a concurrency-safe in-memory TTL cache.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry

	now func() time.Time
}

// New creates a Cache whose entries expire after ttl.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// GetOrCompute returns the cached value for key when a non-expired entry
// exists. Otherwise it invokes compute synchronously, stores the result and
// returns it. Errors from compute are returned as-is and never cached.
func (c *Cache) GetOrCompute(key string, compute func() (any, error)) (any, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	now := c.now()
	c.mu.RUnlock()

	if ok && now.Sub(e.createdAt) < c.ttl {
		return e.value, nil
	}

	value, err := compute()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = entry{value: value, createdAt: c.now()}
	c.mu.Unlock()
	return value, nil
}

// PurgeAll removes every entry immediately, regardless of age.
func (c *Cache) PurgeAll() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}
