package workflow

import (
	"sync"
	"time"
)

// OverviewCache holds the most recent overview for a short TTL. Every
// committed transition invalidates it, and a value computed before an
// invalidation is never stored.
type OverviewCache struct {
	mu         sync.RWMutex
	ttl        time.Duration
	value      *Overview
	expiration time.Time
	generation uint64
	now        func() time.Time
}

// NewOverviewCache returns nil for a non-positive ttl, which disables caching.
func NewOverviewCache(ttl time.Duration) *OverviewCache {
	if ttl <= 0 {
		return nil
	}
	return &OverviewCache{ttl: ttl, now: time.Now}
}

// Get returns the cached overview and the generation a miss should be
// stored under.
func (c *OverviewCache) Get() (*Overview, uint64, bool) {
	if c == nil {
		return nil, 0, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.value == nil || c.now().After(c.expiration) {
		return nil, c.generation, false
	}
	return c.value.clone(), c.generation, true
}

// Set stores value if no invalidation happened since generation was read.
func (c *OverviewCache) Set(generation uint64, value *Overview) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return
	}
	c.value = value.clone()
	c.expiration = c.now().Add(c.ttl)
}

// Invalidate drops the cached overview.
func (c *OverviewCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.value = nil
}
