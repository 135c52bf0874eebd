// Package destinations keeps the carrier's doorstep destinations keyed by
// lowercased name.
package destinations

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Cache stores the whole destination table. Replace always swaps the full table.
type Cache interface {
	Replace(ctx context.Context, table map[string]int64, ttl time.Duration) error
	Lookup(ctx context.Context, name string) (int64, bool, error)
	All(ctx context.Context) (map[string]int64, error)
	Clear(ctx context.Context) error
}

// Normalize is the cache key for a destination or city name.
func Normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu        sync.RWMutex
	table     map[string]int64
	expiresAt time.Time
	now       func() time.Time
}

func NewMemoryCache() *MemoryCache { return &MemoryCache{now: time.Now} }

// SetClock replaces the time source, for tests.
func (c *MemoryCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryCache) Replace(ctx context.Context, table map[string]int64, ttl time.Duration) error {
	cp := make(map[string]int64, len(table))
	for k, v := range table {
		cp[k] = v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = cp
	c.expiresAt = c.now().Add(ttl)
	return nil
}

func (c *MemoryCache) live() bool { return c.table != nil && c.now().Before(c.expiresAt) }

func (c *MemoryCache) Lookup(ctx context.Context, name string) (int64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.live() {
		return 0, false, nil
	}
	id, ok := c.table[Normalize(name)]
	return id, ok, nil
}

func (c *MemoryCache) All(ctx context.Context) (map[string]int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := map[string]int64{}
	if !c.live() {
		return out, nil
	}
	for k, v := range c.table {
		out[k] = v
	}
	return out, nil
}

func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = nil
	return nil
}
