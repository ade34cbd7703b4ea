// Package inmemory provides a thread-safe in-memory key set cache.
package inmemory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/tinywideclouds/go-admob-ssv/pkg/ssv"
)

type entry struct {
	set       ssv.PublicKeySet
	expiresAt time.Time
}

// Cache is a concrete, thread-safe in-memory implementation of the ssv.KeyCache interface.
type Cache struct {
	sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// New creates a new in-memory key set cache.
func New() *Cache {
	return &Cache{entries: make(map[string]entry), now: time.Now}
}

// NewWithClock creates a cache that reads time from now. Used by tests to
// move past an entry's expiry.
func NewWithClock(now func() time.Time) *Cache {
	c := New()
	c.now = now
	return c
}

// GetKeySet returns a copy of the snapshot stored under cacheKey.
// Expired entries are reported as not found.
func (c *Cache) GetKeySet(ctx context.Context, cacheKey string) (ssv.PublicKeySet, bool, error) {
	c.RLock()
	defer c.RUnlock()
	e, ok := c.entries[cacheKey]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return maps.Clone(e.set), true, nil
}

// SetKeySet replaces the snapshot stored under cacheKey.
func (c *Cache) SetKeySet(ctx context.Context, cacheKey string, set ssv.PublicKeySet, ttl time.Duration) error {
	c.Lock()
	defer c.Unlock()
	c.entries[cacheKey] = entry{
		set:       maps.Clone(set),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Delete drops the entry stored under cacheKey.
func (c *Cache) Delete(cacheKey string) {
	c.Lock()
	defer c.Unlock()
	delete(c.entries, cacheKey)
}

var _ ssv.KeyCache = (*Cache)(nil)
