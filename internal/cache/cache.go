// Package cache implements the keyed data-fetch cache the synchronization
// layer patches and invalidates as stream payloads arrive. Entries carry tags
// so whole families (portfolio, positions, order history) can be dropped when
// a trade executes.
package cache

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

type entry struct {
	value    any
	tags     map[string]struct{}
	storedAt time.Time
}

// Updater transforms a cached value in place. Returning the same result for
// the same input keeps patches idempotent under repeated delivery.
type Updater func(any) any

// Cache is a tag-indexed key/value cache.
type Cache struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty cache.
func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		logger:  logger.With("component", "cache"),
		entries: make(map[string]*entry),
	}
}

// Set stores a value under a key with the given tags, replacing any previous
// entry.
func (c *Cache) Set(key string, value any, tags ...string) {
	e := &entry{
		value:    value,
		tags:     make(map[string]struct{}, len(tags)),
		storedAt: time.Now(),
	}
	for _, t := range tags {
		e.tags[t] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
}

// Get returns the cached value for a key.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Invalidate removes every entry carrying at least one of the given tags and
// returns the number of entries removed. Invalidating an absent tag is a
// no-op, so repeated invalidation is safe.
func (c *Cache) Invalidate(tags ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		for _, t := range tags {
			if _, ok := e.tags[t]; ok {
				delete(c.entries, key)
				removed++
				break
			}
		}
	}

	if removed > 0 {
		c.logger.Debug("invalidated cache entries", "tags", tags, "removed", removed)
	}
	return removed
}

// InvalidateKey removes a single entry.
func (c *Cache) InvalidateKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Patch applies an updater to the cached value for a key. Patching an absent
// key is a no-op and returns false; the next read-through fetch repopulates
// it.
func (c *Cache) Patch(key string, update Updater) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	e.value = update(e.value)
	return true
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns all cached keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
