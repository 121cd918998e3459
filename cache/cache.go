// Package cache provides a generic keyed store with per-entry TTL,
// max-size eviction and an optional background sweep. It carries no
// domain knowledge; every source owns one instance.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is a keyed in-memory store with per-entry TTL.
//
// A TTL of zero means the entry never expires and is removed only by
// explicit invalidation. Expired entries are removed lazily on Get and
// proactively by the sweep goroutine when one is configured.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry

	maxEntries int
	defaultTTL time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
	sweeper bool
}

type entry struct {
	value      any
	insertedAt time.Time
	expiresAt  time.Time // zero time = never expires
}

// Options configures a Cache.
type Options struct {
	// MaxEntries bounds the cache size (default: 1000). When a Set would
	// exceed it, the single oldest-by-insertion entry is evicted first.
	MaxEntries int
	// DefaultTTL applies when Set is called with a negative ttl.
	// Zero means entries never expire by default.
	DefaultTTL time.Duration
	// SweepInterval enables a background goroutine that removes expired
	// entries even without access. Zero disables the sweeper.
	SweepInterval time.Duration
}

// New creates a cache. Dispose must be called on teardown when a sweep
// interval is configured, otherwise the sweep goroutine leaks.
func New(opts Options) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		entries:    make(map[string]*entry),
		maxEntries: opts.MaxEntries,
		defaultTTL: opts.DefaultTTL,
		ctx:        ctx,
		cancel:     cancel,
	}

	if opts.SweepInterval > 0 {
		c.sweeper = true
		c.wg.Add(1)
		go c.sweepLoop(opts.SweepInterval)
	}

	return c
}

// Get retrieves a value. An entry past its TTL behaves identically to a
// miss and is deleted, so callers never observe stale reads.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if e.expired(time.Now()) {
		delete(c.entries, key)
		return nil, false
	}

	return e.value, true
}

// Set stores a value with the given TTL. ttl == 0 means never expires;
// a negative ttl falls back to the cache default.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl < 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Updating an existing key keeps the size constant, no eviction needed.
	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	c.entries[key] = &entry{
		value:      value,
		insertedAt: now,
		expiresAt:  expiresAt,
	}
}

// Has reports whether a live entry exists for key.
func (c *Cache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Invalidate removes a single entry.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateWhere removes every entry whose key matches the predicate.
// Returns the number of entries removed.
func (c *Cache) InvalidateWhere(pred func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key := range c.entries {
		if pred(key) {
			delete(c.entries, key)
			count++
		}
	}
	return count
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Cleanup removes all expired entries and returns the number removed.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	count := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			count++
		}
	}
	return count
}

// Size returns the number of entries, expired ones included until swept.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Dispose stops the background sweeper and releases the cache. Safe to
// call more than once.
func (c *Cache) Dispose() {
	c.once.Do(func() {
		c.cancel()
		c.wg.Wait()
		c.Clear()
	})
}

// evictOldest removes the single oldest-by-insertion entry.
// Must be called with the lock held.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time

	for key, e := range c.entries {
		if oldestKey == "" || e.insertedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.insertedAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// sweepLoop periodically removes expired entries.
func (c *Cache) sweepLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}
