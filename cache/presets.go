package cache

import "time"

// Presets mirror the lifetimes of the data each source handles. Volatile
// per-transition state (room instance, session, adventure log) lives in a
// short cache, card data in a standard one, stable character data in a
// long one. Permanent caches expire nothing and run no sweeper; entries
// are removed only by explicit invalidation.

// NewShortLived returns a small cache for volatile per-transition data.
func NewShortLived() *Cache {
	return New(Options{
		MaxEntries:    50,
		DefaultTTL:    30 * time.Second,
		SweepInterval: 15 * time.Second,
	})
}

// NewStandard returns a cache for world and room card data.
func NewStandard() *Cache {
	return New(Options{
		MaxEntries:    200,
		DefaultTTL:    5 * time.Minute,
		SweepInterval: time.Minute,
	})
}

// NewLongLived returns a cache for stable character and thin-frame data.
func NewLongLived() *Cache {
	return New(Options{
		MaxEntries:    500,
		DefaultTTL:    30 * time.Minute,
		SweepInterval: 5 * time.Minute,
	})
}

// NewPermanent returns a manually-managed cache: no TTL, no sweeper.
func NewPermanent() *Cache {
	return New(Options{
		MaxEntries: 1000,
	})
}
