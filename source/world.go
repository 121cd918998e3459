package source

import (
	"context"
	"log/slog"

	"github.com/emberune/taleweave/assemble"
	"github.com/emberune/taleweave/cache"
	"github.com/emberune/taleweave/internal/observability"
)

// WorldFetcher loads raw world JSON from the backend.
type WorldFetcher interface {
	FetchWorld(ctx context.Context, id string) (map[string]any, error)
}

// WorldSource caches world sheets and supports targeted cache patches
// so local state changes (xp gain, movement) do not force a refetch.
type WorldSource struct {
	cache   *cache.Cache
	fetcher WorldFetcher
	logger  *slog.Logger
}

// NewWorldSource creates a world source with a standard cache.
func NewWorldSource(fetcher WorldFetcher, logger *slog.Logger) *WorldSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorldSource{
		cache:   cache.NewStandard(),
		fetcher: fetcher,
		logger:  logger,
	}
}

// Get returns the world context for id, fetching on a miss. Fetch
// failures are logged and return nil, never cached.
func (s *WorldSource) Get(ctx context.Context, id string) *assemble.WorldContext {
	if cached, ok := s.cache.Get(id); ok {
		return cached.(*assemble.WorldContext)
	}

	req := observability.NewRequestContext(s.logger, "world")
	raw, err := s.fetcher.FetchWorld(ctx, id)
	if err != nil {
		req.Error("world fetch failed", err, slog.String(observability.LogFieldEntityID, id))
		return nil
	}

	w := assemble.AssembleWorldContext(id, raw)
	if w == nil {
		return nil
	}

	s.cache.Set(id, w, -1)
	return w
}

// Refresh forces an invalidate-then-fetch.
func (s *WorldSource) Refresh(ctx context.Context, id string) *assemble.WorldContext {
	s.cache.Invalidate(id)
	return s.Get(ctx, id)
}

// UpdateProgression patches only the cached copy after a local state
// change. A miss is a no-op; the next Get fetches fresh data anyway.
func (s *WorldSource) UpdateProgression(id string, progression assemble.Progression) {
	cached, ok := s.cache.Get(id)
	if !ok {
		return
	}

	w := *cached.(*assemble.WorldContext)
	w.Progression = progression
	s.cache.Set(id, &w, -1)
}

// UpdatePlayerPosition patches only the cached copy after movement.
func (s *WorldSource) UpdatePlayerPosition(id string, position assemble.PlayerPosition) {
	cached, ok := s.cache.Get(id)
	if !ok {
		return
	}

	w := *cached.(*assemble.WorldContext)
	w.PlayerPosition = position
	s.cache.Set(id, &w, -1)
}

// Invalidate drops the cached world for id.
func (s *WorldSource) Invalidate(id string) {
	s.cache.Invalidate(id)
}

// Has reports whether a live cached world exists for id.
func (s *WorldSource) Has(id string) bool {
	return s.cache.Has(id)
}

// Clear drops every cached world.
func (s *WorldSource) Clear() {
	s.cache.Clear()
}

// Dispose releases the cache and its sweeper.
func (s *WorldSource) Dispose() {
	s.cache.Dispose()
}
