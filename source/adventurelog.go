package source

import (
	"context"
	"log/slog"

	"github.com/emberune/taleweave/assemble"
	"github.com/emberune/taleweave/cache"
	"github.com/emberune/taleweave/internal/observability"
)

// DefaultRecentSummaries caps how many past-room summaries feed the
// prompt. More than a handful adds tokens without adding recall.
const DefaultRecentSummaries = 5

// AdventureLogFetcher loads raw journey-log JSON from the backend.
type AdventureLogFetcher interface {
	FetchAdventureLog(ctx context.Context, worldID, userID string) ([]map[string]any, error)
}

// AdventureLogSource caches the world+user scoped journey log. Entries
// are appended on the backend as the player moves between rooms, so the
// cache is short and keyed by the composite "world:user".
type AdventureLogSource struct {
	cache   *cache.Cache
	fetcher AdventureLogFetcher
	logger  *slog.Logger
}

// NewAdventureLogSource creates an adventure log source with a
// short-lived cache.
func NewAdventureLogSource(fetcher AdventureLogFetcher, logger *slog.Logger) *AdventureLogSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdventureLogSource{
		cache:   cache.NewShortLived(),
		fetcher: fetcher,
		logger:  logger,
	}
}

// Get returns the journey log for a world+user pair, fetching on a
// miss. Fetch failures are logged and return nil, never cached.
func (s *AdventureLogSource) Get(ctx context.Context, worldID, userID string) *assemble.AdventureLogContext {
	key := JoinKey(worldID, userID)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*assemble.AdventureLogContext)
	}

	req := observability.NewRequestContext(s.logger, "adventure_log")
	raw, err := s.fetcher.FetchAdventureLog(ctx, worldID, userID)
	if err != nil {
		req.Error("adventure log fetch failed", err, slog.String(observability.LogFieldEntityID, key))
		return nil
	}

	log := assemble.AssembleAdventureLogContext(worldID, userID, raw)
	s.cache.Set(key, log, -1)
	return log
}

// Refresh forces an invalidate-then-fetch, used after the backend
// records a new room visit.
func (s *AdventureLogSource) Refresh(ctx context.Context, worldID, userID string) *assemble.AdventureLogContext {
	s.cache.Invalidate(JoinKey(worldID, userID))
	return s.Get(ctx, worldID, userID)
}

// RecentSummaries returns the last few log entries, excluding the room
// the player currently occupies: the current room is described live by
// the room context, not by its old summary.
func (s *AdventureLogSource) RecentSummaries(ctx context.Context, worldID, userID, excludeRoomID string) []assemble.AdventureLogEntry {
	log := s.Get(ctx, worldID, userID)
	if log == nil {
		return nil
	}

	recent := make([]assemble.AdventureLogEntry, 0, DefaultRecentSummaries)
	for i := len(log.Entries) - 1; i >= 0 && len(recent) < DefaultRecentSummaries; i-- {
		if log.Entries[i].RoomID == excludeRoomID {
			continue
		}
		recent = append(recent, log.Entries[i])
	}

	// Walked newest-to-oldest above; restore chronological order.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent
}

// Invalidate drops the cached log for a world+user pair.
func (s *AdventureLogSource) Invalidate(worldID, userID string) {
	s.cache.Invalidate(JoinKey(worldID, userID))
}

// Has reports whether a live cached log exists for a world+user pair.
func (s *AdventureLogSource) Has(worldID, userID string) bool {
	return s.cache.Has(JoinKey(worldID, userID))
}

// Clear drops every cached log.
func (s *AdventureLogSource) Clear() {
	s.cache.Clear()
}

// Dispose releases the cache and its sweeper.
func (s *AdventureLogSource) Dispose() {
	s.cache.Dispose()
}
