package source

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/emberune/taleweave/cache"
	"github.com/emberune/taleweave/card"
	"github.com/emberune/taleweave/internal/observability"
)

// CharacterFetcher loads raw character JSON from the backend.
type CharacterFetcher interface {
	FetchCharacter(ctx context.Context, id string) (map[string]any, error)
}

// CharacterSource caches character cards. Character data is stable, so
// it lives in the long cache and is refreshed explicitly after edits.
type CharacterSource struct {
	cache   *cache.Cache
	fetcher CharacterFetcher
	logger  *slog.Logger
}

// NewCharacterSource creates a character source with a long-lived cache.
func NewCharacterSource(fetcher CharacterFetcher, logger *slog.Logger) *CharacterSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CharacterSource{
		cache:   cache.NewLongLived(),
		fetcher: fetcher,
		logger:  logger,
	}
}

// Get returns the cached card for id, fetching and normalizing on a
// miss. Fetch failures are logged and return nil; a failure is never
// cached.
func (s *CharacterSource) Get(ctx context.Context, id string) *card.MinimalCharacterCard {
	if cached, ok := s.cache.Get(id); ok {
		return cached.(*card.MinimalCharacterCard)
	}

	req := observability.NewRequestContext(s.logger, "character")
	raw, err := s.fetcher.FetchCharacter(ctx, id)
	if err != nil {
		req.Error("character fetch failed", err, slog.String(observability.LogFieldEntityID, id))
		return nil
	}

	c := NormalizeCard(raw)
	if c == nil {
		req.Warn("character response had no usable card", slog.String(observability.LogFieldEntityID, id))
		return nil
	}

	s.cache.Set(id, c, -1)
	return c
}

// Refresh forces an invalidate-then-fetch, used after a character edit.
func (s *CharacterSource) Refresh(ctx context.Context, id string) *card.MinimalCharacterCard {
	s.cache.Invalidate(id)
	return s.Get(ctx, id)
}

// ThinFrame returns the schema-valid frame embedded in the character's
// extensions, or nil.
func (s *CharacterSource) ThinFrame(ctx context.Context, id string) *card.ThinFrame {
	c := s.Get(ctx, id)
	if c == nil {
		return nil
	}
	return card.FrameFromExtensions(c.Data.Extensions)
}

// Invalidate drops the cached card for id.
func (s *CharacterSource) Invalidate(id string) {
	s.cache.Invalidate(id)
}

// Has reports whether a live cached card exists for id.
func (s *CharacterSource) Has(id string) bool {
	return s.cache.Has(id)
}

// Clear drops every cached card.
func (s *CharacterSource) Clear() {
	s.cache.Clear()
}

// Dispose releases the cache and its sweeper.
func (s *CharacterSource) Dispose() {
	s.cache.Dispose()
}

// NormalizeCard accepts the three shapes the backend may answer with —
// wrapped-with-spec, nested-data, flat — and produces one card. Returns
// nil when no name can be resolved.
func NormalizeCard(raw map[string]any) *card.MinimalCharacterCard {
	if raw == nil {
		return nil
	}

	payload := raw
	spec, _ := raw["spec"].(string)
	if data, ok := raw["data"].(map[string]any); ok {
		payload = data
	} else {
		spec = ""
	}

	// Round-trip through JSON so payload fields land in the typed card
	// without per-field copying.
	var data card.CardData
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(encoded, &data); err != nil {
		return nil
	}
	if data.Name == "" {
		return nil
	}
	if data.Extensions == nil {
		data.Extensions = map[string]any{}
	}

	c := &card.MinimalCharacterCard{
		Spec:        card.CurrentSpec,
		SpecVersion: card.CurrentSpecVersion,
		Data:        data,
	}
	if spec != "" {
		c.Spec = spec
		if version, ok := raw["spec_version"].(string); ok && version != "" {
			c.SpecVersion = version
		}
	}
	return c
}
