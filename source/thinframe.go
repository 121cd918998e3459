package source

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/emberune/taleweave/cache"
	"github.com/emberune/taleweave/card"
	"github.com/emberune/taleweave/internal/observability"
)

// DefaultGenerateTimeout bounds a single thin-frame generation. Past
// the deadline the fallback frame ships instead.
const DefaultGenerateTimeout = 30 * time.Second

// FrameGenerator produces a thin frame from a full character card,
// typically by asking an LLM to compress it.
type FrameGenerator interface {
	Generate(ctx context.Context, c *card.MinimalCharacterCard) (*card.ThinFrame, error)
}

// ThinFrameSource caches generated frames. Generation is the only slow,
// paid operation in the engine, so concurrent requests for the same
// character are collapsed into one flight and its result shared.
type ThinFrameSource struct {
	cache      *cache.Cache
	characters *CharacterSource
	generator  FrameGenerator
	logger     *slog.Logger
	timeout    time.Duration
	flights    singleflight.Group
}

// NewThinFrameSource creates a thin frame source. Generated frames are
// permanent for the process lifetime; regeneration is explicit.
func NewThinFrameSource(characters *CharacterSource, generator FrameGenerator, logger *slog.Logger) *ThinFrameSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThinFrameSource{
		cache:      cache.NewPermanent(),
		characters: characters,
		generator:  generator,
		logger:     logger,
		timeout:    DefaultGenerateTimeout,
	}
}

// Get returns an existing frame only: a previously generated one from
// the cache, or one embedded in the character's card extensions. It
// never triggers generation.
func (s *ThinFrameSource) Get(ctx context.Context, characterID string) *card.ThinFrame {
	if cached, ok := s.cache.Get(characterID); ok {
		return cached.(*card.ThinFrame)
	}
	return s.characters.ThinFrame(ctx, characterID)
}

// GetOrGenerate returns the character's frame, generating one when
// neither the cache nor the card extensions have it. Concurrent calls
// for the same character share a single generation; failures and
// timeouts degrade to the deterministic fallback frame, which is cached
// so the miss is not paid again.
func (s *ThinFrameSource) GetOrGenerate(ctx context.Context, characterID string) *card.ThinFrame {
	if frame := s.Get(ctx, characterID); frame != nil {
		return frame
	}

	c := s.characters.Get(ctx, characterID)
	if c == nil {
		return nil
	}

	result, _, _ := s.flights.Do(characterID, func() (any, error) {
		return s.generate(ctx, characterID, c), nil
	})
	return result.(*card.ThinFrame)
}

func (s *ThinFrameSource) generate(ctx context.Context, characterID string, c *card.MinimalCharacterCard) *card.ThinFrame {
	req := observability.NewRequestContext(s.logger, "thin_frame")

	frame := s.callGenerator(ctx, c)
	if !frame.Valid() {
		req.Warn("generated frame failed schema check, using fallback",
			slog.String(observability.LogFieldEntityID, characterID))
		frame = card.FallbackFrame(c.Data.Name, c.Data.Description, c.Data.Personality)
	}

	s.cache.Set(characterID, frame, 0)
	req.Info("thin frame resolved",
		slog.String(observability.LogFieldEntityID, characterID),
		slog.String("frame_source", frame.Source))
	return frame
}

func (s *ThinFrameSource) callGenerator(ctx context.Context, c *card.MinimalCharacterCard) *card.ThinFrame {
	if s.generator == nil {
		return card.FallbackFrame(c.Data.Name, c.Data.Description, c.Data.Personality)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	frame, err := s.generator.Generate(ctx, c)
	if err != nil {
		s.logger.Warn("thin frame generation failed, using fallback",
			"error", err, "character_id", c.Data.Name)
		return card.FallbackFrame(c.Data.Name, c.Data.Description, c.Data.Personality)
	}
	if frame != nil {
		frame.GeneratedAt = time.Now()
		if frame.Source == "" {
			frame.Source = card.FrameSourceGenerated
		}
	}
	return frame
}

// Regenerate drops any cached frame and generates a fresh one, used
// after a character edit changes the underlying card.
func (s *ThinFrameSource) Regenerate(ctx context.Context, characterID string) *card.ThinFrame {
	s.cache.Invalidate(characterID)

	c := s.characters.Refresh(ctx, characterID)
	if c == nil {
		return nil
	}

	result, _, _ := s.flights.Do(characterID, func() (any, error) {
		return s.generate(ctx, characterID, c), nil
	})
	return result.(*card.ThinFrame)
}

// Invalidate drops the cached frame for a character.
func (s *ThinFrameSource) Invalidate(characterID string) {
	s.cache.Invalidate(characterID)
}

// Has reports whether a generated frame is cached for a character.
func (s *ThinFrameSource) Has(characterID string) bool {
	return s.cache.Has(characterID)
}

// Clear drops every cached frame.
func (s *ThinFrameSource) Clear() {
	s.cache.Clear()
}

// Dispose releases the cache and its sweeper.
func (s *ThinFrameSource) Dispose() {
	s.cache.Dispose()
}
