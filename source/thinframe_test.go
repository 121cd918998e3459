package source

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberune/taleweave/card"
)

func newThinFrameFixture(t *testing.T, generator FrameGenerator) (*MockBackend, *ThinFrameSource) {
	t.Helper()
	backend := NewMockBackend()
	backend.Characters["char-1"] = map[string]any{
		"name":        "Mira",
		"description": "A wandering cartographer. She maps forgotten roads. Nobody knows why.",
		"personality": "curious, restless",
	}
	characters := NewCharacterSource(backend, nil)
	frames := NewThinFrameSource(characters, generator, nil)
	t.Cleanup(func() {
		frames.Dispose()
		characters.Dispose()
	})
	return backend, frames
}

func TestThinFrameSourceGet(t *testing.T) {
	ctx := context.Background()

	t.Run("returns embedded frame without generating", func(t *testing.T) {
		generator := &MockFrameGenerator{}
		backend, frames := newThinFrameFixture(t, generator)
		backend.Characters["char-1"]["extensions"] = map[string]any{
			"thin_frame": map[string]any{"name": "Mira", "essence": "Maps forgotten roads."},
		}

		frame := frames.Get(ctx, "char-1")
		require.NotNil(t, frame)
		assert.Equal(t, card.FrameSourceEmbedded, frame.Source)
		assert.Zero(t, generator.Calls())
	})

	t.Run("returns nil when nothing exists", func(t *testing.T) {
		_, frames := newThinFrameFixture(t, &MockFrameGenerator{})
		assert.Nil(t, frames.Get(ctx, "char-1"))
	})
}

func TestThinFrameSourceGetOrGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("generates and caches", func(t *testing.T) {
		generator := &MockFrameGenerator{
			Frame: &card.ThinFrame{Name: "Mira", Essence: "Maps forgotten roads."},
		}
		_, frames := newThinFrameFixture(t, generator)

		frame := frames.GetOrGenerate(ctx, "char-1")
		require.NotNil(t, frame)
		assert.Equal(t, card.FrameSourceGenerated, frame.Source)
		assert.False(t, frame.GeneratedAt.IsZero())

		frames.GetOrGenerate(ctx, "char-1")
		assert.Equal(t, 1, generator.Calls())
		assert.True(t, frames.Has("char-1"))
	})

	t.Run("generation failure falls back deterministically", func(t *testing.T) {
		generator := &MockFrameGenerator{Err: errors.New("model unavailable")}
		_, frames := newThinFrameFixture(t, generator)

		frame := frames.GetOrGenerate(ctx, "char-1")
		require.NotNil(t, frame)
		assert.Equal(t, card.FrameSourceFallback, frame.Source)
		assert.Equal(t, "A wandering cartographer. She maps forgotten roads.", frame.Essence)
		assert.Equal(t, "curious", frame.Speech)

		// The fallback is cached so the failure is not re-paid.
		frames.GetOrGenerate(ctx, "char-1")
		assert.Equal(t, 1, generator.Calls())
	})

	t.Run("schema-invalid result falls back", func(t *testing.T) {
		generator := &MockFrameGenerator{Frame: &card.ThinFrame{Name: "Mira"}}
		_, frames := newThinFrameFixture(t, generator)

		frame := frames.GetOrGenerate(ctx, "char-1")
		require.NotNil(t, frame)
		assert.Equal(t, card.FrameSourceFallback, frame.Source)
	})

	t.Run("nil generator goes straight to fallback", func(t *testing.T) {
		_, frames := newThinFrameFixture(t, nil)

		frame := frames.GetOrGenerate(ctx, "char-1")
		require.NotNil(t, frame)
		assert.Equal(t, card.FrameSourceFallback, frame.Source)
	})

	t.Run("unknown character yields nil", func(t *testing.T) {
		_, frames := newThinFrameFixture(t, &MockFrameGenerator{})
		assert.Nil(t, frames.GetOrGenerate(ctx, "missing"))
	})
}

func TestThinFrameSourceTimeout(t *testing.T) {
	generator := &MockFrameGenerator{
		Frame: &card.ThinFrame{Name: "Mira", Essence: "Maps forgotten roads."},
		Delay: func() { time.Sleep(50 * time.Millisecond) },
	}
	_, frames := newThinFrameFixture(t, generator)
	frames.timeout = 5 * time.Millisecond

	frame := frames.GetOrGenerate(context.Background(), "char-1")
	require.NotNil(t, frame)
	assert.Equal(t, card.FrameSourceFallback, frame.Source)
}

func TestThinFrameSourceConcurrentDedup(t *testing.T) {
	release := make(chan struct{})
	generator := &MockFrameGenerator{
		Frame: &card.ThinFrame{Name: "Mira", Essence: "Maps forgotten roads."},
		Delay: func() { <-release },
	}
	_, frames := newThinFrameFixture(t, generator)

	// Warm the character cache so concurrent calls only race on the
	// frame flight.
	require.NotNil(t, frames.characters.Get(context.Background(), "char-1"))

	const workers = 16
	results := make([]*card.ThinFrame, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = frames.GetOrGenerate(context.Background(), "char-1")
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, generator.Calls())
	for _, frame := range results {
		require.NotNil(t, frame)
		assert.Equal(t, "Mira", frame.Name)
	}
}

func TestThinFrameSourceRegenerate(t *testing.T) {
	ctx := context.Background()
	generator := &MockFrameGenerator{
		Frame: &card.ThinFrame{Name: "Mira", Essence: "Maps forgotten roads."},
	}
	backend, frames := newThinFrameFixture(t, generator)

	require.NotNil(t, frames.GetOrGenerate(ctx, "char-1"))
	assert.Equal(t, 1, generator.Calls())

	frame := frames.Regenerate(ctx, "char-1")
	require.NotNil(t, frame)
	assert.Equal(t, 2, generator.Calls())
	assert.Equal(t, 2, backend.Count("character"))
}
