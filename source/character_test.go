package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharacterSourceGet(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches and caches on miss", func(t *testing.T) {
		backend := NewMockBackend()
		backend.Characters["char-1"] = map[string]any{
			"name":        "Mira",
			"description": "A wandering cartographer.",
		}
		src := NewCharacterSource(backend, nil)
		defer src.Dispose()

		c := src.Get(ctx, "char-1")
		require.NotNil(t, c)
		assert.Equal(t, "Mira", c.Data.Name)
		assert.Equal(t, 1, backend.Count("character"))

		// Second read is served from cache.
		again := src.Get(ctx, "char-1")
		require.NotNil(t, again)
		assert.Equal(t, 1, backend.Count("character"))
	})

	t.Run("fetch failure returns nil and is not cached", func(t *testing.T) {
		backend := NewMockBackend()
		backend.Characters["char-1"] = map[string]any{"name": "Mira"}
		backend.FailNext["character"] = true
		src := NewCharacterSource(backend, nil)
		defer src.Dispose()

		assert.Nil(t, src.Get(ctx, "char-1"))
		assert.False(t, src.Has("char-1"))

		// Next call retries and succeeds.
		c := src.Get(ctx, "char-1")
		require.NotNil(t, c)
		assert.Equal(t, 2, backend.Count("character"))
	})

	t.Run("refresh bypasses the cache", func(t *testing.T) {
		backend := NewMockBackend()
		backend.Characters["char-1"] = map[string]any{"name": "Mira"}
		src := NewCharacterSource(backend, nil)
		defer src.Dispose()

		src.Get(ctx, "char-1")
		backend.Characters["char-1"] = map[string]any{"name": "Mira the Elder"}

		c := src.Refresh(ctx, "char-1")
		require.NotNil(t, c)
		assert.Equal(t, "Mira the Elder", c.Data.Name)
		assert.Equal(t, 2, backend.Count("character"))
	})
}

func TestCharacterSourceThinFrame(t *testing.T) {
	ctx := context.Background()
	backend := NewMockBackend()
	backend.Characters["char-1"] = map[string]any{
		"name": "Mira",
		"extensions": map[string]any{
			"thin_frame": map[string]any{
				"name":    "Mira",
				"essence": "A cartographer who maps forgotten roads.",
			},
		},
	}
	backend.Characters["char-2"] = map[string]any{"name": "Bare"}
	src := NewCharacterSource(backend, nil)
	defer src.Dispose()

	frame := src.ThinFrame(ctx, "char-1")
	require.NotNil(t, frame)
	assert.Equal(t, "Mira", frame.Name)

	assert.Nil(t, src.ThinFrame(ctx, "char-2"))
	assert.Nil(t, src.ThinFrame(ctx, "missing"))
}

func TestNormalizeCard(t *testing.T) {
	t.Run("flat payload", func(t *testing.T) {
		c := NormalizeCard(map[string]any{
			"name":        "Mira",
			"personality": "curious",
		})
		require.NotNil(t, c)
		assert.Equal(t, "Mira", c.Data.Name)
		assert.Equal(t, "curious", c.Data.Personality)
		assert.Equal(t, "chara_card_v2", c.Spec)
		assert.NotNil(t, c.Data.Extensions)
	})

	t.Run("wrapped with spec", func(t *testing.T) {
		c := NormalizeCard(map[string]any{
			"spec":         "chara_card_v3",
			"spec_version": "3.0",
			"data":         map[string]any{"name": "Mira"},
		})
		require.NotNil(t, c)
		assert.Equal(t, "chara_card_v3", c.Spec)
		assert.Equal(t, "3.0", c.SpecVersion)
	})

	t.Run("nested data without spec", func(t *testing.T) {
		c := NormalizeCard(map[string]any{
			"data": map[string]any{"name": "Mira"},
		})
		require.NotNil(t, c)
		assert.Equal(t, "chara_card_v2", c.Spec)
	})

	t.Run("nameless payload is rejected", func(t *testing.T) {
		assert.Nil(t, NormalizeCard(map[string]any{"description": "no name"}))
		assert.Nil(t, NormalizeCard(nil))
	})
}
