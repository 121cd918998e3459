package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberune/taleweave/assemble"
	"github.com/emberune/taleweave/serialize"
)

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFixture(t *testing.T) {
	t.Run("parses a scene", func(t *testing.T) {
		path := writeFixture(t, `{
			"user_name": "Ash",
			"character": {"name": "Mira", "description": "A wandering cartographer."},
			"messages": [{"role": "user", "content": "Hello"}]
		}`)

		fixture, err := loadFixture(path)
		require.NoError(t, err)
		assert.Equal(t, "Ash", fixture.UserName)
		assert.Equal(t, "Mira", fixture.Character["name"])
		require.Len(t, fixture.Messages, 1)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := loadFixture("/does/not/exist.json")
		assert.Error(t, err)
	})

	t.Run("malformed json errors", func(t *testing.T) {
		path := writeFixture(t, "{not json")
		_, err := loadFixture(path)
		assert.Error(t, err)
	})
}

func TestBuildFixtureSnapshot(t *testing.T) {
	t.Run("character scene", func(t *testing.T) {
		fixture := &sceneFixture{
			UserName:  "Ash",
			Character: map[string]any{"name": "Mira", "description": "A cartographer."},
			Messages:  []fixtureMessage{{Role: "user", Content: "Hello"}},
		}

		snapshot := buildFixtureSnapshot(fixture)
		assert.Equal(t, assemble.ModeCharacter, snapshot.Mode)
		require.NotNil(t, snapshot.Character)
		assert.Equal(t, "Mira", snapshot.Character.Card.Data.Name)
		assert.Equal(t, "Ash", snapshot.Session.UserName)
		require.Len(t, snapshot.Messages, 1)
		assert.Empty(t, assemble.ValidateSnapshot(snapshot))
	})

	t.Run("world scene with target derives npc conversation", func(t *testing.T) {
		fixture := &sceneFixture{
			World:  map[string]any{"name": "Emberfall"},
			Room:   map[string]any{"name": "The Rusted Anchor"},
			Target: map[string]any{"name": "Korg"},
		}

		snapshot := buildFixtureSnapshot(fixture)
		assert.Equal(t, assemble.ModeNPCConversation, snapshot.Mode)
		require.NotNil(t, snapshot.ConversationTarget)
		assert.Equal(t, "Korg", snapshot.ConversationTarget.Name)
	})

	t.Run("serializes end to end", func(t *testing.T) {
		fixture := &sceneFixture{
			UserName:  "Ash",
			Character: map[string]any{"name": "Mira", "description": "A cartographer."},
			Messages:  []fixtureMessage{{Role: "user", Content: "Where are we?"}},
		}

		snapshot := buildFixtureSnapshot(fixture)
		serialized := serialize.SerializeContext(snapshot, serialize.Options{})
		assert.Contains(t, serialized.Prompt, "Mira")
		assert.Positive(t, serialized.Metadata.PromptTokens)
	})
}
