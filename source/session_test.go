package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberune/taleweave/assemble"
)

func newSessionFixtureSource(t *testing.T) (*MockBackend, *MockSettingsStore, *SessionSource) {
	t.Helper()
	backend := NewMockBackend()
	backend.Sessions["sess-1"] = map[string]any{
		"title": "Night at the docks",
		"notes": "Korg owes Mira a favor.",
	}
	settings := NewMockSettingsStore()
	src := NewSessionSource(backend, settings, nil)
	t.Cleanup(src.Dispose)
	return backend, settings, src
}

func TestSessionSourceGet(t *testing.T) {
	ctx := context.Background()

	t.Run("combines backend fields with local settings", func(t *testing.T) {
		backend, settings, src := newSessionFixtureSource(t)
		require.NoError(t, settings.SetSetting(SettingUserName, "Ash"))
		require.NoError(t, settings.SetSetting(SettingCompressionLevel, string(assemble.CompressionAggressive)))

		session := src.Get(ctx, "sess-1")
		require.NotNil(t, session)
		assert.Equal(t, "Night at the docks", session.Title)
		assert.Equal(t, "Korg owes Mira a favor.", session.Notes)
		assert.Equal(t, "Ash", session.UserName)
		assert.Equal(t, assemble.CompressionAggressive, session.CompressionLevel)
		assert.Equal(t, 1, backend.Count("session"))
	})

	t.Run("backend failure still yields a local-only session", func(t *testing.T) {
		backend, settings, src := newSessionFixtureSource(t)
		require.NoError(t, settings.SetSetting(SettingUserName, "Ash"))
		backend.FailNext["session"] = true

		session := src.Get(ctx, "sess-1")
		require.NotNil(t, session)
		assert.Empty(t, session.Title)
		assert.Equal(t, "Ash", session.UserName)
		assert.Equal(t, assemble.CompressionNone, session.CompressionLevel)
	})

	t.Run("compression level defaults to none", func(t *testing.T) {
		_, _, src := newSessionFixtureSource(t)

		session := src.Get(ctx, "sess-1")
		require.NotNil(t, session)
		assert.Equal(t, assemble.CompressionNone, session.CompressionLevel)
	})
}

func TestSessionSourceMutations(t *testing.T) {
	ctx := context.Background()

	t.Run("set notes saves then patches the cache", func(t *testing.T) {
		backend, _, src := newSessionFixtureSource(t)
		require.NotNil(t, src.Get(ctx, "sess-1"))

		require.NoError(t, src.SetNotes(ctx, "sess-1", "Updated notes."))
		assert.Equal(t, "Updated notes.", backend.SavedNotes["sess-1"])

		session := src.Get(ctx, "sess-1")
		assert.Equal(t, "Updated notes.", session.Notes)
		assert.Equal(t, 1, backend.Count("session"))
	})

	t.Run("failed save leaves the cache untouched", func(t *testing.T) {
		backend, _, src := newSessionFixtureSource(t)
		require.NotNil(t, src.Get(ctx, "sess-1"))
		backend.FailNext["save_title"] = true

		assert.Error(t, src.SetTitle(ctx, "sess-1", "New Title"))
		assert.Equal(t, "Night at the docks", src.Get(ctx, "sess-1").Title)
	})

	t.Run("user name change drops cached sessions", func(t *testing.T) {
		_, settings, src := newSessionFixtureSource(t)
		require.NotNil(t, src.Get(ctx, "sess-1"))

		require.NoError(t, src.SetUserName("Rowan"))
		assert.False(t, src.Has("sess-1"))

		value, err := settings.GetSetting(SettingUserName)
		require.NoError(t, err)
		assert.Equal(t, "Rowan", value)
		assert.Equal(t, "Rowan", src.Get(ctx, "sess-1").UserName)
	})

	t.Run("compression level change drops cached sessions", func(t *testing.T) {
		_, _, src := newSessionFixtureSource(t)
		require.NotNil(t, src.Get(ctx, "sess-1"))

		require.NoError(t, src.SetCompressionLevel(assemble.CompressionChatDialogue))
		assert.False(t, src.Has("sess-1"))
		assert.Equal(t, assemble.CompressionChatDialogue, src.Get(ctx, "sess-1").CompressionLevel)
	})
}
