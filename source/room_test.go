package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberune/taleweave/assemble"
)

func roomFixture() map[string]any {
	return map[string]any{
		"name":        "The Rusted Anchor",
		"description": "A dockside tavern.",
		"npcs": []any{
			map[string]any{"character_id": "char-1"},
			map[string]any{"character_id": "char-2", "hostile": true},
			map[string]any{"character_id": "char-3", "status": "dead"},
		},
	}
}

func newRoomFixtureSource(t *testing.T) (*MockBackend, *CharacterSource, *RoomSource) {
	t.Helper()
	backend := NewMockBackend()
	backend.Rooms["room-1"] = roomFixture()
	backend.Characters["char-1"] = map[string]any{"name": "Mira"}
	backend.Characters["char-2"] = map[string]any{"name": "Korg"}
	backend.Characters["char-3"] = map[string]any{"name": "Old Pike"}

	characters := NewCharacterSource(backend, nil)
	rooms := NewRoomSource(backend, characters, nil)
	t.Cleanup(func() {
		rooms.Dispose()
		characters.Dispose()
	})
	return backend, characters, rooms
}

func TestRoomSourceGet(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves npc display data and drops the dead", func(t *testing.T) {
		_, _, rooms := newRoomFixtureSource(t)

		room := rooms.Get(ctx, "room-1")
		require.NotNil(t, room)
		assert.Equal(t, "The Rusted Anchor", room.Name)
		require.Len(t, room.NPCs, 2)
		assert.Equal(t, "Mira", room.NPCs[0].Name)
		assert.Equal(t, "Korg", room.NPCs[1].Name)
		assert.True(t, room.NPCs[1].Hostile)
	})

	t.Run("bare and world-scoped keys are distinct", func(t *testing.T) {
		backend, _, rooms := newRoomFixtureSource(t)

		require.NotNil(t, rooms.Get(ctx, "room-1"))
		require.NotNil(t, rooms.GetForWorld(ctx, "world-1", "room-1"))
		assert.Equal(t, 2, backend.Count("room"))
		assert.True(t, rooms.Has("room-1"))
		assert.True(t, rooms.Has(JoinKey("world-1", "room-1")))
	})

	t.Run("fetch failure returns nil and is not cached", func(t *testing.T) {
		backend, _, rooms := newRoomFixtureSource(t)
		backend.FailNext["room"] = true

		assert.Nil(t, rooms.Get(ctx, "room-1"))
		assert.False(t, rooms.Has("room-1"))
	})
}

func TestRoomSourceInstanceState(t *testing.T) {
	ctx := context.Background()

	t.Run("killing an npc removes it from the cached room", func(t *testing.T) {
		_, _, rooms := newRoomFixtureSource(t)

		room := rooms.GetForWorld(ctx, "world-1", "room-1")
		require.Len(t, room.NPCs, 2)

		rooms.SetInstanceState("world-1", "room-1", "char-2", NPCInstanceState{Status: assemble.NPCStatusDead})

		room = rooms.GetForWorld(ctx, "world-1", "room-1")
		require.Len(t, room.NPCs, 1)
		assert.Equal(t, "Mira", room.NPCs[0].Name)
	})

	t.Run("state recorded before the fetch still applies", func(t *testing.T) {
		_, _, rooms := newRoomFixtureSource(t)

		rooms.SetInstanceState("world-1", "room-1", "char-1", NPCInstanceState{
			Status:  assemble.NPCStatusAlive,
			Hostile: true,
		})

		room := rooms.GetForWorld(ctx, "world-1", "room-1")
		require.NotNil(t, room)
		for _, npc := range room.NPCs {
			if npc.CharacterID == "char-1" {
				assert.True(t, npc.Hostile)
				return
			}
		}
		t.Fatal("char-1 not present in room")
	})

	t.Run("instance state is per world", func(t *testing.T) {
		_, _, rooms := newRoomFixtureSource(t)

		rooms.SetInstanceState("world-1", "room-1", "char-2", NPCInstanceState{Status: assemble.NPCStatusDead})

		other := rooms.GetForWorld(ctx, "world-2", "room-1")
		require.NotNil(t, other)
		assert.Len(t, other.NPCs, 2)
	})
}

func TestRoomSourceInvalidateWorld(t *testing.T) {
	ctx := context.Background()
	backend, _, rooms := newRoomFixtureSource(t)
	backend.Rooms["room-2"] = map[string]any{"name": "The Cellar"}

	require.NotNil(t, rooms.GetForWorld(ctx, "world-1", "room-1"))
	require.NotNil(t, rooms.GetForWorld(ctx, "world-1", "room-2"))
	require.NotNil(t, rooms.GetForWorld(ctx, "world-2", "room-1"))

	rooms.InvalidateWorld("world-1")

	assert.False(t, rooms.Has(JoinKey("world-1", "room-1")))
	assert.False(t, rooms.Has(JoinKey("world-1", "room-2")))
	assert.True(t, rooms.Has(JoinKey("world-2", "room-1")))
}
