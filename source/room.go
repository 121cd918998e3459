package source

import (
	"context"
	"log/slog"
	"sync"

	"github.com/emberune/taleweave/assemble"
	"github.com/emberune/taleweave/cache"
	"github.com/emberune/taleweave/card"
	"github.com/emberune/taleweave/internal/observability"
)

// RoomFetcher loads raw room JSON from the backend.
type RoomFetcher interface {
	FetchRoom(ctx context.Context, id string) (map[string]any, error)
}

// NPCInstanceState is per-world-instance NPC state: the same room can
// have an NPC alive in one world and dead in another.
type NPCInstanceState struct {
	Status  string
	Hostile bool
}

// RoomSource caches rooms, both bare and world-scoped. NPC display
// data is resolved through the character source; instance state is kept
// separately and merged into whatever is cached, so it can be set before
// the room is ever fetched.
type RoomSource struct {
	cache      *cache.Cache
	fetcher    RoomFetcher
	characters *CharacterSource
	logger     *slog.Logger

	mu       sync.RWMutex
	instance map[string]map[string]NPCInstanceState // room key -> characterID -> state
}

// NewRoomSource creates a room source with a short-lived cache; room
// occupancy is the most volatile data the engine handles.
func NewRoomSource(fetcher RoomFetcher, characters *CharacterSource, logger *slog.Logger) *RoomSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomSource{
		cache:      cache.NewShortLived(),
		fetcher:    fetcher,
		characters: characters,
		logger:     logger,
		instance:   make(map[string]map[string]NPCInstanceState),
	}
}

// Get returns the room context by bare id.
func (s *RoomSource) Get(ctx context.Context, roomID string) *assemble.RoomContext {
	return s.get(ctx, roomID, "", roomID)
}

// GetForWorld returns the room context with the given world's instance
// state applied.
func (s *RoomSource) GetForWorld(ctx context.Context, worldID, roomID string) *assemble.RoomContext {
	return s.get(ctx, JoinKey(worldID, roomID), worldID, roomID)
}

func (s *RoomSource) get(ctx context.Context, key, worldID, roomID string) *assemble.RoomContext {
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*assemble.RoomContext)
	}

	req := observability.NewRequestContext(s.logger, "room")
	raw, err := s.fetcher.FetchRoom(ctx, roomID)
	if err != nil {
		req.Error("room fetch failed", err, slog.String(observability.LogFieldEntityID, roomID))
		return nil
	}
	if raw == nil {
		return nil
	}

	npcs := s.resolveNPCs(ctx, key, raw)
	room := assemble.AssembleRoomContext(roomID, worldID, raw, npcs)
	if room == nil {
		return nil
	}

	s.cache.Set(key, room, -1)
	return room
}

// resolveNPCs turns the raw npc list into resolved occupants, applying
// any instance state recorded for this room key.
func (s *RoomSource) resolveNPCs(ctx context.Context, key string, raw map[string]any) []assemble.RoomNPC {
	entries, _ := raw["npcs"].([]any)
	if len(entries) == 0 {
		return nil
	}

	s.mu.RLock()
	states := s.instance[key]
	s.mu.RUnlock()

	npcs := make([]assemble.RoomNPC, 0, len(entries))
	for _, entry := range entries {
		item, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		npc := assemble.RoomNPC{
			CharacterID: stringField(item, "character_id"),
			Name:        stringField(item, "name"),
			Status:      stringField(item, "status"),
			Hostile:     boolField(item, "hostile"),
			Bonded:      boolField(item, "bonded"),
		}
		if npc.Status == "" {
			npc.Status = assemble.NPCStatusAlive
		}

		// Display name, image and thin frame come from the character
		// source; the raw room entry is only a reference.
		if npc.CharacterID != "" {
			if c := s.characters.Get(ctx, npc.CharacterID); c != nil {
				npc.Name = c.Data.Name
				if img, ok := c.Data.Extensions["image_url"].(string); ok {
					npc.ImageURL = img
				}
				npc.ThinFrame = card.FrameFromExtensions(c.Data.Extensions)
			}
		}

		if state, ok := states[npc.CharacterID]; ok {
			npc.Status = state.Status
			npc.Hostile = state.Hostile
		}

		npcs = append(npcs, npc)
	}
	return npcs
}

// SetInstanceState records per-world NPC state and merges it into any
// cached context. It works before the room has ever been fetched.
func (s *RoomSource) SetInstanceState(worldID, roomID, characterID string, state NPCInstanceState) {
	key := JoinKey(worldID, roomID)

	s.mu.Lock()
	if s.instance[key] == nil {
		s.instance[key] = make(map[string]NPCInstanceState)
	}
	s.instance[key][characterID] = state
	s.mu.Unlock()

	cached, ok := s.cache.Get(key)
	if !ok {
		return
	}

	room := cached.(*assemble.RoomContext)
	patched := *room
	patched.NPCs = make([]assemble.RoomNPC, 0, len(room.NPCs))
	for _, npc := range room.NPCs {
		if npc.CharacterID == characterID {
			npc.Status = state.Status
			npc.Hostile = state.Hostile
		}
		patched.NPCs = append(patched.NPCs, npc)
	}
	patched.NPCs = assemble.FilterLivingNPCs(patched.NPCs)
	s.cache.Set(key, &patched, -1)
}

// Refresh forces an invalidate-then-fetch of the world-scoped room.
func (s *RoomSource) Refresh(ctx context.Context, worldID, roomID string) *assemble.RoomContext {
	s.cache.Invalidate(JoinKey(worldID, roomID))
	return s.GetForWorld(ctx, worldID, roomID)
}

// InvalidateWorld drops every cached room belonging to a world.
func (s *RoomSource) InvalidateWorld(worldID string) {
	prefix := worldID + keySeparator
	s.cache.InvalidateWhere(func(key string) bool {
		return len(key) > len(prefix) && key[:len(prefix)] == prefix
	})
}

// Invalidate drops a single cached room key.
func (s *RoomSource) Invalidate(key string) {
	s.cache.Invalidate(key)
}

// Has reports whether a live cached room exists for key.
func (s *RoomSource) Has(key string) bool {
	return s.cache.Has(key)
}

// Clear drops all cached rooms and instance state.
func (s *RoomSource) Clear() {
	s.cache.Clear()
	s.mu.Lock()
	s.instance = make(map[string]map[string]NPCInstanceState)
	s.mu.Unlock()
}

// Dispose releases the cache and its sweeper.
func (s *RoomSource) Dispose() {
	s.cache.Dispose()
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func boolField(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}
