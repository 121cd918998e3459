// Package assemble combines independently-fetched domain data into a
// single consistent snapshot for one generation request. Everything in
// this package is pure: sources fetch, assemble normalizes and combines,
// serialize renders.
package assemble

import (
	"sort"
	"strings"
	"time"

	"github.com/emberune/taleweave/card"
)

// CompressionLevel controls progressive removal of character-card fields
// from the memory block as a conversation grows.
type CompressionLevel string

const (
	CompressionNone         CompressionLevel = "none"
	CompressionChatOnly     CompressionLevel = "chat_only"
	CompressionChatDialogue CompressionLevel = "chat_dialogue"
	CompressionAggressive   CompressionLevel = "aggressive"
)

// Rank places the level on the ordinal hierarchy
// none < chat_only < chat_dialogue < aggressive.
// Unknown levels rank as none.
func (l CompressionLevel) Rank() int {
	switch l {
	case CompressionChatOnly:
		return 1
	case CompressionChatDialogue:
		return 2
	case CompressionAggressive:
		return 3
	default:
		return 0
	}
}

// Message is a single chat turn as the serializer consumes it.
type Message struct {
	ID               string    `json:"id"`
	Role             string    `json:"role"` // "user" | "assistant" | "system" | "thinking"
	Content          string    `json:"content"`
	Variations       []string  `json:"variations,omitempty"`
	CurrentVariation int       `json:"current_variation,omitempty"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
}

// Text returns the content to render: the selected variation when one is
// recorded, the original content otherwise.
func (m Message) Text() string {
	if len(m.Variations) > 0 && m.CurrentVariation >= 0 && m.CurrentVariation < len(m.Variations) {
		return m.Variations[m.CurrentVariation]
	}
	return m.Content
}

// CharacterContext is the resolved character plus derived fields.
type CharacterContext struct {
	ID        string
	Card      *card.MinimalCharacterCard
	ThinFrame *card.ThinFrame
}

// Progression is derived world-extension state with numeric defaults.
type Progression struct {
	XP    int `json:"xp"`
	Level int `json:"level"`
	Gold  int `json:"gold"`
}

// PlayerPosition locates the player inside a world.
type PlayerPosition struct {
	RoomID string `json:"room_id"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// WorldContext is the resolved world sheet plus derived fields.
type WorldContext struct {
	ID             string
	Name           string
	Description    string
	SystemPrompt   string
	PlayerPosition PlayerPosition
	Progression    Progression
	Extensions     map[string]any
}

// NPC status values as the backend reports them.
const (
	NPCStatusAlive = "alive"
	NPCStatusDead  = "dead"
)

// RoomNPC is one resolved occupant of a room.
type RoomNPC struct {
	CharacterID string
	Name        string
	ImageURL    string
	Status      string
	Hostile     bool
	Bonded      bool
	ThinFrame   *card.ThinFrame
}

// Alive reports whether the NPC should appear in room context at all.
func (n RoomNPC) Alive() bool {
	return n.Status != NPCStatusDead
}

// RoomContext is the resolved room plus its living occupants.
// NPCs never contains dead NPCs; they are filtered out entirely rather
// than flagged.
type RoomContext struct {
	ID          string
	WorldID     string
	Name        string
	Description string
	Exits       []string
	NPCs        []RoomNPC
}

// SessionContext is always present on a snapshot.
type SessionContext struct {
	ID               string
	Title            string
	Notes            string
	UserName         string
	CompressionLevel CompressionLevel
}

// LoreEntry is one enabled lore-book entry for a character.
type LoreEntry struct {
	ID        string
	Keys      []string
	Content   string
	ImageUUID string
}

// TriggeredLoreImage tracks a lore-book image that fired this session.
type TriggeredLoreImage struct {
	EntryID     string    `json:"entry_id"`
	ImageUUID   string    `json:"image_uuid"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// LoreContext holds the active lore entries and the images they fired.
// TriggeredImages is ordered newest-first and deduplicated by entry ID.
type LoreContext struct {
	CharacterID     string
	Entries         []LoreEntry
	TriggeredImages []TriggeredLoreImage
}

// AdventureLogEntry is one stop on the journey log.
type AdventureLogEntry struct {
	RoomID     string    `json:"room_id"`
	RoomName   string    `json:"room_name"`
	Summary    string    `json:"summary"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AdventureLogContext is the world+user scoped journey history.
type AdventureLogContext struct {
	WorldID string
	UserID  string
	Entries []AdventureLogEntry
}

// Relationship is the player's standing with one NPC.
type Relationship struct {
	CharacterID string `json:"character_id"`
	Name        string `json:"name"`
	Bond        int    `json:"bond"`
	Status      string `json:"status,omitempty"`
}

// RelationshipContext aggregates NPC relationships.
type RelationshipContext struct {
	Relationships []Relationship
}

// TimeContext is in-world time.
type TimeContext struct {
	Day       int    `json:"day"`
	TimeOfDay string `json:"time_of_day"`
	Season    string `json:"season,omitempty"`
}

// InventoryItem is one carried item.
type InventoryItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Equipped bool   `json:"equipped,omitempty"`
}

// InventoryContext is the player's inventory.
type InventoryContext struct {
	Items []InventoryItem
}

// ConversationTarget is the NPC currently being spoken to.
type ConversationTarget struct {
	CharacterID string
	Name        string
	Card        *card.MinimalCharacterCard
	ThinFrame   *card.ThinFrame
	Hostile     bool
}

// BondedAlly is a bonded companion present in the scene.
type BondedAlly struct {
	CharacterID string
	Name        string
	Card        *card.MinimalCharacterCard
	Bond        int
}

// AssembleCharacterContext normalizes a fetched card into a character
// context, surfacing any schema-valid embedded thin frame.
func AssembleCharacterContext(id string, c *card.MinimalCharacterCard) *CharacterContext {
	if c == nil {
		return nil
	}
	return &CharacterContext{
		ID:        id,
		Card:      c,
		ThinFrame: card.FrameFromExtensions(c.Data.Extensions),
	}
}

// AssembleWorldContext normalizes raw world data. Progression defaults
// to xp=0, level=1, gold=0 when the extension block is absent.
func AssembleWorldContext(id string, raw map[string]any) *WorldContext {
	if raw == nil {
		return nil
	}

	w := &WorldContext{
		ID:           id,
		Name:         stringValue(raw, "name"),
		Description:  stringValue(raw, "description"),
		SystemPrompt: stringValue(raw, "system_prompt"),
		Progression:  Progression{Level: 1},
		Extensions:   mapValue(raw, "extensions"),
	}

	if ext := w.Extensions; ext != nil {
		if prog := mapValue(ext, "progression"); prog != nil {
			w.Progression = Progression{
				XP:    intValue(prog, "xp", 0),
				Level: intValue(prog, "level", 1),
				Gold:  intValue(prog, "gold", 0),
			}
		}
		if pos := mapValue(ext, "player_position"); pos != nil {
			w.PlayerPosition = PlayerPosition{
				RoomID: stringValue(pos, "room_id"),
				X:      intValue(pos, "x", 0),
				Y:      intValue(pos, "y", 0),
			}
		}
	}

	return w
}

// AssembleRoomContext normalizes raw room data with its already-resolved
// occupants. Dead NPCs are dropped here, the single place room occupancy
// is derived.
func AssembleRoomContext(id, worldID string, raw map[string]any, npcs []RoomNPC) *RoomContext {
	if raw == nil {
		return nil
	}

	return &RoomContext{
		ID:          id,
		WorldID:     worldID,
		Name:        stringValue(raw, "name"),
		Description: stringValue(raw, "description"),
		Exits:       stringSlice(raw, "exits"),
		NPCs:        FilterLivingNPCs(npcs),
	}
}

// FilterLivingNPCs removes dead NPCs entirely.
func FilterLivingNPCs(npcs []RoomNPC) []RoomNPC {
	living := make([]RoomNPC, 0, len(npcs))
	for _, npc := range npcs {
		if npc.Alive() {
			living = append(living, npc)
		}
	}
	return living
}

// AssembleSessionContext normalizes session state, defaulting the
// compression level to none.
func AssembleSessionContext(id, title, notes, userName string, level CompressionLevel) *SessionContext {
	if level == "" {
		level = CompressionNone
	}
	return &SessionContext{
		ID:               id,
		Title:            title,
		Notes:            notes,
		UserName:         userName,
		CompressionLevel: level,
	}
}

// AssembleLoreContext pairs a character's active entries with its
// triggered images, newest trigger first.
func AssembleLoreContext(characterID string, entries []LoreEntry, triggered []TriggeredLoreImage) *LoreContext {
	sorted := append([]TriggeredLoreImage(nil), triggered...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TriggeredAt.After(sorted[j].TriggeredAt)
	})
	return &LoreContext{
		CharacterID:     characterID,
		Entries:         entries,
		TriggeredImages: sorted,
	}
}

// AssembleAdventureLogContext normalizes raw journey-log data.
func AssembleAdventureLogContext(worldID, userID string, raw []map[string]any) *AdventureLogContext {
	entries := make([]AdventureLogEntry, 0, len(raw))
	for _, item := range raw {
		entry := AdventureLogEntry{
			RoomID:   stringValue(item, "room_id"),
			RoomName: stringValue(item, "room_name"),
			Summary:  stringValue(item, "summary"),
		}
		if ts := stringValue(item, "occurred_at"); ts != "" {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				entry.OccurredAt = parsed
			}
		}
		entries = append(entries, entry)
	}
	return &AdventureLogContext{WorldID: worldID, UserID: userID, Entries: entries}
}

// AssembleTimeContext normalizes raw time-of-day data.
func AssembleTimeContext(raw map[string]any) *TimeContext {
	if raw == nil {
		return nil
	}
	return &TimeContext{
		Day:       intValue(raw, "day", 1),
		TimeOfDay: stringValue(raw, "time_of_day"),
		Season:    stringValue(raw, "season"),
	}
}

// AssembleInventoryContext normalizes raw inventory data.
func AssembleInventoryContext(raw []map[string]any) *InventoryContext {
	items := make([]InventoryItem, 0, len(raw))
	for _, item := range raw {
		items = append(items, InventoryItem{
			ID:       stringValue(item, "id"),
			Name:     stringValue(item, "name"),
			Quantity: intValue(item, "quantity", 1),
			Equipped: boolValue(item, "equipped"),
		})
	}
	return &InventoryContext{Items: items}
}

// AssembleRelationshipContext normalizes raw relationship data.
func AssembleRelationshipContext(raw []map[string]any) *RelationshipContext {
	rels := make([]Relationship, 0, len(raw))
	for _, item := range raw {
		rels = append(rels, Relationship{
			CharacterID: stringValue(item, "character_id"),
			Name:        stringValue(item, "name"),
			Bond:        intValue(item, "bond", 0),
			Status:      stringValue(item, "status"),
		})
	}
	return &RelationshipContext{Relationships: rels}
}

// JSON numbers decode as float64; extension data occasionally carries
// real ints, so accept both.
func intValue(m map[string]any, key string, fallback int) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func stringValue(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func boolValue(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func mapValue(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

func stringSlice(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
