package assemble

import (
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// DefaultMaxMessages caps how many recent turns a snapshot carries.
const DefaultMaxMessages = 20

// ContextSnapshot is the immutable, mode-tagged aggregate of everything
// needed to render one prompt. Session is always present; the remaining
// contexts are nullable and constrained by Mode. Snapshots are built
// fresh per generation request and discarded after serialization.
type ContextSnapshot struct {
	ID          string
	Mode        ContextMode
	AssembledAt time.Time

	Session *SessionContext

	Character          *CharacterContext
	World              *WorldContext
	Room               *RoomContext
	Lore               *LoreContext
	AdventureLog       *AdventureLogContext
	ConversationTarget *ConversationTarget
	BondedAlly         *BondedAlly
	Relationships      *RelationshipContext
	Time               *TimeContext
	Inventory          *InventoryContext

	// Messages holds the most recent turns in chronological order,
	// never more than the configured maximum.
	Messages []Message
}

// SnapshotInput carries already-fetched domain data into assembly.
// The assembler never fetches; absent data stays nil and the snapshot
// degrades gracefully.
type SnapshotInput struct {
	Mode ContextMode

	Session *SessionContext

	Character          *CharacterContext
	World              *WorldContext
	Room               *RoomContext
	Lore               *LoreContext
	AdventureLog       *AdventureLogContext
	ConversationTarget *ConversationTarget
	BondedAlly         *BondedAlly
	Relationships      *RelationshipContext
	Time               *TimeContext
	Inventory          *InventoryContext

	Messages    []Message
	MaxMessages int // 0 = DefaultMaxMessages
}

// AssembleSnapshot combines the provided domain inputs into one
// snapshot, truncating messages to the most recent MaxMessages and
// stamping AssembledAt.
func AssembleSnapshot(input SnapshotInput) *ContextSnapshot {
	maxMessages := input.MaxMessages
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}

	session := input.Session
	if session == nil {
		session = AssembleSessionContext("", "", "", "", CompressionNone)
	}

	return &ContextSnapshot{
		ID:                 shortuuid.New(),
		Mode:               input.Mode,
		AssembledAt:        time.Now(),
		Session:            session,
		Character:          input.Character,
		World:              input.World,
		Room:               input.Room,
		Lore:               input.Lore,
		AdventureLog:       input.AdventureLog,
		ConversationTarget: input.ConversationTarget,
		BondedAlly:         input.BondedAlly,
		Relationships:      input.Relationships,
		Time:               input.Time,
		Inventory:          input.Inventory,
		Messages:           truncateMessages(input.Messages, maxMessages),
	}
}

// truncateMessages keeps the most recent limit turns, preserving
// chronological order.
func truncateMessages(messages []Message, limit int) []Message {
	if len(messages) <= limit {
		return append([]Message(nil), messages...)
	}
	return append([]Message(nil), messages[len(messages)-limit:]...)
}

// ValidateSnapshot checks mode-specific required fields and returns a
// list of human-readable violations. An empty list means valid. It never
// panics; callers decide whether violations are fatal.
func ValidateSnapshot(s *ContextSnapshot) []string {
	if s == nil {
		return []string{"snapshot is nil"}
	}

	var violations []string
	if s.Session == nil {
		violations = append(violations, "session context is required in every mode")
	}

	switch s.Mode {
	case ModeAssistant:
		if s.Character != nil {
			violations = append(violations, "assistant mode must not carry a character context")
		}
	case ModeCharacter:
		if s.Character == nil || s.Character.Card == nil {
			violations = append(violations, "character mode requires a character card")
		}
	case ModeWorldNarrator:
		if s.World == nil {
			violations = append(violations, "world_narrator mode requires a world context")
		}
	case ModeNPCConversation:
		if s.ConversationTarget == nil {
			violations = append(violations, "npc_conversation mode requires a conversation target")
		}
	case ModeNPCBonded:
		if s.BondedAlly == nil {
			violations = append(violations, "npc_bonded mode requires a bonded ally")
		}
	case ModeDualSpeaker:
		if s.ConversationTarget == nil {
			violations = append(violations, "dual_speaker mode requires a conversation target")
		}
		if s.BondedAlly == nil {
			violations = append(violations, "dual_speaker mode requires a bonded ally")
		}
	default:
		violations = append(violations, fmt.Sprintf("unknown context mode: %s", s.Mode))
	}

	return violations
}
