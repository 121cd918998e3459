package assemble

// ContextMode identifies which conversation surface a snapshot serves.
// It determines which optional snapshot fields are required.
type ContextMode string

const (
	// ModeAssistant is plain assistant chat with no character.
	ModeAssistant ContextMode = "assistant"
	// ModeCharacter is single character chat outside world play.
	ModeCharacter ContextMode = "character"
	// ModeWorldNarrator is narrated open-world exploration.
	ModeWorldNarrator ContextMode = "world_narrator"
	// ModeNPCConversation is talking to a non-bonded NPC.
	ModeNPCConversation ContextMode = "npc_conversation"
	// ModeNPCBonded is talking to a bonded ally.
	ModeNPCBonded ContextMode = "npc_bonded"
	// ModeDualSpeaker is a scene voicing an NPC while a bonded ally
	// may interject.
	ModeDualSpeaker ContextMode = "dual_speaker"
)

// ModeFlags are the boolean inputs to the mode decision.
type ModeFlags struct {
	IsAssistantMode      bool
	IsWorldPlay          bool
	IsConversing         bool
	IsBonded             bool
	HasBondedAllyPresent bool
}

// DetermineContextMode maps flag combinations to a mode:
//
//	isAssistantMode             → assistant
//	else !isWorldPlay           → character
//	else (world play):
//	  !isConversing             → world_narrator
//	  isConversing && isBonded  → npc_bonded
//	  isConversing && !isBonded && hasBondedAllyPresent  → dual_speaker
//	  isConversing && !isBonded && !hasBondedAllyPresent → npc_conversation
func DetermineContextMode(flags ModeFlags) ContextMode {
	if flags.IsAssistantMode {
		return ModeAssistant
	}
	if !flags.IsWorldPlay {
		return ModeCharacter
	}
	if !flags.IsConversing {
		return ModeWorldNarrator
	}
	if flags.IsBonded {
		return ModeNPCBonded
	}
	if flags.HasBondedAllyPresent {
		return ModeDualSpeaker
	}
	return ModeNPCConversation
}
