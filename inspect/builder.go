// Package inspect is the observability surface: it builds a snapshot
// from live sources and reports validation results and the token
// breakdown. Nothing here sits on the generation path.
package inspect

import (
	"context"

	"github.com/emberune/taleweave/assemble"
	"github.com/emberune/taleweave/source"
)

// Params select which contexts to gather for an inspection snapshot.
// Empty IDs leave the matching context nil, exactly as a degraded
// generation request would.
type Params struct {
	SessionID   string `query:"session_id" json:"session_id"`
	CharacterID string `query:"character_id" json:"character_id"`
	WorldID     string `query:"world_id" json:"world_id"`
	RoomID      string `query:"room_id" json:"room_id"`
	UserID      string `query:"user_id" json:"user_id"`
	TargetID    string `query:"target_id" json:"target_id"`
	AllyID      string `query:"ally_id" json:"ally_id"`
	Assistant   bool   `query:"assistant" json:"assistant"`
}

// BuildSnapshot gathers every context the params name through the
// registry and assembles them under the derived mode. Fetch failures
// surface as nil contexts; validation downstream reports what is
// missing.
func BuildSnapshot(ctx context.Context, reg *source.Registry, params Params) *assemble.ContextSnapshot {
	input := assemble.SnapshotInput{
		Session: reg.Sessions.Get(ctx, params.SessionID),
	}

	if params.CharacterID != "" {
		input.Character = assemble.AssembleCharacterContext(
			params.CharacterID, reg.Characters.Get(ctx, params.CharacterID))
		input.Lore = reg.Lore.Get(params.CharacterID)
	}
	if params.WorldID != "" {
		input.World = reg.Worlds.Get(ctx, params.WorldID)
		if params.RoomID != "" {
			input.Room = reg.Rooms.GetForWorld(ctx, params.WorldID, params.RoomID)
		}
		if params.UserID != "" {
			input.AdventureLog = reg.AdventureLog.Get(ctx, params.WorldID, params.UserID)
		}
	}
	if params.TargetID != "" {
		input.ConversationTarget = buildTarget(ctx, reg, params.TargetID, input.Room)
	}
	if params.AllyID != "" {
		input.BondedAlly = buildAlly(ctx, reg, params.AllyID)
	}

	input.Mode = assemble.DetermineContextMode(assemble.ModeFlags{
		IsAssistantMode:      params.Assistant,
		IsWorldPlay:          params.WorldID != "",
		IsConversing:         params.TargetID != "",
		IsBonded:             params.TargetID != "" && params.TargetID == params.AllyID,
		HasBondedAllyPresent: params.AllyID != "",
	})

	return assemble.AssembleSnapshot(input)
}

// buildTarget resolves a conversation target, preferring room occupancy
// data for hostility and falling back to the character source.
func buildTarget(ctx context.Context, reg *source.Registry, targetID string, room *assemble.RoomContext) *assemble.ConversationTarget {
	target := &assemble.ConversationTarget{CharacterID: targetID}

	if room != nil {
		for _, npc := range room.NPCs {
			if npc.CharacterID == targetID {
				target.Name = npc.Name
				target.Hostile = npc.Hostile
				target.ThinFrame = npc.ThinFrame
				break
			}
		}
	}

	if c := reg.Characters.Get(ctx, targetID); c != nil {
		target.Card = c
		target.Name = c.Data.Name
	}
	if target.ThinFrame == nil {
		target.ThinFrame = reg.ThinFrames.Get(ctx, targetID)
	}
	if target.Name == "" && target.ThinFrame != nil {
		target.Name = target.ThinFrame.Name
	}
	return target
}

func buildAlly(ctx context.Context, reg *source.Registry, allyID string) *assemble.BondedAlly {
	ally := &assemble.BondedAlly{CharacterID: allyID}
	if c := reg.Characters.Get(ctx, allyID); c != nil {
		ally.Card = c
		ally.Name = c.Data.Name
	}
	return ally
}
