package assemble

import (
	"fmt"
	"strings"

	"github.com/emberune/taleweave/card"
)

// Limits applied when folding an ally into a dual-speaker prompt.
const (
	allyMaxSentences = 2
	allyMaxChars     = 200
)

// BuildRoomAwarenessSection renders the occupants an NPC or narrator is
// aware of. Only NPCs with status alive are listed; hostile ones carry a
// suffix. An excluded character (usually the speaker) is skipped.
func BuildRoomAwarenessSection(npcs []RoomNPC, excludeCharacterID string) string {
	var listed []RoomNPC
	for _, npc := range npcs {
		if npc.Status != NPCStatusAlive {
			continue
		}
		if excludeCharacterID != "" && npc.CharacterID == excludeCharacterID {
			continue
		}
		listed = append(listed, npc)
	}

	if len(listed) == 0 {
		return "You glance around. The area appears empty."
	}

	var b strings.Builder
	b.WriteString("Others present in the area:\n")
	for _, npc := range listed {
		b.WriteString("- ")
		b.WriteString(npc.Name)
		if npc.Hostile {
			b.WriteString(" (hostile)")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// InjectRoomContextIntoCard returns a copy of the card whose scenario is
// extended with the current room and its occupants. The original card is
// never mutated.
func InjectRoomContextIntoCard(c *card.MinimalCharacterCard, room *RoomContext, speakerCharacterID string) *card.MinimalCharacterCard {
	if c == nil || room == nil {
		return c
	}

	clone := c.Clone()

	var parts []string
	if clone.Data.Scenario != "" {
		parts = append(parts, clone.Data.Scenario)
	}
	location := fmt.Sprintf("Current location: %s.", room.Name)
	if room.Description != "" {
		location += " " + room.Description
	}
	parts = append(parts, location)
	parts = append(parts, BuildRoomAwarenessSection(room.NPCs, speakerCharacterID))

	clone.Data.Scenario = strings.Join(parts, "\n\n")
	return clone
}

// BuildThinContextCard constructs a card for an unbonded NPC that has no
// persisted card, from its thin frame plus room and world context.
func BuildThinContextCard(target *ConversationTarget, room *RoomContext, world *WorldContext) *card.MinimalCharacterCard {
	if target == nil {
		return nil
	}

	var base *card.MinimalCharacterCard
	if target.ThinFrame.Valid() {
		base = target.ThinFrame.AsCard()
	} else {
		base = card.New(target.Name)
	}

	var scenario []string
	if world != nil && world.Description != "" {
		scenario = append(scenario, world.Description)
	}
	if len(scenario) > 0 {
		base.Data.Scenario = strings.Join(scenario, "\n\n")
	}

	base.Data.SystemPrompt = fmt.Sprintf(
		"You are %s. Stay in character at all times and speak only as %s. "+
			"Respond naturally to the conversation without narrating for other characters.",
		base.Data.Name, base.Data.Name)
	if target.Hostile {
		base.Data.SystemPrompt += fmt.Sprintf(" %s is hostile toward the player and speaks accordingly.", base.Data.Name)
	}

	return InjectRoomContextIntoCard(base, room, target.CharacterID)
}

// BuildDualSpeakerCard composes a card whose system prompt instructs the
// model to primarily voice the conversation target while the bonded ally
// interjects roughly one turn in three or four, formatted as
// "[AllyName]: ...". Ally description and personality are truncated so
// the primary speaker dominates the budget.
func BuildDualSpeakerCard(target *ConversationTarget, ally *BondedAlly, room *RoomContext, world *WorldContext) *card.MinimalCharacterCard {
	if target == nil || ally == nil {
		return nil
	}

	base := BuildThinContextCard(target, room, world)
	if base == nil {
		return nil
	}

	allyDesc := truncateForAlly(allyCardField(ally, func(d card.CardData) string { return d.Description }))
	allyPers := truncateForAlly(allyCardField(ally, func(d card.CardData) string { return d.Personality }))

	var b strings.Builder
	fmt.Fprintf(&b, "You are primarily voicing %s in this scene. ", base.Data.Name)
	fmt.Fprintf(&b, "%s, the player's bonded companion, is also present. ", ally.Name)
	b.WriteString("Roughly one turn in every three or four, the companion may briefly interject; ")
	fmt.Fprintf(&b, "format any such interjection on its own line as [%s]: followed by their words. ", ally.Name)
	fmt.Fprintf(&b, "Never speak for the player. Keep %s as the dominant voice.", base.Data.Name)
	if allyDesc != "" {
		fmt.Fprintf(&b, "\n\nAbout %s: %s", ally.Name, allyDesc)
	}
	if allyPers != "" {
		fmt.Fprintf(&b, "\n%s's manner: %s", ally.Name, allyPers)
	}

	base.Data.SystemPrompt = b.String()
	return base
}

func allyCardField(ally *BondedAlly, pick func(card.CardData) string) string {
	if ally.Card == nil {
		return ""
	}
	return pick(ally.Card.Data)
}

// truncateForAlly caps ally text at two sentences and 200 characters.
func truncateForAlly(text string) string {
	text = card.FirstSentences(text, allyMaxSentences)
	if len(text) > allyMaxChars {
		text = strings.TrimSpace(text[:allyMaxChars])
	}
	return text
}
