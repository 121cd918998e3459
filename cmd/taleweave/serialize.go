package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/emberune/taleweave/assemble"
	"github.com/emberune/taleweave/card"
	"github.com/emberune/taleweave/serialize"
	"github.com/emberune/taleweave/source"
)

var serializeCmd = &cobra.Command{
	Use:   "serialize",
	Short: "Render a prompt from a scene fixture file",
	Long: `Render a prompt from a scene fixture file.

The fixture is a single JSON document carrying the raw payloads a live
backend would serve: session, character card, world, room, messages and
optional conversation target / bonded ally. The conversation mode is
derived from which of them are present.

Example:
  taleweave serialize --fixture scene.json --template mistral.json --json`,
	RunE: runSerialize,
}

func init() {
	serializeCmd.Flags().String("fixture", "", "scene fixture JSON file (required)")
	serializeCmd.Flags().String("template", "", "prompt template JSON file")
	serializeCmd.Flags().Bool("json", false, "print the full serialized context as JSON")
	_ = serializeCmd.MarkFlagRequired("fixture")
	rootCmd.AddCommand(serializeCmd)
}

// sceneFixture is the offline stand-in for the backend: one file with
// every raw payload the sources would otherwise fetch.
type sceneFixture struct {
	Assistant        bool   `json:"assistant"`
	UserName         string `json:"user_name"`
	CompressionLevel string `json:"compression_level"`

	Session   map[string]any `json:"session"`
	Character map[string]any `json:"character"`
	World     map[string]any `json:"world"`
	Room      map[string]any `json:"room"`

	Target        map[string]any `json:"target"`
	TargetHostile bool           `json:"target_hostile"`
	Ally          map[string]any `json:"ally"`
	Bonded        bool           `json:"bonded"`

	Messages   []fixtureMessage             `json:"messages"`
	Compressed *serialize.CompressedContext `json:"compressed"`
}

type fixtureMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func runSerialize(cmd *cobra.Command, args []string) error {
	fixturePath, _ := cmd.Flags().GetString("fixture")
	templatePath, _ := cmd.Flags().GetString("template")
	asJSON, _ := cmd.Flags().GetBool("json")

	fixture, err := loadFixture(fixturePath)
	if err != nil {
		return err
	}

	var template *serialize.PromptTemplate
	if templatePath != "" {
		template, err = loadTemplate(templatePath)
		if err != nil {
			return err
		}
	}

	snapshot := buildFixtureSnapshot(fixture)
	if violations := assemble.ValidateSnapshot(snapshot); len(violations) > 0 {
		for _, violation := range violations {
			fmt.Fprintln(os.Stderr, "warning:", violation)
		}
	}

	serialized := serialize.SerializeContext(snapshot, serialize.Options{
		Template:   template,
		Compressed: fixture.Compressed,
	})

	if asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(serialized)
	}

	fmt.Println(serialized.Prompt)
	fmt.Fprintf(os.Stderr, "mode=%s prompt_tokens=%d memory_tokens=%d saved_tokens=%d\n",
		serialized.Metadata.Mode,
		serialized.Metadata.PromptTokens,
		serialized.Metadata.MemoryTokens,
		serialized.Metadata.SavedTokens)
	return nil
}

func loadFixture(path string) (*sceneFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading fixture %s", path)
	}
	var fixture sceneFixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return nil, errors.Wrapf(err, "parsing fixture %s", path)
	}
	return &fixture, nil
}

func loadTemplate(path string) (*serialize.PromptTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading template %s", path)
	}
	var template serialize.PromptTemplate
	if err := json.Unmarshal(data, &template); err != nil {
		return nil, errors.Wrapf(err, "parsing template %s", path)
	}
	return &template, nil
}

// buildFixtureSnapshot normalizes the fixture payloads exactly the way
// the sources would, then assembles under the derived mode.
func buildFixtureSnapshot(fixture *sceneFixture) *assemble.ContextSnapshot {
	input := assemble.SnapshotInput{
		Session: assemble.AssembleSessionContext(
			"fixture",
			stringAt(fixture.Session, "title"),
			stringAt(fixture.Session, "notes"),
			fixture.UserName,
			assemble.CompressionLevel(fixture.CompressionLevel),
		),
		Messages: fixtureMessages(fixture.Messages),
	}

	if fixture.Character != nil {
		input.Character = assemble.AssembleCharacterContext(
			"fixture-character", source.NormalizeCard(fixture.Character))
	}
	if fixture.World != nil {
		input.World = assemble.AssembleWorldContext("fixture-world", fixture.World)
	}
	if fixture.Room != nil {
		input.Room = assemble.AssembleRoomContext(
			"fixture-room", "fixture-world", fixture.Room, fixtureNPCs(fixture.Room))
	}
	if fixture.Target != nil {
		input.ConversationTarget = fixtureTarget(fixture)
	}
	if fixture.Ally != nil {
		input.BondedAlly = fixtureAlly(fixture.Ally)
	}

	input.Mode = assemble.DetermineContextMode(assemble.ModeFlags{
		IsAssistantMode:      fixture.Assistant,
		IsWorldPlay:          fixture.World != nil,
		IsConversing:         fixture.Target != nil,
		IsBonded:             fixture.Bonded,
		HasBondedAllyPresent: fixture.Ally != nil,
	})

	return assemble.AssembleSnapshot(input)
}

func fixtureMessages(raw []fixtureMessage) []assemble.Message {
	messages := make([]assemble.Message, 0, len(raw))
	for i, m := range raw {
		messages = append(messages, assemble.Message{
			ID:      fmt.Sprintf("fixture-%d", i),
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return messages
}

// fixtureNPCs reads the room's raw npc list without character
// resolution; offline fixtures carry names inline.
func fixtureNPCs(room map[string]any) []assemble.RoomNPC {
	entries, _ := room["npcs"].([]any)
	npcs := make([]assemble.RoomNPC, 0, len(entries))
	for _, entry := range entries {
		item, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		npc := assemble.RoomNPC{
			CharacterID: stringAt(item, "character_id"),
			Name:        stringAt(item, "name"),
			Status:      stringAt(item, "status"),
			Hostile:     boolAt(item, "hostile"),
			Bonded:      boolAt(item, "bonded"),
		}
		if npc.Status == "" {
			npc.Status = assemble.NPCStatusAlive
		}
		npcs = append(npcs, npc)
	}
	return npcs
}

func fixtureTarget(fixture *sceneFixture) *assemble.ConversationTarget {
	target := &assemble.ConversationTarget{Hostile: fixture.TargetHostile}
	if c := source.NormalizeCard(fixture.Target); c != nil {
		target.Card = c
		target.Name = c.Data.Name
		target.ThinFrame = card.FrameFromExtensions(c.Data.Extensions)
	}
	return target
}

func fixtureAlly(raw map[string]any) *assemble.BondedAlly {
	ally := &assemble.BondedAlly{}
	if c := source.NormalizeCard(raw); c != nil {
		ally.Card = c
		ally.Name = c.Data.Name
	}
	return ally
}

func stringAt(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

func boolAt(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}
