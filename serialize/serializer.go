package serialize

import (
	"fmt"
	"strings"
	"time"

	"github.com/emberune/taleweave/assemble"
	"github.com/emberune/taleweave/card"
)

// AssistantName is used when no character resolves for the snapshot.
const AssistantName = "Assistant"

// CompressedContext is a memoized summary produced by an external
// summarizer. The serializer only consumes it.
type CompressedContext struct {
	CompressedText           string                    `json:"compressed_text"`
	CompressedAtMessageCount int                       `json:"compressed_at_message_count"`
	CompressionLevel         assemble.CompressionLevel `json:"compression_level"`
	Timestamp                time.Time                 `json:"timestamp"`
}

// Options configures one serialization pass.
type Options struct {
	Template   *PromptTemplate
	Compressed *CompressedContext
}

// Metadata carries the per-field token breakdown for observability.
// It must never influence generation.
type Metadata struct {
	SnapshotID     string               `json:"snapshot_id"`
	Mode           assemble.ContextMode `json:"mode"`
	CharacterName  string               `json:"character_name"`
	FieldBreakdown []MemoryField        `json:"field_breakdown"`
	MemoryTokens   int                  `json:"memory_tokens"`
	SavedTokens    int                  `json:"saved_tokens"`
	HistoryTokens  int                  `json:"history_tokens"`
	PromptTokens   int                  `json:"prompt_tokens"`
	AssembledAt    time.Time            `json:"assembled_at"`
}

// SerializedContext is the final artifact handed to the prompt consumer.
type SerializedContext struct {
	Memory            *MemoryContext `json:"memory"`
	History           string         `json:"history"`
	NotesBlock        string         `json:"notes_block"`
	CompressedContext string         `json:"compressed_context"`
	Prompt            string         `json:"prompt"`
	StopSequences     []string       `json:"stop_sequences"`
	Metadata          Metadata       `json:"metadata"`
}

// ResolveCharacterCard is the canonical mode-keyed card selection; it
// must not be duplicated elsewhere. Assistant mode resolves no card.
func ResolveCharacterCard(s *assemble.ContextSnapshot) *card.MinimalCharacterCard {
	if s == nil {
		return nil
	}

	switch s.Mode {
	case assemble.ModeAssistant:
		return nil

	case assemble.ModeCharacter:
		if s.Character == nil {
			return nil
		}
		return s.Character.Card

	case assemble.ModeWorldNarrator:
		return worldAsCard(s.World)

	case assemble.ModeNPCConversation:
		if s.ConversationTarget == nil {
			return nil
		}
		if s.ConversationTarget.Card != nil {
			return s.ConversationTarget.Card
		}
		return assemble.BuildThinContextCard(s.ConversationTarget, s.Room, s.World)

	case assemble.ModeNPCBonded:
		if s.BondedAlly == nil {
			return nil
		}
		return s.BondedAlly.Card

	case assemble.ModeDualSpeaker:
		return assemble.BuildDualSpeakerCard(s.ConversationTarget, s.BondedAlly, s.Room, s.World)

	default:
		return nil
	}
}

// worldAsCard reinterprets the world sheet as a narrator card.
func worldAsCard(w *assemble.WorldContext) *card.MinimalCharacterCard {
	if w == nil {
		return nil
	}

	name := w.Name
	if name == "" {
		name = "Narrator"
	}
	return card.New(name,
		card.WithDescription(w.Description),
		card.WithSystemPrompt(w.SystemPrompt),
	)
}

// SerializeContext converts a snapshot into the final prompt. Block
// order is fixed: memory, compressed summary, session notes, history.
// An empty prompt falls back to "{characterName}:"; a resolved card in
// any non-assistant mode appends the same line as a ghost suffix to bias
// the model toward answering in character. The two never stack.
func SerializeContext(s *assemble.ContextSnapshot, opts Options) *SerializedContext {
	resolved := ResolveCharacterCard(s)

	characterName := resolved.Name()
	if characterName == "" {
		characterName = AssistantName
	}

	userName := ""
	level := assemble.CompressionNone
	notes := ""
	if s.Session != nil {
		userName = s.Session.UserName
		level = s.Session.CompressionLevel
		notes = s.Session.Notes
	}

	memory := CreateMemoryContext(resolved, opts.Template, userName, level, len(s.Messages))
	history := FormatChatHistory(s.Messages, characterName, userName, opts.Template)

	notesBlock := ""
	if normalized := NormalizeNotes(notes); normalized != "" {
		notesBlock = "[Session Notes]\n" + normalized + "\n[End Session Notes]"
	}

	compressedBlock := ""
	if opts.Compressed != nil && strings.TrimSpace(opts.Compressed.CompressedText) != "" {
		compressedBlock = "[Previous Events Summary]\n" +
			strings.TrimSpace(opts.Compressed.CompressedText) +
			"\n[End Summary - Continue from here]"
	}

	blocks := make([]string, 0, 4)
	for _, block := range []string{memory.Text, compressedBlock, notesBlock, history} {
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	prompt := strings.Join(blocks, "\n\n")

	ghost := resolved != nil && s.Mode != assemble.ModeAssistant
	if strings.TrimSpace(prompt) == "" {
		prompt = fmt.Sprintf("%s:", characterName)
	} else if ghost {
		prompt += fmt.Sprintf("\n%s:", characterName)
	}

	return &SerializedContext{
		Memory:            memory,
		History:           history,
		NotesBlock:        notesBlock,
		CompressedContext: compressedBlock,
		Prompt:            prompt,
		StopSequences:     GetStopSequences(opts.Template, characterName, userName),
		Metadata: Metadata{
			SnapshotID:     s.ID,
			Mode:           s.Mode,
			CharacterName:  characterName,
			FieldBreakdown: memory.Fields,
			MemoryTokens:   memory.TotalTokens,
			SavedTokens:    memory.SavedTokens,
			HistoryTokens:  EstimateTokens(history),
			PromptTokens:   EstimateTokens(prompt),
			AssembledAt:    s.AssembledAt,
		},
	}
}

// GetStopSequences returns the sequences that end a generation turn.
// Template-provided sequences win, with {{char}} and {{user}}
// substituted; otherwise a fixed default set is used.
func GetStopSequences(tmpl *PromptTemplate, characterName, userName string) []string {
	if tmpl != nil && len(tmpl.StopSequences) > 0 {
		out := make([]string, 0, len(tmpl.StopSequences))
		for _, seq := range tmpl.StopSequences {
			seq = substituteChar(seq, characterName)
			seq = substituteUser(seq, userName)
			out = append(out, seq)
		}
		return out
	}

	defaults := []string{"\nUser:"}
	if userName != "" {
		defaults = append(defaults, "\n"+userName+":")
	}
	return append(defaults, "[/INST]", "</s>")
}
