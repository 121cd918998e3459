package serialize

import (
	"fmt"
	"strings"

	"github.com/emberune/taleweave/assemble"
	"github.com/emberune/taleweave/card"
)

// FieldState classifies a memory field in the token breakdown.
type FieldState string

const (
	// FieldPermanent never expires regardless of compression settings.
	FieldPermanent FieldState = "permanent"
	// FieldActive is a non-permanent field still inside its window.
	FieldActive FieldState = "active"
	// FieldExpired has been dropped from the memory block.
	FieldExpired FieldState = "expired"
)

// Memory field names as they appear in breakdowns and templates.
const (
	FieldSystemPrompt = "system_prompt"
	FieldDescription  = "description"
	FieldPersonality  = "personality"
	FieldScenario     = "scenario"
	FieldMesExample   = "mes_example"
)

// fieldSpec is the static expiration policy for one candidate field.
type fieldSpec struct {
	name             string
	permanent        bool
	minLevel         assemble.CompressionLevel
	expiresAtMessage int
}

// The five candidate fields. system_prompt/description/personality are
// permanent; scenario and mes_example expire once the conversation is
// long enough and the compression level is at least the field minimum.
var memoryFields = []fieldSpec{
	{name: FieldSystemPrompt, permanent: true},
	{name: FieldDescription, permanent: true},
	{name: FieldPersonality, permanent: true},
	{name: FieldMesExample, minLevel: assemble.CompressionChatOnly, expiresAtMessage: 6},
	{name: FieldScenario, minLevel: assemble.CompressionChatDialogue, expiresAtMessage: 10},
}

// MemoryField is one row of the per-field token breakdown.
type MemoryField struct {
	Name   string     `json:"name"`
	Tokens int        `json:"tokens"`
	State  FieldState `json:"state"`
}

// MemoryContext is the rendered memory block plus its token accounting.
type MemoryContext struct {
	Text        string        `json:"text"`
	TotalTokens int           `json:"total_tokens"`
	SavedTokens int           `json:"saved_tokens"`
	Fields      []MemoryField `json:"fields"`
}

// EstimateTokens approximates the token cost of text: roughly four
// characters per token, rounded up.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// ShouldExpireField reports whether a field is dropped at the given
// compression level and message count. Permanent fields never expire and
// CompressionNone expires nothing.
func ShouldExpireField(spec fieldSpec, level assemble.CompressionLevel, messageCount int) bool {
	if spec.permanent {
		return false
	}
	if level.Rank() == 0 {
		return false
	}
	return level.Rank() >= spec.minLevel.Rank() && messageCount >= spec.expiresAtMessage
}

// CreateMemoryContext renders the character card into the memory block,
// expiring lower-priority fields as the conversation grows. Expired
// fields contribute to SavedTokens and render as the empty string.
func CreateMemoryContext(c *card.MinimalCharacterCard, tmpl *PromptTemplate, userName string, level assemble.CompressionLevel, messageCount int) *MemoryContext {
	mem := &MemoryContext{}
	if c == nil {
		return mem
	}

	values := map[string]string{
		FieldSystemPrompt: c.Data.SystemPrompt,
		FieldDescription:  c.Data.Description,
		FieldPersonality:  c.Data.Personality,
		FieldScenario:     substituteUser(c.Data.Scenario, userName),
		FieldMesExample:   c.Data.MesExample,
	}

	rendered := make(map[string]string, len(values))
	for _, spec := range memoryFields {
		text := values[spec.name]
		tokens := EstimateTokens(text)

		state := FieldActive
		if spec.permanent {
			state = FieldPermanent
		}
		if ShouldExpireField(spec, level, messageCount) {
			state = FieldExpired
		}

		if state == FieldExpired {
			mem.SavedTokens += tokens
			rendered[spec.name] = ""
		} else {
			mem.TotalTokens += tokens
			rendered[spec.name] = text
		}

		mem.Fields = append(mem.Fields, MemoryField{Name: spec.name, Tokens: tokens, State: state})
	}

	mem.Text = renderMemory(rendered, tmpl, c.Data.Name, userName)
	return mem
}

// renderMemory applies the template memory format when one is supplied,
// falling back to the fixed layout on any template error.
func renderMemory(fields map[string]string, tmpl *PromptTemplate, characterName, userName string) string {
	if tmpl != nil && tmpl.MemoryFormat != "" {
		vars := map[string]string{
			FieldSystemPrompt: fields[FieldSystemPrompt],
			FieldDescription:  fields[FieldDescription],
			FieldPersonality:  fields[FieldPersonality],
			FieldScenario:     fields[FieldScenario],
			FieldMesExample:   fields[FieldMesExample],
			"char":            characterName,
			"user":            userName,
		}
		if out, err := renderTemplate(tmpl.MemoryFormat, vars); err == nil {
			return strings.TrimSpace(out)
		}
		// Template errors fall through to the fixed layout.
	}

	return fixedMemoryLayout(fields, characterName)
}

// fixedMemoryLayout is the template-free rendering: system prompt,
// persona, personality, bracketed scenario, example dialogue, divider.
// Empty fields are skipped entirely.
func fixedMemoryLayout(fields map[string]string, characterName string) string {
	var lines []string

	if s := fields[FieldSystemPrompt]; s != "" {
		lines = append(lines, s)
	}
	if s := fields[FieldDescription]; s != "" {
		lines = append(lines, fmt.Sprintf("%s's Persona: %s", characterName, s))
	}
	if s := fields[FieldPersonality]; s != "" {
		lines = append(lines, "Personality: "+s)
	}
	if s := fields[FieldScenario]; s != "" {
		lines = append(lines, "[Scenario: "+s+"]")
	}
	if s := fields[FieldMesExample]; s != "" {
		lines = append(lines, s)
	}

	if len(lines) == 0 {
		return ""
	}
	lines = append(lines, "***")
	return strings.Join(lines, "\n")
}
