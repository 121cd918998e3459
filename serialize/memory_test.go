package serialize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberune/taleweave/assemble"
	"github.com/emberune/taleweave/card"
)

func testCard() *card.MinimalCharacterCard {
	return card.New("Mira",
		card.WithSystemPrompt("Stay in character."),
		card.WithDescription("A wandering cartographer with ink-stained hands."),
		card.WithPersonality("Curious, methodical, quietly stubborn."),
		card.WithScenario("{{user}} meets Mira at a crossroads shrine."),
		card.WithMesExample("<START>\nMira: The road north floods in spring."),
	)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}

// For every level and message count: a field expires iff it is
// non-permanent, the level meets the field minimum and the count meets
// the field threshold. CompressionNone never expires anything.
func TestShouldExpireField_Property(t *testing.T) {
	levels := []assemble.CompressionLevel{
		assemble.CompressionNone,
		assemble.CompressionChatOnly,
		assemble.CompressionChatDialogue,
		assemble.CompressionAggressive,
	}

	for _, spec := range memoryFields {
		for _, level := range levels {
			for _, count := range []int{0, 1, 5, 6, 9, 10, 11, 50} {
				want := !spec.permanent &&
					level.Rank() > 0 &&
					level.Rank() >= spec.minLevel.Rank() &&
					count >= spec.expiresAtMessage

				got := ShouldExpireField(spec, level, count)
				assert.Equal(t, want, got, "field=%s level=%s count=%d", spec.name, level, count)
			}
		}
	}
}

func TestCreateMemoryContext_NoCompression(t *testing.T) {
	mem := CreateMemoryContext(testCard(), nil, "Robin", assemble.CompressionNone, 100)

	require.Len(t, mem.Fields, 5)
	for _, f := range mem.Fields {
		assert.NotEqual(t, FieldExpired, f.State, "field %s", f.Name)
	}
	assert.Zero(t, mem.SavedTokens)
	assert.Positive(t, mem.TotalTokens)

	assert.Contains(t, mem.Text, "Stay in character.")
	assert.Contains(t, mem.Text, "Mira's Persona:")
	assert.Contains(t, mem.Text, "[Scenario: Robin meets Mira at a crossroads shrine.]")
	assert.True(t, strings.HasSuffix(mem.Text, "***"))
}

func TestCreateMemoryContext_AggressiveExpiresScenario(t *testing.T) {
	mem := CreateMemoryContext(testCard(), nil, "Robin", assemble.CompressionAggressive, 10)

	var scenario, example MemoryField
	for _, f := range mem.Fields {
		switch f.Name {
		case FieldScenario:
			scenario = f
		case FieldMesExample:
			example = f
		}
	}

	assert.Equal(t, FieldExpired, scenario.State)
	assert.Equal(t, FieldExpired, example.State)
	assert.NotContains(t, mem.Text, "[Scenario:")
	assert.NotContains(t, mem.Text, "road north")
	assert.Positive(t, mem.SavedTokens)

	// Permanent fields survive any compression
	assert.Contains(t, mem.Text, "Mira's Persona:")
	assert.Contains(t, mem.Text, "Personality:")
}

func TestCreateMemoryContext_ChatOnlyKeepsScenario(t *testing.T) {
	mem := CreateMemoryContext(testCard(), nil, "Robin", assemble.CompressionChatOnly, 50)

	for _, f := range mem.Fields {
		switch f.Name {
		case FieldScenario:
			// chat_only is below the scenario minimum level
			assert.Equal(t, FieldActive, f.State)
		case FieldMesExample:
			assert.Equal(t, FieldExpired, f.State)
		}
	}
	assert.Contains(t, mem.Text, "[Scenario:")
}

func TestCreateMemoryContext_ShortConversationExpiresNothing(t *testing.T) {
	mem := CreateMemoryContext(testCard(), nil, "Robin", assemble.CompressionAggressive, 3)
	assert.Zero(t, mem.SavedTokens)
}

func TestCreateMemoryContext_Template(t *testing.T) {
	t.Run("RendersMemoryFormat", func(t *testing.T) {
		tmpl := &PromptTemplate{
			MemoryFormat: "### {{char}}\n{{system_prompt}}\n{{description}}\n{{scenario}}",
		}
		mem := CreateMemoryContext(testCard(), tmpl, "Robin", assemble.CompressionNone, 0)

		assert.Contains(t, mem.Text, "### Mira")
		assert.Contains(t, mem.Text, "Robin meets Mira at a crossroads shrine.")
		assert.NotContains(t, mem.Text, "***")
	})

	t.Run("UnknownPlaceholderFallsBack", func(t *testing.T) {
		tmpl := &PromptTemplate{MemoryFormat: "{{system_prompt}} {{nonsense}}"}
		mem := CreateMemoryContext(testCard(), tmpl, "Robin", assemble.CompressionNone, 0)

		// Fixed layout instead of a failed request
		assert.Contains(t, mem.Text, "Mira's Persona:")
		assert.True(t, strings.HasSuffix(mem.Text, "***"))
	})

	t.Run("ExpiredFieldRendersEmptyInTemplate", func(t *testing.T) {
		tmpl := &PromptTemplate{MemoryFormat: "S[{{scenario}}]"}
		mem := CreateMemoryContext(testCard(), tmpl, "Robin", assemble.CompressionAggressive, 10)
		assert.Equal(t, "S[]", mem.Text)
	})
}

func TestCreateMemoryContext_NilCard(t *testing.T) {
	mem := CreateMemoryContext(nil, nil, "Robin", assemble.CompressionNone, 0)
	assert.Empty(t, mem.Text)
	assert.Zero(t, mem.TotalTokens)
	assert.Empty(t, mem.Fields)
}

func TestFixedMemoryLayout_SkipsEmptyFields(t *testing.T) {
	c := card.New("Mira", card.WithDescription("A cartographer."))
	mem := CreateMemoryContext(c, nil, "", assemble.CompressionNone, 0)

	assert.NotContains(t, mem.Text, "[Scenario:")
	assert.NotContains(t, mem.Text, "Personality:")
	assert.Contains(t, mem.Text, "Mira's Persona: A cartographer.")
}
