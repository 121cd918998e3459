package serialize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emberune/taleweave/assemble"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello there", "hello there"},
		{"tags", "<p>hello <em>there</em></p>", "hello there"},
		{"entities", "salt &amp; iron", "salt & iron"},
		{"collapses blank runs", "a\n\n\n\nb", "a\n\nb"},
		{"trims", "  <div>x</div>  ", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripHTML(tt.in))
		})
	}
}

func TestFormatChatHistory_Fallback(t *testing.T) {
	messages := []assemble.Message{
		{Role: "system", Content: "The rain has stopped."},
		{Role: "user", Content: "I push open the door."},
		{Role: "thinking", Content: "internal chain of thought"},
		{Role: "assistant", Content: "<p>Mira looks up from her maps.</p>"},
	}

	out := FormatChatHistory(messages, "Mira", "Robin", nil)

	assert.Contains(t, out, "[System: The rain has stopped.]")
	assert.Contains(t, out, "I push open the door.")
	assert.Contains(t, out, "Mira: Mira looks up from her maps.")
	assert.NotContains(t, out, "internal chain of thought")
	assert.NotContains(t, out, "<p>")
}

func TestFormatChatHistory_Variations(t *testing.T) {
	messages := []assemble.Message{
		{
			Role:             "assistant",
			Content:          "original reply",
			Variations:       []string{"first swipe", "second swipe"},
			CurrentVariation: 1,
		},
	}

	out := FormatChatHistory(messages, "Mira", "", nil)
	assert.Contains(t, out, "second swipe")
	assert.NotContains(t, out, "original reply")
}

func TestFormatChatHistory_Template(t *testing.T) {
	tmpl := &PromptTemplate{
		AssistantFormat: "<|assistant|>{{char}}: {{message}}",
		UserFormat:      "<|user|>{{user}}: {{message}}",
		SystemFormat:    "<|system|>{{message}}",
	}
	messages := []assemble.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "well met"},
		{Role: "system", Content: "dusk falls"},
	}

	out := FormatChatHistory(messages, "Mira", "Robin", tmpl)

	assert.Contains(t, out, "<|user|>Robin: hello")
	assert.Contains(t, out, "<|assistant|>Mira: well met")
	assert.Contains(t, out, "<|system|>dusk falls")
}

func TestFormatChatHistory_BadTemplateFallsBack(t *testing.T) {
	tmpl := &PromptTemplate{AssistantFormat: "{{bogus}} {{message}}"}
	messages := []assemble.Message{{Role: "assistant", Content: "well met"}}

	out := FormatChatHistory(messages, "Mira", "", tmpl)
	assert.Equal(t, "Mira: well met", out)
}

func TestFormatChatHistory_EmptyAfterStripSkipped(t *testing.T) {
	messages := []assemble.Message{
		{Role: "user", Content: "<div></div>"},
		{Role: "user", Content: "real content"},
	}

	out := FormatChatHistory(messages, "Mira", "", nil)
	assert.Equal(t, "real content", out)
}

func TestNormalizeNotes(t *testing.T) {
	t.Run("Markdown", func(t *testing.T) {
		out := NormalizeNotes("# Plans\n\n- find the **courier**\n- avoid the guard")
		assert.Contains(t, out, "Plans")
		assert.Contains(t, out, "find the courier")
		assert.NotContains(t, out, "**")
		assert.NotContains(t, out, "<li>")
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, "", NormalizeNotes("   "))
	})
}
