// Package serialize turns a context snapshot into LLM-ready text:
// a memory block with field expiration and token accounting, formatted
// chat history, stop sequences and the final prompt string. Everything
// here is pure; failures degrade to fixed-layout fallbacks instead of
// failing the request.
package serialize

import (
	"regexp"
	"strings"

	"github.com/emberune/taleweave/internal/errors"
)

// PromptTemplate describes how a model family wants its prompt laid
// out. A nil template (or empty format strings) selects the fixed
// fallback layout.
type PromptTemplate struct {
	Name string `json:"name"`

	// MemoryFormat renders the memory block with {{var}} placeholders:
	// system_prompt, description, personality, scenario, mes_example,
	// char, user.
	MemoryFormat string `json:"memory_format,omitempty"`

	// Per-role history formats with {{char}}, {{user}} and {{message}}.
	AssistantFormat string `json:"assistant_format,omitempty"`
	UserFormat      string `json:"user_format,omitempty"`
	SystemFormat    string `json:"system_format,omitempty"`

	// StopSequences override the defaults; {{char}} and {{user}} are
	// substituted.
	StopSequences []string `json:"stop_sequences,omitempty"`
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// renderTemplate substitutes {{name}} placeholders from vars. A
// placeholder with no binding is a template error; callers fall back to
// the fixed layout rather than failing the request.
func renderTemplate(format string, vars map[string]string) (string, error) {
	var unknown string
	out := placeholderPattern.ReplaceAllStringFunc(format, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := vars[name]
		if !ok {
			if unknown == "" {
				unknown = name
			}
			return match
		}
		return value
	})

	if unknown != "" {
		return "", errors.TemplateFailed("unknown placeholder: "+unknown, nil)
	}
	return out, nil
}

// substituteUser replaces {{user}} with the current user name.
func substituteUser(text, userName string) string {
	if userName == "" {
		return text
	}
	return strings.ReplaceAll(text, "{{user}}", userName)
}

// substituteChar replaces {{char}} with the character name.
func substituteChar(text, characterName string) string {
	if characterName == "" {
		return text
	}
	return strings.ReplaceAll(text, "{{char}}", characterName)
}
