package serialize

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/emberune/taleweave/assemble"
)

var (
	htmlTagPattern   = regexp.MustCompile(`<[^>]*>`)
	blankRunPattern  = regexp.MustCompile(`\n{3,}`)
	spaceRunPattern  = regexp.MustCompile(`[ \t]{2,}`)
)

// StripHTML removes markup from message content before it reaches the
// prompt: tags are dropped, entities unescaped, whitespace collapsed.
func StripHTML(text string) string {
	text = htmlTagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = spaceRunPattern.ReplaceAllString(text, " ")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// FormatChatHistory renders the snapshot's recent turns. Thinking-role
// messages are dropped, recorded variations win over original content,
// and each message is stripped of HTML. Role formats come from the
// template when provided, otherwise a bracketed fallback is used.
func FormatChatHistory(messages []assemble.Message, characterName, userName string, tmpl *PromptTemplate) string {
	var lines []string

	for _, m := range messages {
		if m.Role == "thinking" {
			continue
		}

		text := StripHTML(m.Text())
		if text == "" {
			continue
		}

		lines = append(lines, formatMessage(m.Role, text, characterName, userName, tmpl))
	}

	return strings.Join(lines, "\n")
}

func formatMessage(role, text, characterName, userName string, tmpl *PromptTemplate) string {
	if tmpl != nil {
		if format := roleFormat(tmpl, role); format != "" {
			vars := map[string]string{
				"char":    characterName,
				"user":    userName,
				"message": text,
			}
			if out, err := renderTemplate(format, vars); err == nil {
				return out
			}
		}
	}

	switch role {
	case "system":
		return fmt.Sprintf("[System: %s]", text)
	case "assistant":
		if characterName != "" {
			return fmt.Sprintf("%s: %s", characterName, text)
		}
		return text
	default:
		// User turns render as raw text
		return text
	}
}

func roleFormat(tmpl *PromptTemplate, role string) string {
	switch role {
	case "assistant":
		return tmpl.AssistantFormat
	case "user":
		return tmpl.UserFormat
	case "system":
		return tmpl.SystemFormat
	default:
		return ""
	}
}
