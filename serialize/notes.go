package serialize

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
)

var notesMarkdown = goldmark.New()

// NormalizeNotes flattens markdown session notes into plain prompt
// text. The client stores notes as markdown; the model should see prose,
// not markup.
func NormalizeNotes(notes string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := notesMarkdown.Convert([]byte(notes), &buf); err != nil {
		// Malformed markdown is still usable text
		return StripHTML(notes)
	}
	return StripHTML(buf.String())
}
