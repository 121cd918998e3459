package card

import (
	"strings"
	"time"
)

// ThinFrameExtensionKey is where a pre-generated frame is embedded in a
// character card's extensions.
const ThinFrameExtensionKey = "thin_frame"

// Frame sources.
const (
	FrameSourceGenerated = "generated"
	FrameSourceEmbedded  = "embedded"
	FrameSourceFallback  = "fallback"
)

// ThinFrame is a short identity summary for an NPC, used where a full
// character card is unavailable or too large for the token budget.
type ThinFrame struct {
	Name        string    `json:"name"`
	Essence     string    `json:"essence"`
	Speech      string    `json:"speech,omitempty"`
	Motive      string    `json:"motive,omitempty"`
	GeneratedAt time.Time `json:"generated_at,omitempty"`
	Source      string    `json:"source,omitempty"`
}

// Valid reports whether the frame carries the minimum renderable shape.
func (f *ThinFrame) Valid() bool {
	return f != nil && strings.TrimSpace(f.Name) != "" && strings.TrimSpace(f.Essence) != ""
}

// FrameFromExtensions extracts an embedded thin frame from a card's
// extensions map, returning nil when absent or schema-invalid.
func FrameFromExtensions(ext map[string]any) *ThinFrame {
	raw, ok := ext[ThinFrameExtensionKey].(map[string]any)
	if !ok {
		return nil
	}

	frame := &ThinFrame{
		Name:    stringField(raw, "name"),
		Essence: stringField(raw, "essence"),
		Speech:  stringField(raw, "speech"),
		Motive:  stringField(raw, "motive"),
		Source:  FrameSourceEmbedded,
	}
	if !frame.Valid() {
		return nil
	}
	return frame
}

// FallbackFrame derives a frame locally when generation is unavailable:
// the first two sentences of the description plus the first clause of
// the personality.
func FallbackFrame(name, description, personality string) *ThinFrame {
	frame := &ThinFrame{
		Name:        name,
		Essence:     FirstSentences(description, 2),
		Speech:      FirstClause(personality),
		GeneratedAt: time.Now(),
		Source:      FrameSourceFallback,
	}
	if frame.Essence == "" {
		frame.Essence = name
	}
	return frame
}

// AsCard renders a thin frame as a minimal card so frame-only NPCs
// satisfy the same contract as full characters.
func (f *ThinFrame) AsCard() *MinimalCharacterCard {
	return New(f.Name,
		WithDescription(f.Essence),
		WithPersonality(f.joinTraits()),
	)
}

func (f *ThinFrame) joinTraits() string {
	parts := make([]string, 0, 2)
	if f.Speech != "" {
		parts = append(parts, f.Speech)
	}
	if f.Motive != "" {
		parts = append(parts, f.Motive)
	}
	return strings.Join(parts, " ")
}

// FirstSentences returns the first n sentences of text, trimmed.
func FirstSentences(text string, n int) string {
	text = strings.TrimSpace(text)
	if text == "" || n <= 0 {
		return ""
	}

	count := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			count++
			if count == n {
				return strings.TrimSpace(text[:i+1])
			}
		}
	}
	return text
}

// FirstClause returns the text up to the first comma, semicolon or
// sentence terminator.
func FirstClause(text string) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		switch r {
		case ',', ';', '.', '!', '?':
			return strings.TrimSpace(text[:i])
		}
	}
	return text
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
