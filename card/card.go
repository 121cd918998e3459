// Package card defines the minimal character-card representation shared
// by every mode. It is a structurally-typed subset of the persisted
// character schema: thin-frame NPCs, world narrators and dynamically
// built dual-speaker cards all satisfy the same contract.
package card

// CurrentSpec is the card spec identifier emitted for dynamically
// built cards.
const (
	CurrentSpec        = "chara_card_v2"
	CurrentSpecVersion = "2.0"
)

// MinimalCharacterCard carries just enough of a character to render a
// prompt memory block.
type MinimalCharacterCard struct {
	Spec        string   `json:"spec"`
	SpecVersion string   `json:"spec_version"`
	Data        CardData `json:"data"`
}

// CardData is the renderable payload of a card.
type CardData struct {
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	Personality       string         `json:"personality"`
	Scenario          string         `json:"scenario"`
	FirstMes          string         `json:"first_mes"`
	AlternateGreetings []string      `json:"alternate_greetings,omitempty"`
	MesExample        string         `json:"mes_example"`
	SystemPrompt      string         `json:"system_prompt"`
	CreatorNotes      string         `json:"creator_notes,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	Extensions        map[string]any `json:"extensions,omitempty"`
}

// Option mutates a card under construction.
type Option func(*CardData)

// WithDescription sets the card description.
func WithDescription(desc string) Option {
	return func(d *CardData) { d.Description = desc }
}

// WithPersonality sets the card personality.
func WithPersonality(p string) Option {
	return func(d *CardData) { d.Personality = p }
}

// WithScenario sets the card scenario.
func WithScenario(s string) Option {
	return func(d *CardData) { d.Scenario = s }
}

// WithSystemPrompt sets the card system prompt.
func WithSystemPrompt(s string) Option {
	return func(d *CardData) { d.SystemPrompt = s }
}

// WithFirstMes sets the card greeting.
func WithFirstMes(s string) Option {
	return func(d *CardData) { d.FirstMes = s }
}

// WithMesExample sets the card example dialogue.
func WithMesExample(s string) Option {
	return func(d *CardData) { d.MesExample = s }
}

// WithExtensions sets the card extensions map.
func WithExtensions(ext map[string]any) Option {
	return func(d *CardData) { d.Extensions = ext }
}

// New builds a card with consistent defaults. Every dynamic card in the
// codebase goes through here so call sites never re-derive defaults.
func New(name string, opts ...Option) *MinimalCharacterCard {
	if name == "" {
		name = "Unknown"
	}

	data := CardData{
		Name:       name,
		Extensions: map[string]any{},
	}
	for _, opt := range opts {
		opt(&data)
	}

	return &MinimalCharacterCard{
		Spec:        CurrentSpec,
		SpecVersion: CurrentSpecVersion,
		Data:        data,
	}
}

// Clone returns a deep-enough copy for safe mutation: the extensions map
// and slices are copied, string fields are immutable.
func (c *MinimalCharacterCard) Clone() *MinimalCharacterCard {
	if c == nil {
		return nil
	}

	clone := *c
	if c.Data.Extensions != nil {
		ext := make(map[string]any, len(c.Data.Extensions))
		for k, v := range c.Data.Extensions {
			ext[k] = v
		}
		clone.Data.Extensions = ext
	}
	if c.Data.AlternateGreetings != nil {
		clone.Data.AlternateGreetings = append([]string(nil), c.Data.AlternateGreetings...)
	}
	if c.Data.Tags != nil {
		clone.Data.Tags = append([]string(nil), c.Data.Tags...)
	}
	return &clone
}

// Name returns the card's display name, or "" for a nil card.
func (c *MinimalCharacterCard) Name() string {
	if c == nil {
		return ""
	}
	return c.Data.Name
}
