package source

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/emberune/taleweave/assemble"
	"github.com/emberune/taleweave/card"
)

// MockBackend is an in-memory Backend for testing. Fetch counters make
// cache behavior observable, and FailNext forces the next fetch of a
// given kind to error.
type MockBackend struct {
	mu sync.Mutex

	Characters map[string]map[string]any
	Worlds     map[string]map[string]any
	Rooms      map[string]map[string]any
	Sessions   map[string]map[string]any
	Logs       map[string][]map[string]any

	FetchCounts map[string]int
	FailNext    map[string]bool

	SavedNotes  map[string]string
	SavedTitles map[string]string
}

// NewMockBackend creates an empty mock backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		Characters:  make(map[string]map[string]any),
		Worlds:      make(map[string]map[string]any),
		Rooms:       make(map[string]map[string]any),
		Sessions:    make(map[string]map[string]any),
		Logs:        make(map[string][]map[string]any),
		FetchCounts: make(map[string]int),
		FailNext:    make(map[string]bool),
		SavedNotes:  make(map[string]string),
		SavedTitles: make(map[string]string),
	}
}

func (m *MockBackend) fetch(kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCounts[kind]++
	if m.FailNext[kind] {
		m.FailNext[kind] = false
		return errors.Errorf("mock %s fetch failed", kind)
	}
	return nil
}

// Count returns how many fetches of a kind have happened.
func (m *MockBackend) Count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FetchCounts[kind]
}

// FetchCharacter returns the seeded raw character payload.
func (m *MockBackend) FetchCharacter(ctx context.Context, id string) (map[string]any, error) {
	if err := m.fetch("character"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.Characters[id]
	if !ok {
		return nil, errors.Errorf("character %s not found", id)
	}
	return raw, nil
}

// FetchWorld returns the seeded raw world payload.
func (m *MockBackend) FetchWorld(ctx context.Context, id string) (map[string]any, error) {
	if err := m.fetch("world"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.Worlds[id]
	if !ok {
		return nil, errors.Errorf("world %s not found", id)
	}
	return raw, nil
}

// FetchRoom returns the seeded raw room payload.
func (m *MockBackend) FetchRoom(ctx context.Context, id string) (map[string]any, error) {
	if err := m.fetch("room"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.Rooms[id]
	if !ok {
		return nil, errors.Errorf("room %s not found", id)
	}
	return raw, nil
}

// FetchSession returns the seeded raw session payload.
func (m *MockBackend) FetchSession(ctx context.Context, id string) (map[string]any, error) {
	if err := m.fetch("session"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Sessions[id], nil
}

// SaveNotes records the saved notes.
func (m *MockBackend) SaveNotes(ctx context.Context, id, notes string) error {
	if err := m.fetch("save_notes"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SavedNotes[id] = notes
	return nil
}

// SaveTitle records the saved title.
func (m *MockBackend) SaveTitle(ctx context.Context, id, title string) error {
	if err := m.fetch("save_title"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SavedTitles[id] = title
	return nil
}

// FetchAdventureLog returns the seeded journey log.
func (m *MockBackend) FetchAdventureLog(ctx context.Context, worldID, userID string) ([]map[string]any, error) {
	if err := m.fetch("adventure_log"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Logs[JoinKey(worldID, userID)], nil
}

// MockSettingsStore is an in-memory SettingsStore for testing.
type MockSettingsStore struct {
	mu     sync.Mutex
	values map[string]string

	FailNext bool
}

// NewMockSettingsStore creates an empty mock settings store.
func NewMockSettingsStore() *MockSettingsStore {
	return &MockSettingsStore{values: make(map[string]string)}
}

// GetSetting returns the stored value, empty when unset.
func (m *MockSettingsStore) GetSetting(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext {
		m.FailNext = false
		return "", errors.New("mock settings read failed")
	}
	return m.values[key], nil
}

// SetSetting stores the value.
func (m *MockSettingsStore) SetSetting(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext {
		m.FailNext = false
		return errors.New("mock settings write failed")
	}
	m.values[key] = value
	return nil
}

// MockTriggerStore is an in-memory TriggerStore for testing.
type MockTriggerStore struct {
	mu       sync.Mutex
	triggers map[string]map[string]assemble.TriggeredLoreImage

	SaveCount int
}

// NewMockTriggerStore creates an empty mock trigger store.
func NewMockTriggerStore() *MockTriggerStore {
	return &MockTriggerStore{triggers: make(map[string]map[string]assemble.TriggeredLoreImage)}
}

// SaveTrigger upserts a trigger by entry ID.
func (m *MockTriggerStore) SaveTrigger(characterID string, trigger assemble.TriggeredLoreImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.triggers[characterID] == nil {
		m.triggers[characterID] = make(map[string]assemble.TriggeredLoreImage)
	}
	m.triggers[characterID][trigger.EntryID] = trigger
	m.SaveCount++
	return nil
}

// LoadTriggers returns a character's persisted triggers.
func (m *MockTriggerStore) LoadTriggers(characterID string) ([]assemble.TriggeredLoreImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []assemble.TriggeredLoreImage
	for _, trigger := range m.triggers[characterID] {
		list = append(list, trigger)
	}
	return list, nil
}

// DeleteTriggers removes one character's triggers.
func (m *MockTriggerStore) DeleteTriggers(characterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.triggers, characterID)
	return nil
}

// DeleteAllTriggers removes every trigger.
func (m *MockTriggerStore) DeleteAllTriggers() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers = make(map[string]map[string]assemble.TriggeredLoreImage)
	return nil
}

// MockFrameGenerator is a FrameGenerator for testing with a scriptable
// result, optional error and a call counter.
type MockFrameGenerator struct {
	mu    sync.Mutex
	calls int

	Frame *card.ThinFrame
	Err   error
	Delay func() // runs inside Generate, before returning
}

// Generate returns the scripted frame or error.
func (m *MockFrameGenerator) Generate(ctx context.Context, c *card.MinimalCharacterCard) (*card.ThinFrame, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Delay != nil {
		m.Delay()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Frame != nil {
		frame := *m.Frame
		return &frame, nil
	}
	return &card.ThinFrame{
		Name:    c.Data.Name,
		Essence: "A generated essence.",
		Source:  card.FrameSourceGenerated,
	}, nil
}

// Calls returns how many generations were requested.
func (m *MockFrameGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Interface guards.
var (
	_ Backend        = (*MockBackend)(nil)
	_ SettingsStore  = (*MockSettingsStore)(nil)
	_ TriggerStore   = (*MockTriggerStore)(nil)
	_ FrameGenerator = (*MockFrameGenerator)(nil)
)
