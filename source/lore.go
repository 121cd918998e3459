package source

import (
	"log/slog"
	"sync"
	"time"

	"github.com/emberune/taleweave/assemble"
)

// TriggerStore persists triggered lore images across restarts so a
// character's gallery survives a process crash mid-session.
type TriggerStore interface {
	SaveTrigger(characterID string, trigger assemble.TriggeredLoreImage) error
	LoadTriggers(characterID string) ([]assemble.TriggeredLoreImage, error)
	DeleteTriggers(characterID string) error
	DeleteAllTriggers() error
}

// LoreSource holds per-character lore state: the entries the chat engine
// matched against recent messages, and the images those entries fired.
// Matching itself happens upstream; this source only records results.
// Unlike the fetching sources it is purely local, so there is no TTL.
type LoreSource struct {
	store  TriggerStore
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	entries   map[string][]assemble.LoreEntry
	triggered map[string]map[string]assemble.TriggeredLoreImage // characterID -> entryID
	loaded    map[string]bool
}

// NewLoreSource creates a lore source. store may be nil, in which case
// triggered images live only in memory.
func NewLoreSource(store TriggerStore, logger *slog.Logger) *LoreSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoreSource{
		store:     store,
		logger:    logger,
		now:       time.Now,
		entries:   make(map[string][]assemble.LoreEntry),
		triggered: make(map[string]map[string]assemble.TriggeredLoreImage),
		loaded:    make(map[string]bool),
	}
}

// Get returns the lore context for a character: active entries plus
// triggered images, newest trigger first.
func (s *LoreSource) Get(characterID string) *assemble.LoreContext {
	s.mu.Lock()
	s.ensureLoadedLocked(characterID)
	entries := append([]assemble.LoreEntry(nil), s.entries[characterID]...)
	triggered := s.triggeredListLocked(characterID)
	s.mu.Unlock()

	return assemble.AssembleLoreContext(characterID, entries, triggered)
}

// SetMatchedEntries replaces the character's active entries with the
// latest match result and auto-tracks every matched entry that carries
// an image.
func (s *LoreSource) SetMatchedEntries(characterID string, entries []assemble.LoreEntry) {
	s.mu.Lock()
	s.ensureLoadedLocked(characterID)
	s.entries[characterID] = append([]assemble.LoreEntry(nil), entries...)
	for _, entry := range entries {
		if entry.ImageUUID != "" {
			s.trackLocked(characterID, entry.ID, entry.ImageUUID)
		}
	}
	s.mu.Unlock()
}

// TrackTriggeredImage records that a lore image fired. Re-triggering an
// already-tracked entry only refreshes its timestamp; the list never
// grows a duplicate.
func (s *LoreSource) TrackTriggeredImage(characterID, entryID, imageUUID string) {
	s.mu.Lock()
	s.ensureLoadedLocked(characterID)
	s.trackLocked(characterID, entryID, imageUUID)
	s.mu.Unlock()
}

func (s *LoreSource) trackLocked(characterID, entryID, imageUUID string) {
	if s.triggered[characterID] == nil {
		s.triggered[characterID] = make(map[string]assemble.TriggeredLoreImage)
	}
	trigger := assemble.TriggeredLoreImage{
		EntryID:     entryID,
		ImageUUID:   imageUUID,
		TriggeredAt: s.now(),
	}
	s.triggered[characterID][entryID] = trigger

	if s.store != nil {
		if err := s.store.SaveTrigger(characterID, trigger); err != nil {
			s.logger.Warn("persisting lore trigger failed", "error", err, "character_id", characterID)
		}
	}
}

// TriggeredImages returns the character's fired images, newest first.
func (s *LoreSource) TriggeredImages(characterID string) []assemble.TriggeredLoreImage {
	s.mu.Lock()
	s.ensureLoadedLocked(characterID)
	list := s.triggeredListLocked(characterID)
	s.mu.Unlock()

	return assemble.AssembleLoreContext(characterID, nil, list).TriggeredImages
}

func (s *LoreSource) triggeredListLocked(characterID string) []assemble.TriggeredLoreImage {
	byEntry := s.triggered[characterID]
	if len(byEntry) == 0 {
		return nil
	}
	list := make([]assemble.TriggeredLoreImage, 0, len(byEntry))
	for _, trigger := range byEntry {
		list = append(list, trigger)
	}
	return list
}

// ensureLoadedLocked hydrates a character's triggers from the store on
// first access. Caller holds s.mu.
func (s *LoreSource) ensureLoadedLocked(characterID string) {
	if s.loaded[characterID] || s.store == nil {
		s.loaded[characterID] = true
		return
	}
	s.loaded[characterID] = true

	persisted, err := s.store.LoadTriggers(characterID)
	if err != nil {
		s.logger.Warn("loading lore triggers failed", "error", err, "character_id", characterID)
		return
	}
	for _, trigger := range persisted {
		if s.triggered[characterID] == nil {
			s.triggered[characterID] = make(map[string]assemble.TriggeredLoreImage)
		}
		// In-memory state wins over persisted state on conflict.
		if _, ok := s.triggered[characterID][trigger.EntryID]; !ok {
			s.triggered[characterID][trigger.EntryID] = trigger
		}
	}
}

// ResetTriggeredImages clears one character's fired images, typically
// on session reset.
func (s *LoreSource) ResetTriggeredImages(characterID string) {
	s.mu.Lock()
	delete(s.triggered, characterID)
	s.loaded[characterID] = true
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.DeleteTriggers(characterID); err != nil {
			s.logger.Warn("deleting lore triggers failed", "error", err, "character_id", characterID)
		}
	}
}

// ResetAllTriggeredImages clears fired images for every character.
func (s *LoreSource) ResetAllTriggeredImages() {
	s.mu.Lock()
	s.triggered = make(map[string]map[string]assemble.TriggeredLoreImage)
	s.loaded = make(map[string]bool)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.DeleteAllTriggers(); err != nil {
			s.logger.Warn("deleting lore triggers failed", "error", err)
		}
	}
}

// Clear drops all lore state, entries included.
func (s *LoreSource) Clear() {
	s.mu.Lock()
	s.entries = make(map[string][]assemble.LoreEntry)
	s.triggered = make(map[string]map[string]assemble.TriggeredLoreImage)
	s.loaded = make(map[string]bool)
	s.mu.Unlock()
}

// Dispose exists for surface symmetry with the cached sources.
func (s *LoreSource) Dispose() {}
