package source

import (
	"log/slog"

	"github.com/pkg/errors"
)

// Backend is the full fetch surface the sources need from the upstream
// service. backend.Client satisfies it.
type Backend interface {
	CharacterFetcher
	WorldFetcher
	RoomFetcher
	AdventureLogFetcher
	SessionSettingsService
}

// Dependencies are the externally-owned collaborators a registry wires
// into its sources.
type Dependencies struct {
	Backend   Backend
	Settings  SettingsStore
	Triggers  TriggerStore
	Generator FrameGenerator
	Logger    *slog.Logger
}

// Registry owns one instance of every source and their shared wiring.
// Construct it once at startup, pass it by reference, and Dispose it on
// shutdown to stop the cache sweepers.
type Registry struct {
	Characters   *CharacterSource
	Worlds       *WorldSource
	Rooms        *RoomSource
	Sessions     *SessionSource
	Lore         *LoreSource
	AdventureLog *AdventureLogSource
	ThinFrames   *ThinFrameSource

	logger      *slog.Logger
	initialized bool
}

// NewRegistry wires the source graph. Generator and Triggers may be
// nil; the thin-frame and lore sources degrade gracefully without them.
func NewRegistry(deps Dependencies) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	characters := NewCharacterSource(deps.Backend, logger)
	return &Registry{
		Characters:   characters,
		Worlds:       NewWorldSource(deps.Backend, logger),
		Rooms:        NewRoomSource(deps.Backend, characters, logger),
		Sessions:     NewSessionSource(deps.Backend, deps.Settings, logger),
		Lore:         NewLoreSource(deps.Triggers, logger),
		AdventureLog: NewAdventureLogSource(deps.Backend, logger),
		ThinFrames:   NewThinFrameSource(characters, deps.Generator, logger),
		logger:       logger,
	}
}

// Init validates the wiring. It is idempotent.
func (r *Registry) Init() error {
	if r.initialized {
		return nil
	}
	if r.Characters == nil || r.Worlds == nil || r.Rooms == nil ||
		r.Sessions == nil || r.Lore == nil || r.AdventureLog == nil || r.ThinFrames == nil {
		return errors.New("registry constructed without NewRegistry")
	}
	r.initialized = true
	r.logger.Info("source registry initialized")
	return nil
}

// ClearAll drops every cache, used when the active user or world
// changes and all derived state is suspect.
func (r *Registry) ClearAll() {
	r.Characters.Clear()
	r.Worlds.Clear()
	r.Rooms.Clear()
	r.Sessions.Clear()
	r.Lore.Clear()
	r.AdventureLog.Clear()
	r.ThinFrames.Clear()
}

// Dispose releases every source and stops their sweep goroutines.
func (r *Registry) Dispose() {
	r.Characters.Dispose()
	r.Worlds.Dispose()
	r.Rooms.Dispose()
	r.Sessions.Dispose()
	r.Lore.Dispose()
	r.AdventureLog.Dispose()
	r.ThinFrames.Dispose()
}
