package source

import (
	"context"
	"log/slog"

	"github.com/emberune/taleweave/assemble"
	"github.com/emberune/taleweave/cache"
	"github.com/emberune/taleweave/internal/observability"
)

// Local setting keys persisted through the settings store.
const (
	SettingUserName         = "session.user_name"
	SettingCompressionLevel = "session.compression_level"
)

// SessionSettingsService persists the backend-owned part of a session:
// notes and title.
type SessionSettingsService interface {
	FetchSession(ctx context.Context, id string) (map[string]any, error)
	SaveNotes(ctx context.Context, id, notes string) error
	SaveTitle(ctx context.Context, id, title string) error
}

// SettingsStore persists process-local settings across restarts.
type SettingsStore interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// SessionSource is a hybrid: notes and title live on the backend, the
// current user and compression level live in local storage. Mutations
// optimistically patch the in-memory cache instead of re-fetching.
type SessionSource struct {
	cache    *cache.Cache
	service  SessionSettingsService
	settings SettingsStore
	logger   *slog.Logger
}

// NewSessionSource creates a session source with a short-lived cache.
func NewSessionSource(service SessionSettingsService, settings SettingsStore, logger *slog.Logger) *SessionSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionSource{
		cache:    cache.NewShortLived(),
		service:  service,
		settings: settings,
		logger:   logger,
	}
}

// Get returns the session context for id, combining backend fields with
// local settings. Backend failure still yields a usable local-only
// session so serialization can degrade instead of failing.
func (s *SessionSource) Get(ctx context.Context, id string) *assemble.SessionContext {
	if cached, ok := s.cache.Get(id); ok {
		return cached.(*assemble.SessionContext)
	}

	title, notes := "", ""
	req := observability.NewRequestContext(s.logger, "session")
	raw, err := s.service.FetchSession(ctx, id)
	if err != nil {
		req.Error("session fetch failed", err, slog.String(observability.LogFieldEntityID, id))
	} else if raw != nil {
		title = stringField(raw, "title")
		notes = stringField(raw, "notes")
	}

	session := assemble.AssembleSessionContext(id, title, notes, s.localUserName(), s.localCompressionLevel())
	s.cache.Set(id, session, -1)
	return session
}

// Refresh forces an invalidate-then-fetch.
func (s *SessionSource) Refresh(ctx context.Context, id string) *assemble.SessionContext {
	s.cache.Invalidate(id)
	return s.Get(ctx, id)
}

// SetNotes saves notes to the backend and patches the cached session.
func (s *SessionSource) SetNotes(ctx context.Context, id, notes string) error {
	if err := s.service.SaveNotes(ctx, id, notes); err != nil {
		return err
	}
	s.patch(id, func(session *assemble.SessionContext) { session.Notes = notes })
	return nil
}

// SetTitle saves the title to the backend and patches the cached session.
func (s *SessionSource) SetTitle(ctx context.Context, id, title string) error {
	if err := s.service.SaveTitle(ctx, id, title); err != nil {
		return err
	}
	s.patch(id, func(session *assemble.SessionContext) { session.Title = title })
	return nil
}

// SetUserName persists the local user name. Cached sessions are
// dropped; the next Get rebuilds them with the fresh setting.
func (s *SessionSource) SetUserName(name string) error {
	if err := s.settings.SetSetting(SettingUserName, name); err != nil {
		return err
	}
	s.cache.Clear()
	return nil
}

// SetCompressionLevel persists the local compression level. Cached
// sessions are dropped; the next Get rebuilds them with the fresh
// setting.
func (s *SessionSource) SetCompressionLevel(level assemble.CompressionLevel) error {
	if err := s.settings.SetSetting(SettingCompressionLevel, string(level)); err != nil {
		return err
	}
	s.cache.Clear()
	return nil
}

func (s *SessionSource) localUserName() string {
	name, err := s.settings.GetSetting(SettingUserName)
	if err != nil {
		s.logger.Warn("reading local user name failed", "error", err)
		return ""
	}
	return name
}

func (s *SessionSource) localCompressionLevel() assemble.CompressionLevel {
	value, err := s.settings.GetSetting(SettingCompressionLevel)
	if err != nil || value == "" {
		return assemble.CompressionNone
	}
	return assemble.CompressionLevel(value)
}

func (s *SessionSource) patch(id string, mutate func(*assemble.SessionContext)) {
	cached, ok := s.cache.Get(id)
	if !ok {
		return
	}
	session := *cached.(*assemble.SessionContext)
	mutate(&session)
	s.cache.Set(id, &session, -1)
}

// Invalidate drops the cached session for id.
func (s *SessionSource) Invalidate(id string) {
	s.cache.Invalidate(id)
}

// Has reports whether a live cached session exists for id.
func (s *SessionSource) Has(id string) bool {
	return s.cache.Has(id)
}

// Clear drops every cached session.
func (s *SessionSource) Clear() {
	s.cache.Clear()
}

// Dispose releases the cache and its sweeper.
func (s *SessionSource) Dispose() {
	s.cache.Dispose()
}
