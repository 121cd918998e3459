// Package store is the process-local persistence layer: settings that
// belong to this installation rather than the backend, and lore-image
// triggers that must survive a restart mid-session.
package store

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/emberune/taleweave/assemble"
	contexterrors "github.com/emberune/taleweave/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_setting (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_ts INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS lore_trigger (
	character_id TEXT NOT NULL,
	entry_id     TEXT NOT NULL,
	image_uuid   TEXT NOT NULL,
	triggered_ts INTEGER NOT NULL,
	PRIMARY KEY (character_id, entry_id)
);
`

// LocalStore persists local state in a sqlite database. Use the
// ":memory:" DSN for tests.
type LocalStore struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at dsn and applies
// the schema.
func Open(dsn string) (*LocalStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, contexterrors.StoreFailed("opening local store", err)
	}
	// sqlite allows one writer; serializing through a single
	// connection avoids SQLITE_BUSY under concurrent sources.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, contexterrors.StoreFailed("applying local store schema", err)
	}
	return &LocalStore{db: db}, nil
}

// Close releases the database handle.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// GetSetting returns the stored value for key, empty when unset.
func (s *LocalStore) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM session_setting WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", contexterrors.StoreFailed("reading setting", err).WithDetail("key", key)
	}
	return value, nil
}

// SetSetting upserts a setting.
func (s *LocalStore) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO session_setting (key, value, updated_ts) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_ts = excluded.updated_ts`,
		key, value, time.Now().Unix())
	if err != nil {
		return contexterrors.StoreFailed("writing setting", err).WithDetail("key", key)
	}
	return nil
}

// SaveTrigger upserts a lore trigger; re-triggering the same entry only
// refreshes the timestamp and image.
func (s *LocalStore) SaveTrigger(characterID string, trigger assemble.TriggeredLoreImage) error {
	_, err := s.db.Exec(`
		INSERT INTO lore_trigger (character_id, entry_id, image_uuid, triggered_ts) VALUES (?, ?, ?, ?)
		ON CONFLICT(character_id, entry_id) DO UPDATE SET
			image_uuid = excluded.image_uuid,
			triggered_ts = excluded.triggered_ts`,
		characterID, trigger.EntryID, trigger.ImageUUID, trigger.TriggeredAt.Unix())
	if err != nil {
		return contexterrors.StoreFailed("writing lore trigger", err).WithDetail("character_id", characterID)
	}
	return nil
}

// LoadTriggers returns a character's persisted triggers.
func (s *LocalStore) LoadTriggers(characterID string) ([]assemble.TriggeredLoreImage, error) {
	rows, err := s.db.Query(`
		SELECT entry_id, image_uuid, triggered_ts
		FROM lore_trigger WHERE character_id = ?`, characterID)
	if err != nil {
		return nil, contexterrors.StoreFailed("reading lore triggers", err).WithDetail("character_id", characterID)
	}
	defer rows.Close()

	var triggers []assemble.TriggeredLoreImage
	for rows.Next() {
		var trigger assemble.TriggeredLoreImage
		var ts int64
		if err := rows.Scan(&trigger.EntryID, &trigger.ImageUUID, &ts); err != nil {
			return nil, contexterrors.StoreFailed("scanning lore trigger", err)
		}
		trigger.TriggeredAt = time.Unix(ts, 0)
		triggers = append(triggers, trigger)
	}
	if err := rows.Err(); err != nil {
		return nil, contexterrors.StoreFailed("iterating lore triggers", err)
	}
	return triggers, nil
}

// DeleteTriggers removes one character's triggers.
func (s *LocalStore) DeleteTriggers(characterID string) error {
	if _, err := s.db.Exec(`DELETE FROM lore_trigger WHERE character_id = ?`, characterID); err != nil {
		return contexterrors.StoreFailed("deleting lore triggers", err).WithDetail("character_id", characterID)
	}
	return nil
}

// DeleteAllTriggers removes every trigger.
func (s *LocalStore) DeleteAllTriggers() error {
	if _, err := s.db.Exec(`DELETE FROM lore_trigger`); err != nil {
		return contexterrors.StoreFailed("deleting lore triggers", err)
	}
	return nil
}
