package store

import (
	"database/sql"
	"time"
)

const metaLastSync = "last_sync"

// GetMeta returns the value for a metadata key, or "" if unset.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.conn.QueryRow(`SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, storageErr("get meta", err)
}

// SetMeta sets a metadata key.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.conn.Exec(`
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return storageErr("set meta", err)
}

// LastSync returns the timestamp of the last successful pull, or nil if the
// store has never synced.
func (s *Store) LastSync() (*time.Time, error) {
	value, err := s.GetMeta(metaLastSync)
	if err != nil || value == "" {
		return nil, err
	}
	t := parseTime(value)
	if t.IsZero() {
		return nil, nil
	}
	return &t, nil
}

// SetLastSync records the timestamp of a successful pull.
func (s *Store) SetLastSync(t time.Time) error {
	return s.SetMeta(metaLastSync, formatTime(t))
}
