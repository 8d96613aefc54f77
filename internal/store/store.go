// Package store is the durable local cache: book, publisher and transaction
// collections plus the pending-operations queue and sync metadata. The three
// record collections hold the last-known-good server snapshot and are replaced
// wholesale on each successful pull; they are never merged.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const dbFile = ".pos/pos.db"

const schemaVersion = 1

// Store wraps the local SQLite database.
type Store struct {
	conn *sql.DB
}

// StorageError wraps a local persistence failure. Storage errors are fatal to
// the current operation and must be surfaced to the caller; silent data loss
// would break the durability expectations of the queue.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr wraps err as a StorageError, passing nil through.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Open opens an existing local database under baseDir.
func Open(baseDir string) (*Store, error) {
	dbPath := filepath.Join(baseDir, dbFile)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: run 'pos init' first")
	}
	return open(dbPath)
}

// Initialize creates the local database under baseDir, along with its
// directory, and runs the schema setup.
func Initialize(baseDir string) (*Store, error) {
	dbPath := filepath.Join(baseDir, dbFile)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return open(dbPath)
}

func open(dbPath string) (*Store, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL allows concurrent reads while writes are serialized
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	// Slightly faster writes, still safe with WAL
	conn.Exec("PRAGMA synchronous=NORMAL")

	return New(conn)
}

// New wraps an already-open connection and ensures the schema exists.
// Used by Open/Initialize and by tests that supply their own driver.
func New(conn *sql.DB) (*Store, error) {
	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn returns the underlying *sql.DB for raw access.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

func (s *Store) initSchema() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS books (
			book_id     INTEGER PRIMARY KEY,
			title       TEXT NOT NULL,
			author      TEXT NOT NULL DEFAULT '',
			isbn        TEXT NOT NULL DEFAULT '',
			stock_qty   INTEGER NOT NULL DEFAULT 0,
			unit_price  REAL NOT NULL DEFAULT 0,
			pub_id      INTEGER NOT NULL DEFAULT 0,
			publisher   TEXT NOT NULL DEFAULT '',
			genre       TEXT NOT NULL DEFAULT '',
			pending     INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL DEFAULT '',
			updated_at  TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_books_title ON books(title);

		CREATE TABLE IF NOT EXISTS publishers (
			pub_id      INTEGER PRIMARY KEY,
			name        TEXT NOT NULL,
			email       TEXT NOT NULL DEFAULT '',
			phone       TEXT NOT NULL DEFAULT '',
			pending     INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL DEFAULT '',
			updated_at  TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS transactions (
			trans_id      INTEGER PRIMARY KEY,
			trans_date    TEXT NOT NULL,
			total_amount  REAL NOT NULL DEFAULT 0,
			staff_id      INTEGER NOT NULL DEFAULT 0,
			staff_name    TEXT NOT NULL DEFAULT '',
			customer_name TEXT NOT NULL DEFAULT '',
			notes         TEXT NOT NULL DEFAULT '',
			details       JSON NOT NULL DEFAULT '[]',
			pending       INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(trans_date);

		CREATE TABLE IF NOT EXISTS pending_ops (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			kind        TEXT NOT NULL,
			entity_id   INTEGER NOT NULL DEFAULT 0,
			payload     JSON NOT NULL,
			created_at  TEXT NOT NULL,
			synced_at   TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_pending_ops_unsynced ON pending_ops(synced_at) WHERE synced_at IS NULL;

		CREATE TABLE IF NOT EXISTS sync_meta (
			key    TEXT PRIMARY KEY,
			value  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS schema_info (
			key    TEXT PRIMARY KEY,
			value  TEXT NOT NULL
		);
	`)
	if err != nil {
		return storageErr("init schema", err)
	}
	_, err = s.conn.Exec(
		`INSERT OR IGNORE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", schemaVersion),
	)
	return storageErr("set schema version", err)
}

// formatTime renders t for storage; zero times store as the empty string.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime is the inverse of formatTime. It tolerates the handful of
// timestamp layouts SQLite and the server are known to emit.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, f := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
