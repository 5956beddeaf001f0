// Package store implements the SQLite-backed storage engine for notebooks
// and notes, with optional FTS5 full-text search.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notebooks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS notes (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	notebook_id  INTEGER NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
	kind         INTEGER NOT NULL,
	name         TEXT NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	artifact_ref TEXT NOT NULL DEFAULT '',
	voice_time   INTEGER NOT NULL DEFAULT 0,
	text_payload TEXT NOT NULL DEFAULT '',
	sticky       INTEGER NOT NULL DEFAULT 0,
	modified_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notes_notebook ON notes(notebook_id);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// DB wraps a sql.DB with storage-engine operations.
//
// Mutations are write-through: each one runs in its own transaction and has
// been committed before the call returns. Per-notebook serialization is
// provided by an in-process lock table (see locks.go); reads go straight to
// SQLite and observe committed snapshots.
type DB struct {
	conn  *sql.DB
	locks *notebookLocks
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn, locks: newNotebookLocks()}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetMeta returns the value stored under key, or "" when absent.
func (db *DB) GetMeta(key string) (string, error) {
	var v string
	err := db.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get meta %s: %w", key, err)
	}
	return v, nil
}

// SetMeta stores value under key, replacing any previous value.
func (db *DB) SetMeta(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("store: set meta %s: %w", key, err)
	}
	return nil
}
