//go:build sqlite_fts5

package store

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			note_id UNINDEXED,
			name,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, noteID int64, name, body string) error {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE note_id = ?`, noteID)
	_, err := tx.Exec(`INSERT INTO notes_fts (note_id, name, body) VALUES (?, ?, ?)`,
		noteID, name, body)
	if err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, noteID int64) {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE note_id = ?`, noteID)
}

// searchRows runs an FTS5 query ranked by relevance.
func searchRows(conn *sql.DB, query string) (*sql.Rows, error) {
	rows, err := conn.Query(`
		SELECT note_id,
		       name,
		       snippet(notes_fts, 2, '<b>', '</b>', '...', 64)
		FROM notes_fts
		WHERE notes_fts MATCH ?
		ORDER BY rank
	`, query)
	if err != nil {
		return nil, fmt.Errorf("store: fts query: %w", err)
	}
	return rows, nil
}
