//go:build !sqlite_fts5

package store

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; search uses a LIKE fallback on the notes table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ int64, _, _ string) error {
	// Name and body already live in the notes table; nothing extra to do.
	return nil
}

func ftsDelete(_ *sql.Tx, _ int64) {}

// searchRows runs a LIKE-based query ordered by recency.
func searchRows(conn *sql.DB, query string) (*sql.Rows, error) {
	like := "%" + query + "%"
	rows, err := conn.Query(`
		SELECT id, name, substr(content || ' ' || text_payload, 1, 200)
		FROM notes
		WHERE name LIKE ? OR content LIKE ? OR text_payload LIKE ?
		ORDER BY modified_at DESC, id DESC
	`, like, like, like)
	if err != nil {
		return nil, fmt.Errorf("store: like query: %w", err)
	}
	return rows, nil
}
