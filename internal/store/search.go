package store

import (
	"iter"
	"log/slog"
	"strings"
)

// SearchHit is one full-text match.
type SearchHit struct {
	NoteID  int64  `json:"note_id"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
}

// Search returns a lazy sequence of matches ordered by relevance (FTS5
// builds) or recency (fallback builds). The sequence is restartable:
// every range over it re-runs the query. A query with no matches yields
// an empty sequence, never an error; row errors end the sequence early
// and are logged.
func (db *DB) Search(query string) iter.Seq[SearchHit] {
	return func(yield func(SearchHit) bool) {
		if strings.TrimSpace(query) == "" {
			return
		}
		rows, err := searchRows(db.conn, query)
		if err != nil {
			slog.Warn("store: search failed", slog.String("query", query), slog.String("error", err.Error()))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var h SearchHit
			if err := rows.Scan(&h.NoteID, &h.Name, &h.Snippet); err != nil {
				slog.Warn("store: search scan failed", slog.String("error", err.Error()))
				return
			}
			if !yield(h) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			slog.Warn("store: search rows failed", slog.String("error", err.Error()))
		}
	}
}
