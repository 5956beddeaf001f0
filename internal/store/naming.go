package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

// disambiguate returns stem unchanged when it is free, otherwise the first
// "stem N" (N >= 2) not present in taken. This matches the default-naming
// rule: "Notebook", "Notebook 2", "Notebook 3", ...
func disambiguate(stem string, taken map[string]struct{}) string {
	if _, ok := taken[stem]; !ok {
		return stem
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s %d", stem, n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// notebookNames returns every notebook display name, optionally excluding
// one notebook (the one being renamed).
func notebookNames(q querier, excludeID int64) (map[string]struct{}, error) {
	rows, err := q.Query(`SELECT name FROM notebooks WHERE id != ?`, excludeID)
	if err != nil {
		return nil, fmt.Errorf("store: notebook names: %w", err)
	}
	return collectNames(rows)
}

// noteNames returns every note display name within a notebook, optionally
// excluding one note.
func noteNames(q querier, notebookID, excludeID int64) (map[string]struct{}, error) {
	rows, err := q.Query(`SELECT name FROM notes WHERE notebook_id = ? AND id != ?`, notebookID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("store: note names: %w", err)
	}
	return collectNames(rows)
}

func collectNames(rows *sql.Rows) (map[string]struct{}, error) {
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out[n] = struct{}{}
	}
	return out, rows.Err()
}

// resolveName trims the requested name and substitutes a disambiguated
// default when the trimmed result is empty.
func resolveName(requested, stem string, taken map[string]struct{}) string {
	name := strings.TrimSpace(requested)
	if name == "" {
		return disambiguate(stem, taken)
	}
	return name
}
