package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
	"github.com/uos-liuyang/deepin-voice-note/internal/models"
)

// begin starts a mutation transaction. A failure here means the backing
// storage is unavailable, which the taxonomy classifies as invalid state.
func (db *DB) begin() (*sql.Tx, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w: %v", apperr.ErrInvalidState, err)
	}
	return tx, nil
}

// CreateNotebook creates a notebook. An empty (or whitespace-only) name is
// replaced by the disambiguated default "Notebook", "Notebook 2", ...
func (db *DB) CreateNotebook(name string) (models.Notebook, error) {
	tx, err := db.begin()
	if err != nil {
		return models.Notebook{}, err
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	taken, err := notebookNames(tx, 0)
	if err != nil {
		return models.Notebook{}, err
	}
	resolved := resolveName(name, "Notebook", taken)

	now := time.Now().UTC()
	res, err := tx.Exec(`INSERT INTO notebooks (name, created_at) VALUES (?, ?)`, resolved, now)
	if err != nil {
		return models.Notebook{}, fmt.Errorf("store: insert notebook: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Notebook{}, fmt.Errorf("store: notebook id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Notebook{}, fmt.Errorf("store: commit notebook: %w", err)
	}
	return models.Notebook{ID: id, Name: resolved, CreatedAt: now}, nil
}

// GetNotebook returns a notebook by id.
func (db *DB) GetNotebook(id int64) (models.Notebook, error) {
	var nb models.Notebook
	err := db.conn.QueryRow(`
		SELECT id, name, created_at,
		       (SELECT COUNT(*) FROM notes WHERE notebook_id = notebooks.id)
		FROM notebooks WHERE id = ?
	`, id).Scan(&nb.ID, &nb.Name, &nb.CreatedAt, &nb.NoteCount)
	if err == sql.ErrNoRows {
		return models.Notebook{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.Notebook{}, fmt.Errorf("store: get notebook: %w", err)
	}
	return nb, nil
}

// ListNotebooks returns every notebook in creation order.
func (db *DB) ListNotebooks() ([]models.Notebook, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, created_at,
		       (SELECT COUNT(*) FROM notes WHERE notebook_id = notebooks.id)
		FROM notebooks ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list notebooks: %w", err)
	}
	defer rows.Close()

	var out []models.Notebook
	for rows.Next() {
		var nb models.Notebook
		if err := rows.Scan(&nb.ID, &nb.Name, &nb.CreatedAt, &nb.NoteCount); err != nil {
			return nil, err
		}
		out = append(out, nb)
	}
	return out, rows.Err()
}

// RenameNotebook sets a new display name. A whitespace-only name is
// replaced by the disambiguated default; collisions with other notebooks
// are allowed (only ids are unique).
func (db *DB) RenameNotebook(id int64, name string) (models.Notebook, error) {
	release := db.locks.lock(id)
	defer release()

	tx, err := db.begin()
	if err != nil {
		return models.Notebook{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	taken, err := notebookNames(tx, id)
	if err != nil {
		return models.Notebook{}, err
	}
	resolved := resolveName(name, "Notebook", taken)

	res, err := tx.Exec(`UPDATE notebooks SET name = ? WHERE id = ?`, resolved, id)
	if err != nil {
		return models.Notebook{}, fmt.Errorf("store: rename notebook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Notebook{}, apperr.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return models.Notebook{}, fmt.Errorf("store: commit rename: %w", err)
	}
	return db.GetNotebook(id)
}

// DeleteNotebook deletes a notebook and cascades to all contained notes,
// returning how many notes were removed. The last remaining notebook
// cannot be deleted; at least one must always exist.
func (db *DB) DeleteNotebook(id int64) (int, error) {
	release := db.locks.lock(id)
	defer release()

	tx, err := db.begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	var total int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM notebooks`).Scan(&total); err != nil {
		return 0, fmt.Errorf("store: count notebooks: %w", err)
	}

	noteIDs, err := notebookNoteIDs(tx, id)
	if err != nil {
		return 0, err
	}

	res, err := tx.Exec(`DELETE FROM notebooks WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("store: delete notebook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, apperr.ErrNotFound
	}
	if total <= 1 {
		return 0, fmt.Errorf("store: cannot delete the last notebook: %w", apperr.ErrInvalidState)
	}

	// Notes go with the notebook (FK cascade); mirror that in the FTS table.
	for _, nid := range noteIDs {
		ftsDelete(tx, nid)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit delete notebook: %w", err)
	}
	db.locks.drop(id)
	return len(noteIDs), nil
}

func notebookNoteIDs(q querier, notebookID int64) ([]int64, error) {
	rows, err := q.Query(`SELECT id FROM notes WHERE notebook_id = ?`, notebookID)
	if err != nil {
		return nil, fmt.Errorf("store: notebook note ids: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
