package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
	"github.com/uos-liuyang/deepin-voice-note/internal/models"
)

// CreateNote creates a note inside a notebook. An empty name gets the
// kind's default ("Text"/"Voice") with a numeric disambiguator.
func (db *DB) CreateNote(notebookID int64, kind models.NoteKind, name, content string) (models.Note, error) {
	if !kind.Valid() {
		return models.Note{}, fmt.Errorf("store: unknown note kind %d: %w", kind, apperr.ErrInvalidState)
	}

	release := db.locks.lock(notebookID)
	defer release()

	tx, err := db.begin()
	if err != nil {
		return models.Note{}, err
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := notebookExists(tx, notebookID); err != nil {
		return models.Note{}, err
	}

	taken, err := noteNames(tx, notebookID, 0)
	if err != nil {
		return models.Note{}, err
	}
	resolved := resolveName(name, kind.String(), taken)

	now := time.Now().UTC()
	res, err := tx.Exec(`
		INSERT INTO notes (notebook_id, kind, name, content, modified_at)
		VALUES (?, ?, ?, ?, ?)
	`, notebookID, kind, resolved, content, now)
	if err != nil {
		return models.Note{}, fmt.Errorf("store: insert note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Note{}, fmt.Errorf("store: note id: %w", err)
	}
	if err := ftsUpsert(tx, id, resolved, content); err != nil {
		return models.Note{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Note{}, fmt.Errorf("store: commit note: %w", err)
	}
	return models.Note{
		ID:         id,
		NotebookID: notebookID,
		Kind:       kind,
		Name:       resolved,
		Content:    content,
		ModifiedAt: now,
	}, nil
}

// GetNote returns a note by id.
func (db *DB) GetNote(id int64) (models.Note, error) {
	return scanNote(db.conn.QueryRow(noteSelectSQL+` WHERE id = ?`, id))
}

const noteSelectSQL = `
	SELECT id, notebook_id, kind, name, content, artifact_ref, voice_time, text_payload, sticky, modified_at
	FROM notes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (models.Note, error) {
	var n models.Note
	err := row.Scan(&n.ID, &n.NotebookID, &n.Kind, &n.Name, &n.Content,
		&n.ArtifactRef, &n.VoiceMS, &n.TextPayload, &n.Sticky, &n.ModifiedAt)
	if err == sql.ErrNoRows {
		return models.Note{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.Note{}, fmt.Errorf("store: scan note: %w", err)
	}
	return n, nil
}

// ListNotes returns the notes of a notebook, sticky notes first, then
// most recently modified.
func (db *DB) ListNotes(notebookID int64) ([]models.Note, error) {
	if err := notebookExists(db.conn, notebookID); err != nil {
		return nil, err
	}
	rows, err := db.conn.Query(noteSelectSQL+`
		WHERE notebook_id = ?
		ORDER BY sticky DESC, modified_at DESC, id DESC
	`, notebookID)
	if err != nil {
		return nil, fmt.Errorf("store: list notes: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// RenameNote sets a new display name; a whitespace-only name is replaced
// by the kind's disambiguated default.
func (db *DB) RenameNote(id int64, name string) (models.Note, error) {
	return db.mutateNote(id, func(tx *sql.Tx, n models.Note) (models.Note, error) {
		taken, err := noteNames(tx, n.NotebookID, id)
		if err != nil {
			return n, err
		}
		n.Name = resolveName(name, n.Kind.String(), taken)
		return n, nil
	})
}

// UpdateContent replaces the note's typed content.
func (db *DB) UpdateContent(id int64, content string) (models.Note, error) {
	return db.mutateNote(id, func(_ *sql.Tx, n models.Note) (models.Note, error) {
		n.Content = content
		return n, nil
	})
}

// AttachText attaches a converted-text payload to a voice note. The note
// keeps its voice kind; conversion never retypes a note.
func (db *DB) AttachText(id int64, text string) (models.Note, error) {
	return db.mutateNote(id, func(_ *sql.Tx, n models.Note) (models.Note, error) {
		if n.Kind != models.KindVoice {
			return n, fmt.Errorf("store: attach text to %s note: %w", n.Kind, apperr.ErrInvalidState)
		}
		n.TextPayload = text
		return n, nil
	})
}

// SetArtifact records the audio artifact reference and recording length
// of a voice note.
func (db *DB) SetArtifact(id int64, ref string, duration time.Duration) (models.Note, error) {
	return db.mutateNote(id, func(_ *sql.Tx, n models.Note) (models.Note, error) {
		if n.Kind != models.KindVoice {
			return n, fmt.Errorf("store: set artifact on %s note: %w", n.Kind, apperr.ErrInvalidState)
		}
		n.ArtifactRef = ref
		n.VoiceMS = duration.Milliseconds()
		return n, nil
	})
}

// ClearArtifact removes the artifact reference of a voice note. Used when
// the recording file disappears from disk.
func (db *DB) ClearArtifact(id int64) (models.Note, error) {
	return db.mutateNote(id, func(_ *sql.Tx, n models.Note) (models.Note, error) {
		n.ArtifactRef = ""
		n.VoiceMS = 0
		return n, nil
	})
}

// SetSticky toggles the sticky flag. Ordering is left to the caller; the
// flag is only exposed for sorting.
func (db *DB) SetSticky(id int64, sticky bool) (models.Note, error) {
	return db.mutateNote(id, func(_ *sql.Tx, n models.Note) (models.Note, error) {
		n.Sticky = sticky
		return n, nil
	})
}

// mutateNote loads the note, applies fn, persists the result and bumps
// modified_at, all under the owning notebook's lock in one transaction.
func (db *DB) mutateNote(id int64, fn func(*sql.Tx, models.Note) (models.Note, error)) (models.Note, error) {
	nbID, err := db.noteNotebook(id)
	if err != nil {
		return models.Note{}, err
	}
	release := db.locks.lock(nbID)
	defer release()

	tx, err := db.begin()
	if err != nil {
		return models.Note{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	n, err := scanNote(tx.QueryRow(noteSelectSQL+` WHERE id = ?`, id))
	if err != nil {
		return models.Note{}, err
	}
	n, err = fn(tx, n)
	if err != nil {
		return models.Note{}, err
	}
	n.ModifiedAt = time.Now().UTC()

	_, err = tx.Exec(`
		UPDATE notes
		SET name = ?, content = ?, artifact_ref = ?, voice_time = ?, text_payload = ?, sticky = ?, modified_at = ?
		WHERE id = ?
	`, n.Name, n.Content, n.ArtifactRef, n.VoiceMS, n.TextPayload, n.Sticky, n.ModifiedAt, n.ID)
	if err != nil {
		return models.Note{}, fmt.Errorf("store: update note: %w", err)
	}
	if err := ftsUpsert(tx, n.ID, n.Name, n.Content+"\n"+n.TextPayload); err != nil {
		return models.Note{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Note{}, fmt.Errorf("store: commit note update: %w", err)
	}
	return n, nil
}

// MoveNotes re-parents a set of notes into the target notebook. The move
// is atomic: when the target or any note id is missing, nothing moves and
// ErrNotFound is returned. Locks are taken on every involved notebook in
// ascending id order.
func (db *DB) MoveNotes(ids []int64, targetID int64) error {
	if len(ids) == 0 {
		return nil
	}

	sources, err := db.noteNotebooks(ids)
	if err != nil {
		return err
	}
	release := db.locks.lock(append(sources, targetID)...)
	defer release()

	tx, err := db.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := notebookExists(tx, targetID); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, id := range ids {
		res, err := tx.Exec(`UPDATE notes SET notebook_id = ?, modified_at = ? WHERE id = ?`, targetID, now, id)
		if err != nil {
			return fmt.Errorf("store: move note %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: move note %d: %w", id, apperr.ErrNotFound)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit move: %w", err)
	}
	return nil
}

// DeleteNotes deletes notes in bulk. Missing ids are skipped silently;
// the ids of the notes actually deleted are returned.
func (db *DB) DeleteNotes(ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	sources, err := db.noteNotebooks(ids)
	if err != nil {
		return nil, err
	}
	release := db.locks.lock(sources...)
	defer release()

	tx, err := db.begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	deleted := make([]int64, 0, len(ids))
	for _, id := range ids {
		res, err := tx.Exec(`DELETE FROM notes WHERE id = ?`, id)
		if err != nil {
			return nil, fmt.Errorf("store: delete note %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			ftsDelete(tx, id)
			deleted = append(deleted, id)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit delete: %w", err)
	}
	return deleted, nil
}

// NotesByArtifact returns the ids of voice notes referencing an artifact.
func (db *DB) NotesByArtifact(ref string) ([]int64, error) {
	rows, err := db.conn.Query(`SELECT id FROM notes WHERE artifact_ref = ?`, ref)
	if err != nil {
		return nil, fmt.Errorf("store: notes by artifact: %w", err)
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

// noteNotebook returns the owning notebook id of a note.
func (db *DB) noteNotebook(id int64) (int64, error) {
	var nbID int64
	err := db.conn.QueryRow(`SELECT notebook_id FROM notes WHERE id = ?`, id).Scan(&nbID)
	if err == sql.ErrNoRows {
		return 0, apperr.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("store: note notebook: %w", err)
	}
	return nbID, nil
}

// noteNotebooks returns the distinct owning notebook ids for a set of
// notes. Missing notes contribute nothing; existence is re-checked under
// lock by the caller's transaction.
func (db *DB) noteNotebooks(ids []int64) ([]int64, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.conn.Query(`SELECT DISTINCT notebook_id FROM notes WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: note notebooks: %w", err)
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

// notebookExists returns ErrNotFound when the notebook is absent.
func notebookExists(q querier, id int64) error {
	rows, err := q.Query(`SELECT 1 FROM notebooks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: notebook exists: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return apperr.ErrNotFound
	}
	return nil
}
