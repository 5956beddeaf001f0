// Package legacy imports notebooks and notes from the old on-disk schema.
// The import runs once per installation: a marker in the new store makes
// re-runs a no-op, so an interrupted upgrade can be retried without
// duplicating notes.
package legacy

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
	"github.com/uos-liuyang/deepin-voice-note/internal/models"
	"github.com/uos-liuyang/deepin-voice-note/internal/store"
)

// markerKey is the meta key recording a completed import.
const markerKey = "legacy_import_done"

// Legacy note_type values.
const (
	legacyTypeText  = 1
	legacyTypeVoice = 2
)

// Report accumulates the outcome of an import run. Skipped counts
// malformed or unmappable records; they are losses, never fatal errors.
type Report struct {
	Notebooks   int  `json:"notebooks"`
	Notes       int  `json:"notes"`
	Skipped     int  `json:"skipped"`
	AlreadyDone bool `json:"already_done"`
}

// Importer copies the legacy store into the storage engine.
type Importer struct {
	db     *store.DB
	logger *slog.Logger
}

// NewImporter creates an importer writing into db.
func NewImporter(db *store.DB, logger *slog.Logger) *Importer {
	return &Importer{db: db, logger: logger}
}

// Run imports the legacy store at path. Completion is recorded in the
// store's meta table; a second run returns immediately with
// AlreadyDone set. A missing legacy file means a fresh install and is a
// clean no-op. When records were skipped the report is returned together
// with ErrImportPartial.
func (imp *Importer) Run(path string) (Report, error) {
	done, err := imp.db.GetMeta(markerKey)
	if err != nil {
		return Report{}, err
	}
	if done != "" {
		return Report{AlreadyDone: true}, nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		imp.logger.Info("legacy import: no legacy store, skipping", slog.String("path", path))
		return Report{}, imp.markDone()
	}

	old, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return Report{}, fmt.Errorf("legacy: open %s: %w", path, err)
	}
	defer old.Close()
	if err := old.Ping(); err != nil {
		return Report{}, fmt.Errorf("legacy: ping %s: %w", path, err)
	}

	var report Report
	notebooks, err := imp.importFolders(old, &report)
	if err != nil {
		return report, err
	}
	if err := imp.importNotes(old, notebooks, &report); err != nil {
		return report, err
	}
	if err := imp.markDone(); err != nil {
		return report, err
	}

	imp.logger.Info("legacy import: finished",
		slog.Int("notebooks", report.Notebooks),
		slog.Int("notes", report.Notes),
		slog.Int("skipped", report.Skipped))

	if report.Skipped > 0 {
		return report, apperr.ErrImportPartial
	}
	return report, nil
}

func (imp *Importer) markDone() error {
	return imp.db.SetMeta(markerKey, time.Now().UTC().Format(time.RFC3339))
}

// importFolders maps legacy folders onto notebooks and returns the
// folder-id → notebook-id mapping.
func (imp *Importer) importFolders(old *sql.DB, report *Report) (map[int64]int64, error) {
	rows, err := old.Query(`SELECT folder_id, folder_name FROM folder`)
	if err != nil {
		return nil, fmt.Errorf("legacy: query folders: %w", err)
	}
	defer rows.Close()

	mapping := make(map[int64]int64)
	for rows.Next() {
		var folderID int64
		var name sql.NullString
		if err := rows.Scan(&folderID, &name); err != nil {
			report.Skipped++
			imp.logger.Warn("legacy import: bad folder record", slog.String("error", err.Error()))
			continue
		}
		nb, err := imp.db.CreateNotebook(name.String)
		if err != nil {
			report.Skipped++
			imp.logger.Warn("legacy import: create notebook failed",
				slog.Int64("folder_id", folderID), slog.String("error", err.Error()))
			continue
		}
		mapping[folderID] = nb.ID
		report.Notebooks++
	}
	return mapping, rows.Err()
}

// importNotes maps legacy notes onto text/voice notes. Voice items keep
// their artifact path reference and recorded length.
func (imp *Importer) importNotes(old *sql.DB, notebooks map[int64]int64, report *Report) error {
	rows, err := old.Query(`SELECT note_id, folder_id, note_type, note_text, voice_path, voice_time FROM note`)
	if err != nil {
		return fmt.Errorf("legacy: query notes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var noteID, folderID int64
		var noteType int
		var text, voicePath sql.NullString
		var voiceMS sql.NullInt64
		if err := rows.Scan(&noteID, &folderID, &noteType, &text, &voicePath, &voiceMS); err != nil {
			report.Skipped++
			imp.logger.Warn("legacy import: bad note record", slog.String("error", err.Error()))
			continue
		}

		nbID, ok := notebooks[folderID]
		if !ok {
			report.Skipped++
			imp.logger.Warn("legacy import: note references unknown folder",
				slog.Int64("note_id", noteID), slog.Int64("folder_id", folderID))
			continue
		}

		switch noteType {
		case legacyTypeText:
			if _, err := imp.db.CreateNote(nbID, models.KindText, "", text.String); err != nil {
				report.Skipped++
				imp.logger.Warn("legacy import: create text note failed",
					slog.Int64("note_id", noteID), slog.String("error", err.Error()))
				continue
			}

		case legacyTypeVoice:
			if voicePath.String == "" {
				report.Skipped++
				imp.logger.Warn("legacy import: voice note without recording path",
					slog.Int64("note_id", noteID))
				continue
			}
			n, err := imp.db.CreateNote(nbID, models.KindVoice, "", "")
			if err != nil {
				report.Skipped++
				imp.logger.Warn("legacy import: create voice note failed",
					slog.Int64("note_id", noteID), slog.String("error", err.Error()))
				continue
			}
			duration := time.Duration(voiceMS.Int64) * time.Millisecond
			if _, err := imp.db.SetArtifact(n.ID, voicePath.String, duration); err != nil {
				report.Skipped++
				imp.logger.Warn("legacy import: attach recording failed",
					slog.Int64("note_id", noteID), slog.String("error", err.Error()))
				continue
			}

		default:
			report.Skipped++
			imp.logger.Warn("legacy import: unknown note type",
				slog.Int64("note_id", noteID), slog.Int("type", noteType))
			continue
		}
		report.Notes++
	}
	return rows.Err()
}
