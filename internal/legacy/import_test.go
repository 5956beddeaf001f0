package legacy

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
	"github.com/uos-liuyang/deepin-voice-note/internal/models"
	"github.com/uos-liuyang/deepin-voice-note/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeLegacyDB creates an old-schema database populated by exec
// statements and returns its path.
func writeLegacyDB(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vnote.db")
	old, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer old.Close()

	schema := []string{
		`CREATE TABLE folder (
			folder_id INTEGER PRIMARY KEY,
			folder_name TEXT,
			create_time TEXT
		)`,
		`CREATE TABLE note (
			note_id INTEGER PRIMARY KEY,
			folder_id INTEGER,
			note_type INTEGER,
			note_text TEXT,
			voice_path TEXT,
			voice_time INTEGER,
			create_time TEXT
		)`,
	}
	for _, s := range append(schema, stmts...) {
		if _, err := old.Exec(s); err != nil {
			t.Fatalf("legacy fixture: %v", err)
		}
	}
	return path
}

func TestImportFoldersAndNotes(t *testing.T) {
	db := testutil.TestDB(t)
	path := writeLegacyDB(t,
		`INSERT INTO folder VALUES (1, 'Work', '2020-01-01')`,
		`INSERT INTO folder VALUES (2, 'Personal', '2020-01-02')`,
		`INSERT INTO note VALUES (10, 1, 1, 'hello', NULL, NULL, '2020-01-03')`,
		`INSERT INTO note VALUES (11, 2, 2, '', '/old/voice/rec11.mp3', 42000, '2020-01-04')`,
	)

	report, err := NewImporter(db, discardLogger()).Run(path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Notebooks != 2 || report.Notes != 2 || report.Skipped != 0 {
		t.Fatalf("report = %+v", report)
	}

	nbs, err := db.ListNotebooks()
	if err != nil {
		t.Fatal(err)
	}
	if len(nbs) != 2 {
		t.Fatalf("notebooks = %d, want 2", len(nbs))
	}

	// The voice note keeps its artifact reference and recorded length.
	ids, err := db.NotesByArtifact("/old/voice/rec11.mp3")
	if err != nil || len(ids) != 1 {
		t.Fatalf("NotesByArtifact = %v, %v", ids, err)
	}
	n, err := db.GetNote(ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if n.Kind != models.KindVoice || n.VoiceMS != 42000 {
		t.Errorf("voice note = %+v", n)
	}
}

func TestImportIdempotent(t *testing.T) {
	db := testutil.TestDB(t)
	path := writeLegacyDB(t,
		`INSERT INTO folder VALUES (1, 'Work', '2020-01-01')`,
		`INSERT INTO note VALUES (10, 1, 1, 'hello', NULL, NULL, '2020-01-03')`,
	)

	imp := NewImporter(db, discardLogger())
	if _, err := imp.Run(path); err != nil {
		t.Fatalf("first run: %v", err)
	}

	report, err := imp.Run(path)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !report.AlreadyDone {
		t.Error("second run not marked AlreadyDone")
	}
	if report.Notebooks != 0 || report.Notes != 0 {
		t.Errorf("second run imported again: %+v", report)
	}

	nbs, err := db.ListNotebooks()
	if err != nil {
		t.Fatal(err)
	}
	if len(nbs) != 1 {
		t.Errorf("notebooks = %d, want 1 (no duplicates)", len(nbs))
	}
}

func TestImportSkipsMalformedRows(t *testing.T) {
	db := testutil.TestDB(t)
	path := writeLegacyDB(t,
		`INSERT INTO folder VALUES (1, 'Work', '2020-01-01')`,
		// Voice note without a recording path.
		`INSERT INTO note VALUES (10, 1, 2, '', '', 1000, '2020-01-03')`,
		// Unknown note type.
		`INSERT INTO note VALUES (11, 1, 7, 'x', NULL, NULL, '2020-01-03')`,
		// References a folder that does not exist.
		`INSERT INTO note VALUES (12, 99, 1, 'orphan', NULL, NULL, '2020-01-03')`,
		// A good one.
		`INSERT INTO note VALUES (13, 1, 1, 'fine', NULL, NULL, '2020-01-03')`,
	)

	report, err := NewImporter(db, discardLogger()).Run(path)
	if !errors.Is(err, apperr.ErrImportPartial) {
		t.Fatalf("err = %v, want ErrImportPartial", err)
	}
	if report.Notes != 1 || report.Skipped != 3 {
		t.Errorf("report = %+v", report)
	}
}

func TestImportMissingFileIsCleanNoOp(t *testing.T) {
	db := testutil.TestDB(t)
	imp := NewImporter(db, discardLogger())

	report, err := imp.Run(filepath.Join(t.TempDir(), "nope.db"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Notebooks != 0 || report.Notes != 0 || report.Skipped != 0 {
		t.Errorf("report = %+v", report)
	}

	// The marker is still written; a legacy store appearing later is not
	// imported retroactively.
	report, err = imp.Run(writeLegacyDB(t, `INSERT INTO folder VALUES (1, 'Late', '2020-01-01')`))
	if err != nil {
		t.Fatal(err)
	}
	if !report.AlreadyDone {
		t.Error("marker not honored after fresh-install no-op")
	}
}
