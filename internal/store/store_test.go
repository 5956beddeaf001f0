package store

import (
	"errors"
	"os"
	"testing"

	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
	"github.com/uos-liuyang/deepin-voice-note/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "vnote-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notebooks`).Scan(&count); err != nil {
		t.Fatalf("notebooks table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&count); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM meta`).Scan(&count); err != nil {
		t.Fatalf("meta table missing: %v", err)
	}
}

func TestCreateNotebookDefaultNaming(t *testing.T) {
	db := testDB(t)

	first, err := db.CreateNotebook("")
	if err != nil {
		t.Fatalf("CreateNotebook: %v", err)
	}
	if first.Name != "Notebook" {
		t.Errorf("name = %q, want %q", first.Name, "Notebook")
	}

	second, err := db.CreateNotebook("   ")
	if err != nil {
		t.Fatalf("CreateNotebook: %v", err)
	}
	if second.Name != "Notebook 2" {
		t.Errorf("name = %q, want %q", second.Name, "Notebook 2")
	}

	third, err := db.CreateNotebook("")
	if err != nil {
		t.Fatalf("CreateNotebook: %v", err)
	}
	if third.Name != "Notebook 3" {
		t.Errorf("name = %q, want %q", third.Name, "Notebook 3")
	}

	if first.ID == second.ID || second.ID == third.ID {
		t.Errorf("ids not unique: %d %d %d", first.ID, second.ID, third.ID)
	}
}

func TestCreateNotebookDefaultFillsGap(t *testing.T) {
	db := testDB(t)

	if _, err := db.CreateNotebook(""); err != nil {
		t.Fatal(err)
	}
	nb2, err := db.CreateNotebook("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateNotebook(""); err != nil {
		t.Fatal(err)
	}

	// Deleting "Notebook 2" frees its name for the next default.
	if _, err := db.DeleteNotebook(nb2.ID); err != nil {
		t.Fatalf("DeleteNotebook: %v", err)
	}
	nb, err := db.CreateNotebook("")
	if err != nil {
		t.Fatal(err)
	}
	if nb.Name != "Notebook 2" {
		t.Errorf("name = %q, want %q", nb.Name, "Notebook 2")
	}
}

func TestRenameNotebookEmptySubstitutesDefault(t *testing.T) {
	db := testDB(t)

	nb, err := db.CreateNotebook("Work")
	if err != nil {
		t.Fatal(err)
	}
	renamed, err := db.RenameNotebook(nb.ID, "  \t ")
	if err != nil {
		t.Fatalf("RenameNotebook: %v", err)
	}
	if renamed.Name != "Notebook" {
		t.Errorf("name = %q, want %q", renamed.Name, "Notebook")
	}
}

func TestRenameNotebookAllowsDuplicates(t *testing.T) {
	db := testDB(t)

	if _, err := db.CreateNotebook("Work"); err != nil {
		t.Fatal(err)
	}
	nb, err := db.CreateNotebook("Play")
	if err != nil {
		t.Fatal(err)
	}
	renamed, err := db.RenameNotebook(nb.ID, "Work")
	if err != nil {
		t.Fatalf("RenameNotebook: %v", err)
	}
	if renamed.Name != "Work" {
		t.Errorf("name = %q, want %q", renamed.Name, "Work")
	}
}

func TestGetNotebookNotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetNotebook(42); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteNotebookCascades(t *testing.T) {
	db := testDB(t)

	keep, err := db.CreateNotebook("keep")
	if err != nil {
		t.Fatal(err)
	}
	doomed, err := db.CreateNotebook("doomed")
	if err != nil {
		t.Fatal(err)
	}
	var doomedNote models.Note
	for i := 0; i < 3; i++ {
		doomedNote, err = db.CreateNote(doomed.ID, models.KindText, "", "body")
		if err != nil {
			t.Fatal(err)
		}
	}
	keepNote, err := db.CreateNote(keep.ID, models.KindText, "survivor", "body")
	if err != nil {
		t.Fatal(err)
	}

	n, err := db.DeleteNotebook(doomed.ID)
	if err != nil {
		t.Fatalf("DeleteNotebook: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted notes = %d, want 3", n)
	}
	if _, err := db.GetNote(doomedNote.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("contained note survived: %v", err)
	}
	if _, err := db.GetNote(keepNote.ID); err != nil {
		t.Errorf("note in another notebook was deleted: %v", err)
	}
}

func TestDeleteLastNotebookRefused(t *testing.T) {
	db := testDB(t)

	nb, err := db.CreateNotebook("only")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.DeleteNotebook(nb.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	// The refusal must not have deleted anything.
	if _, err := db.GetNotebook(nb.ID); err != nil {
		t.Errorf("notebook gone after refused delete: %v", err)
	}
}

func TestDeleteNotebookNotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.CreateNotebook("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.DeleteNotebook(999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListNotebooksCounts(t *testing.T) {
	db := testDB(t)

	a, err := db.CreateNotebook("a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := db.CreateNotebook("b")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateNote(a.ID, models.KindText, "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateNote(a.ID, models.KindVoice, "", ""); err != nil {
		t.Fatal(err)
	}

	nbs, err := db.ListNotebooks()
	if err != nil {
		t.Fatalf("ListNotebooks: %v", err)
	}
	if len(nbs) != 2 {
		t.Fatalf("len = %d, want 2", len(nbs))
	}
	if nbs[0].ID != a.ID || nbs[0].NoteCount != 2 {
		t.Errorf("notebook a: %+v", nbs[0])
	}
	if nbs[1].ID != b.ID || nbs[1].NoteCount != 0 {
		t.Errorf("notebook b: %+v", nbs[1])
	}
}

func TestMetaRoundTrip(t *testing.T) {
	db := testDB(t)

	if v, err := db.GetMeta("missing"); err != nil || v != "" {
		t.Fatalf("GetMeta missing = %q, %v", v, err)
	}
	if err := db.SetMeta("k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMeta("k", "v2"); err != nil {
		t.Fatal(err)
	}
	if v, err := db.GetMeta("k"); err != nil || v != "v2" {
		t.Fatalf("GetMeta = %q, %v", v, err)
	}
}
