package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/uos-liuyang/deepin-voice-note/internal/checksum"
)

func testFS(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

func TestWriteReadRoundTrip(t *testing.T) {
	fs := testFS(t)
	content := []byte("audio bytes")

	sum, err := fs.Write("note-1/rec.mp3", content)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if sum != checksum.Sum(content) {
		t.Errorf("checksum = %q", sum)
	}
	if !fs.Exists("note-1/rec.mp3") {
		t.Error("artifact missing after write")
	}

	got, err := fs.Read("note-1/rec.mp3")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content = %q", got)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	fs := testFS(t)
	if _, err := fs.Write("a/b.mp3", []byte("x")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Join(fs.Root(), "a"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "b.mp3" {
		t.Errorf("entries = %v", entries)
	}
}

func TestTraversalRejected(t *testing.T) {
	fs := testFS(t)
	for _, ref := range []string{
		"../outside.mp3",
		"a/../../outside.mp3",
		"/etc/passwd",
		"",
	} {
		if _, err := fs.Write(ref, []byte("x")); err == nil {
			t.Errorf("Write(%q) accepted", ref)
		}
		if _, err := fs.Read(ref); err == nil {
			t.Errorf("Read(%q) accepted", ref)
		}
		if fs.Exists(ref) {
			t.Errorf("Exists(%q) = true", ref)
		}
	}
}

func TestDelete(t *testing.T) {
	fs := testFS(t)
	if _, err := fs.Write("r.mp3", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Delete("r.mp3"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if fs.Exists("r.mp3") {
		t.Error("artifact survived delete")
	}
	if err := fs.Delete("r.mp3"); err == nil {
		t.Error("double delete accepted")
	}
}

func TestExport(t *testing.T) {
	fs := testFS(t)
	if _, err := fs.Write("r.mp3", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(t.TempDir(), "saved.mp3")
	if err := fs.Export("r.mp3", dest); err != nil {
		t.Fatalf("Export: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Errorf("exported = %q", got)
	}
}

func TestRel(t *testing.T) {
	fs := testFS(t)
	abs := filepath.Join(fs.Root(), "note-1", "rec.mp3")
	ref, ok := fs.Rel(abs)
	if !ok || ref != filepath.Join("note-1", "rec.mp3") {
		t.Errorf("Rel = %q, %v", ref, ok)
	}
	if _, ok := fs.Rel("/somewhere/else"); ok {
		t.Error("path outside root accepted")
	}
}
