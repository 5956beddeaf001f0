// Package testutil provides shared test helpers for setting up stores and
// artifact directories.
package testutil

import (
	"os"
	"testing"

	"github.com/uos-liuyang/deepin-voice-note/internal/artifacts"
	"github.com/uos-liuyang/deepin-voice-note/internal/store"
)

// TestDB creates a temporary SQLite store that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "vnote-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestArtifacts creates a temporary artifact directory with an FS.
func TestArtifacts(t *testing.T) (string, *artifacts.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := artifacts.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}
