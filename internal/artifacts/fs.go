// Package artifacts stores recorded audio payloads on the local file
// system, keyed by a relative reference.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/uos-liuyang/deepin-voice-note/internal/checksum"
)

// FS stores audio artifacts under a single root directory.
type FS struct {
	root string // absolute path to the artifacts directory
}

// NewFS creates an artifact store rooted at the given directory. The
// directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("artifacts: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("artifacts: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("artifacts: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute artifacts directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a reference against the root and rejects any result
// that escapes it (directory traversal).
func (f *FS) safePath(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("artifacts: empty reference")
	}
	cleaned := filepath.Clean(ref)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("artifacts: absolute references not allowed: %s", ref)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("artifacts: resolve reference: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("artifacts: reference escapes root: %s", ref)
	}
	return abs, nil
}

// Read returns the raw audio bytes of an artifact.
func (f *FS) Read(ref string) ([]byte, error) {
	abs, err := f.safePath(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("artifacts: read %s: %w", ref, err)
	}
	return data, nil
}

// Exists reports whether the artifact file is present on disk.
func (f *FS) Exists(ref string) bool {
	abs, err := f.safePath(ref)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Write atomically stores content under ref: tmp file → fsync → rename.
// It returns the content checksum.
func (f *FS) Write(ref string, content []byte) (string, error) {
	abs, err := f.safePath(ref)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifacts: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".vnote-tmp-*")
	if err != nil {
		return "", fmt.Errorf("artifacts: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return "", fmt.Errorf("artifacts: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("artifacts: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("artifacts: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return "", fmt.Errorf("artifacts: rename: %w", err)
	}
	success = true
	return checksum.Sum(content), nil
}

// Delete removes an artifact from disk.
func (f *FS) Delete(ref string) error {
	abs, err := f.safePath(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("artifacts: delete %s: %w", ref, err)
	}
	return nil
}

// Export copies the artifact bytes to an arbitrary destination path
// outside the root (save-as). The destination directory must exist.
func (f *FS) Export(ref, destPath string) error {
	data, err := f.Read(ref)
	if err != nil {
		return err
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return fmt.Errorf("artifacts: export to %s: %w", destPath, err)
	}
	return nil
}

// Rel converts an absolute path under the root into an artifact reference.
func (f *FS) Rel(abs string) (string, bool) {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return rel, true
}
