package artifacts

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RemovedCallback is called with an artifact reference once its backing
// file has been removed from disk.
type RemovedCallback func(ref string)

// Watch starts an fsnotify watcher on the artifacts root and reports
// removed recordings until ctx is cancelled. Renames out of the root count
// as removals, so a voice note whose recording vanished can be flagged
// instead of failing later at playback or conversion time.
//
// Removal events are debounced briefly because editors and file managers
// often emit remove+create pairs for the same path.
func Watch(ctx context.Context, fs *FS, logger *slog.Logger, cb RemovedCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, fs.Root()); err != nil {
		return err
	}

	logger.Info("artifact watcher: started", slog.String("root", fs.Root()))

	pending := make(map[string]struct{})
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	scheduleFlush := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(200 * time.Millisecond)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("artifact watcher: stopped")
			return nil

		case <-flushCh:
			for ref := range pending {
				if fs.Exists(ref) {
					continue // came back; remove+create pair
				}
				logger.Debug("artifact watcher: removed", slog.String("ref", ref))
				if cb != nil {
					cb(ref)
				}
			}
			pending = make(map[string]struct{})

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			// New directories created at runtime join the watch list.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("artifact watcher: add dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					continue
				}
			}

			if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			ref, ok := fs.Rel(ev.Name)
			if !ok {
				continue
			}
			// Atomic writes rename their temp file away; not a lost recording.
			if strings.HasPrefix(filepath.Base(ref), ".vnote-tmp-") {
				continue
			}
			pending[ref] = struct{}{}
			scheduleFlush()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("artifact watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
