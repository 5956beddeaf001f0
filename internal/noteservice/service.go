// Package noteservice is the command surface of the core: it coordinates
// the storage engine, artifact store, recording manager and conversion
// pipeline, and publishes state changes for the presentation layer.
package noteservice

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
	"github.com/uos-liuyang/deepin-voice-note/internal/artifacts"
	"github.com/uos-liuyang/deepin-voice-note/internal/convert"
	"github.com/uos-liuyang/deepin-voice-note/internal/events"
	"github.com/uos-liuyang/deepin-voice-note/internal/models"
	"github.com/uos-liuyang/deepin-voice-note/internal/record"
	"github.com/uos-liuyang/deepin-voice-note/internal/store"
)

// Service coordinates the core subsystems.
type Service struct {
	db      *store.DB
	fs      *artifacts.FS
	rec     *record.Manager
	conv    *convert.Manager
	speaker *convert.Speaker
	broker  *events.Broker
	logger  *slog.Logger
}

// NewService creates the command-level service. broker may be nil.
func NewService(db *store.DB, fs *artifacts.FS, rec *record.Manager, conv *convert.Manager, speaker *convert.Speaker, broker *events.Broker, logger *slog.Logger) *Service {
	return &Service{db: db, fs: fs, rec: rec, conv: conv, speaker: speaker, broker: broker, logger: logger}
}

// --- Notebooks ---

// CreateNotebook creates a notebook, default-naming it when name is empty.
func (s *Service) CreateNotebook(_ context.Context, name string) (models.Notebook, error) {
	nb, err := s.db.CreateNotebook(name)
	if err != nil {
		return models.Notebook{}, err
	}
	s.publishNotebook("created", nb.ID)
	return nb, nil
}

// GetNotebook returns a notebook by id.
func (s *Service) GetNotebook(_ context.Context, id int64) (models.Notebook, error) {
	return s.db.GetNotebook(id)
}

// ListNotebooks returns all notebooks in creation order.
func (s *Service) ListNotebooks(_ context.Context) ([]models.Notebook, error) {
	return s.db.ListNotebooks()
}

// RenameNotebook renames a notebook.
func (s *Service) RenameNotebook(_ context.Context, id int64, name string) (models.Notebook, error) {
	nb, err := s.db.RenameNotebook(id, name)
	if err != nil {
		return models.Notebook{}, err
	}
	s.publishNotebook("updated", id)
	return nb, nil
}

// DeleteNotebook deletes a notebook and all contained notes. Destructive
// intent is confirmed by the caller; the engine performs no confirmation.
func (s *Service) DeleteNotebook(_ context.Context, id int64) (int, error) {
	n, err := s.db.DeleteNotebook(id)
	if err != nil {
		return 0, err
	}
	s.publishNotebook("deleted", id)
	return n, nil
}

// --- Notes ---

// CreateNote creates a note inside a notebook.
func (s *Service) CreateNote(_ context.Context, notebookID int64, kind models.NoteKind, name, content string) (models.Note, error) {
	n, err := s.db.CreateNote(notebookID, kind, name, content)
	if err != nil {
		return models.Note{}, err
	}
	s.publishNote("created", n.ID)
	return n, nil
}

// GetNote returns a note by id.
func (s *Service) GetNote(_ context.Context, id int64) (models.Note, error) {
	return s.db.GetNote(id)
}

// ListNotes returns the notes of a notebook, sticky first.
func (s *Service) ListNotes(_ context.Context, notebookID int64) ([]models.Note, error) {
	return s.db.ListNotes(notebookID)
}

// RenameNote renames a note.
func (s *Service) RenameNote(_ context.Context, id int64, name string) (models.Note, error) {
	n, err := s.db.RenameNote(id, name)
	if err != nil {
		return models.Note{}, err
	}
	s.publishNote("updated", id)
	return n, nil
}

// UpdateContent replaces a note's typed content.
func (s *Service) UpdateContent(_ context.Context, id int64, content string) (models.Note, error) {
	n, err := s.db.UpdateContent(id, content)
	if err != nil {
		return models.Note{}, err
	}
	s.publishNote("updated", id)
	return n, nil
}

// SetSticky toggles the sticky flag.
func (s *Service) SetSticky(_ context.Context, id int64, sticky bool) (models.Note, error) {
	n, err := s.db.SetSticky(id, sticky)
	if err != nil {
		return models.Note{}, err
	}
	s.publishNote("updated", id)
	return n, nil
}

// MoveNotes re-parents notes into the target notebook, atomically: when
// the target or any note id is missing nothing moves.
func (s *Service) MoveNotes(_ context.Context, ids []int64, targetID int64) error {
	if err := s.db.MoveNotes(ids, targetID); err != nil {
		return err
	}
	for _, id := range ids {
		s.publishNote("moved", id)
	}
	return nil
}

// DeleteNotes deletes notes in bulk, skipping missing ids, and returns
// the count actually deleted. Events are published only for the notes
// that existed.
func (s *Service) DeleteNotes(_ context.Context, ids []int64) (int, error) {
	deleted, err := s.db.DeleteNotes(ids)
	if err != nil {
		return 0, err
	}
	for _, id := range deleted {
		s.publishNote("deleted", id)
	}
	return len(deleted), nil
}

// Search returns a lazy, restartable sequence of matches; empty on no
// match, never an error.
func (s *Service) Search(_ context.Context, query string) iter.Seq[store.SearchHit] {
	return s.db.Search(query)
}

// --- Recording ---

// StartRecording begins capturing audio for a voice note.
func (s *Service) StartRecording(ctx context.Context, noteID int64, source models.DeviceClass) error {
	note, err := s.db.GetNote(noteID)
	if err != nil {
		return err
	}
	if note.Kind != models.KindVoice {
		return fmt.Errorf("noteservice: record into %s note: %w", note.Kind, apperr.ErrInvalidState)
	}
	return s.rec.Start(ctx, noteID, source)
}

// StopRecording finalizes the in-flight recording. The artifact stays
// unsaved until SaveRecording or DiscardRecording decides its fate.
func (s *Service) StopRecording(_ context.Context) (models.AudioArtifact, error) {
	return s.rec.Stop()
}

// SaveRecording attaches the unsaved artifact to its note. The pending
// slot is cleared only after the attach succeeds; on failure the caller
// can still retry the save or discard the artifact.
func (s *Service) SaveRecording(_ context.Context, noteID int64) (models.Note, error) {
	a, ok := s.rec.Pending(noteID)
	if !ok {
		return models.Note{}, fmt.Errorf("noteservice: no unsaved recording for note %d: %w", noteID, apperr.ErrInvalidState)
	}
	n, err := s.db.SetArtifact(noteID, a.Ref, a.Duration)
	if err != nil {
		return models.Note{}, err
	}
	if _, err := s.rec.Save(noteID); err != nil {
		return models.Note{}, err
	}
	s.publishNote("updated", noteID)
	return n, nil
}

// DiscardRecording drops the unsaved artifact.
func (s *Service) DiscardRecording(_ context.Context, noteID int64) error {
	return s.rec.Discard(noteID)
}

// RecordingState returns the recording machine state.
func (s *Service) RecordingState(_ context.Context) record.State {
	return s.rec.State()
}

// --- Conversion & speech ---

// StartConversion begins voice-to-text conversion for a voice note.
func (s *Service) StartConversion(_ context.Context, noteID int64) (convert.View, error) {
	return s.conv.Start(noteID)
}

// RetryConversion retries a failed job; always an explicit caller action.
func (s *Service) RetryConversion(_ context.Context, jobID int64) (convert.View, error) {
	return s.conv.Retry(jobID)
}

// CancelConversion aborts a converting job.
func (s *Service) CancelConversion(_ context.Context, jobID int64) (convert.View, error) {
	return s.conv.Cancel(jobID)
}

// GetConversion returns a job snapshot for polling.
func (s *Service) GetConversion(_ context.Context, jobID int64) (convert.View, error) {
	return s.conv.Get(jobID)
}

// Speak reads a note aloud.
func (s *Service) Speak(ctx context.Context, noteID int64) error {
	return s.speaker.Speak(ctx, noteID)
}

// StopReading aborts the active speech stream.
func (s *Service) StopReading(_ context.Context) error {
	return s.speaker.StopReading()
}

// --- Export (save-as) ---

// ExportVoice copies a voice note's recording to dir as <name>.mp3 and
// returns the written path.
func (s *Service) ExportVoice(_ context.Context, noteID int64, dir string) (string, error) {
	note, err := s.db.GetNote(noteID)
	if err != nil {
		return "", err
	}
	if note.Kind != models.KindVoice || note.ArtifactRef == "" {
		return "", fmt.Errorf("noteservice: note %d has no recording to export: %w", noteID, apperr.ErrInvalidState)
	}
	dest := filepath.Join(dir, exportFileName(note.Name)+".mp3")
	if err := s.fs.Export(note.ArtifactRef, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// ExportText writes a note's text (typed content, or a voice note's
// transcript) to dir as <name>.txt and returns the written path.
func (s *Service) ExportText(_ context.Context, noteID int64, dir string) (string, error) {
	note, err := s.db.GetNote(noteID)
	if err != nil {
		return "", err
	}
	text := note.Content
	if note.Kind == models.KindVoice {
		text = note.TextPayload
	}
	if text == "" {
		return "", fmt.Errorf("noteservice: note %d has no text to export: %w", noteID, apperr.ErrInvalidState)
	}
	dest := filepath.Join(dir, exportFileName(note.Name)+".txt")
	if err := os.WriteFile(dest, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("noteservice: export text: %w", err)
	}
	return dest, nil
}

// --- Watcher integration ---

// HandleArtifactRemoved clears the artifact reference of every note whose
// recording vanished from disk and notifies the presentation layer.
func (s *Service) HandleArtifactRemoved(ref string) {
	ids, err := s.db.NotesByArtifact(ref)
	if err != nil {
		s.logger.Warn("noteservice: lookup removed artifact failed",
			slog.String("ref", ref), slog.String("error", err.Error()))
		return
	}
	for _, id := range ids {
		if _, err := s.db.ClearArtifact(id); err != nil {
			s.logger.Warn("noteservice: clear artifact failed",
				slog.Int64("note_id", id), slog.String("error", err.Error()))
			continue
		}
		s.logger.Info("noteservice: voice recording deleted", slog.Int64("note_id", id), slog.String("ref", ref))
		s.publishNote("voice_missing", id)
	}
}

func (s *Service) publishNote(kind string, id int64) {
	if s.broker != nil {
		s.broker.PublishNote(kind, id)
	}
}

func (s *Service) publishNotebook(kind string, id int64) {
	if s.broker != nil {
		s.broker.PublishNotebook(kind, id)
	}
}

// exportFileName strips path separators from a display name so it is
// usable as a file name.
func exportFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '-'
		default:
			return r
		}
	}, name)
	name = strings.TrimSpace(name)
	if name == "" {
		return "note"
	}
	return name
}
