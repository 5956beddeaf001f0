package convert

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
	"github.com/uos-liuyang/deepin-voice-note/internal/events"
	"github.com/uos-liuyang/deepin-voice-note/internal/models"
	"github.com/uos-liuyang/deepin-voice-note/internal/store"
)

// AudioSink opens the playback output. Playback hardware is external to
// the core; tests and headless setups use DiscardSink.
type AudioSink interface {
	Open() (io.WriteCloser, error)
}

// DiscardSink swallows synthesized audio.
type DiscardSink struct{}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (DiscardSink) Open() (io.WriteCloser, error) {
	return nopWriteCloser{io.Discard}, nil
}

// Speaker reads notes aloud through the speech service. At most one
// speech stream is active process-wide.
type Speaker struct {
	db       *store.DB
	provider Provider
	sink     AudioSink
	broker   *events.Broker
	logger   *slog.Logger

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
}

// NewSpeaker creates a speaker. A nil sink discards audio.
func NewSpeaker(db *store.DB, provider Provider, sink AudioSink, broker *events.Broker, logger *slog.Logger) *Speaker {
	if sink == nil {
		sink = DiscardSink{}
	}
	return &Speaker{db: db, provider: provider, sink: sink, broker: broker, logger: logger}
}

// Speaking reports whether a stream is active.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Speak synthesizes and streams the note's text: a text note's content,
// or a voice note's converted transcript. A second stream while one is
// active is rejected with Busy.
func (s *Speaker) Speak(ctx context.Context, noteID int64) error {
	note, err := s.db.GetNote(noteID)
	if err != nil {
		return err
	}
	text := note.Content
	if note.Kind == models.KindVoice {
		text = note.TextPayload
	}
	if text == "" {
		return fmt.Errorf("convert: note %d has nothing to read: %w", noteID, apperr.ErrInvalidState)
	}

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return fmt.Errorf("convert: already reading aloud: %w", apperr.ErrBusy)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.active = true
	s.cancel = cancel
	s.mu.Unlock()

	if s.broker != nil {
		s.broker.PublishNote("speaking", noteID)
	}
	go s.stream(runCtx, noteID, text)
	return nil
}

// StopReading aborts the active speech stream.
func (s *Speaker) StopReading() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return fmt.Errorf("convert: no speech stream active: %w", apperr.ErrInvalidState)
	}
	s.cancel()
	return nil
}

func (s *Speaker) stream(ctx context.Context, noteID int64, text string) {
	defer func() {
		s.mu.Lock()
		s.active = false
		s.cancel = nil
		s.mu.Unlock()
		if s.broker != nil {
			s.broker.PublishNote("speaking_done", noteID)
		}
	}()

	audio, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		s.logger.Warn("convert: synthesize failed", slog.Int64("note_id", noteID), slog.String("error", err.Error()))
		return
	}

	out, err := s.sink.Open()
	if err != nil {
		s.logger.Warn("convert: open playback sink failed", slog.String("error", err.Error()))
		return
	}
	defer out.Close()

	// Stream in chunks so cancellation is observed mid-playback.
	const chunk = 8 << 10
	for off := 0; off < len(audio); off += chunk {
		if ctx.Err() != nil {
			return
		}
		end := min(off+chunk, len(audio))
		if _, err := out.Write(audio[off:end]); err != nil {
			s.logger.Warn("convert: playback write failed", slog.String("error", err.Error()))
			return
		}
	}
}
