// Package convert drives voice-to-text conversion jobs through a stateful
// retry protocol, plus the inverse text-to-speech direction.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
	"github.com/uos-liuyang/deepin-voice-note/internal/artifacts"
	"github.com/uos-liuyang/deepin-voice-note/internal/events"
	"github.com/uos-liuyang/deepin-voice-note/internal/models"
	"github.com/uos-liuyang/deepin-voice-note/internal/store"
)

// Manager owns conversion jobs. At most one job per note is active at a
// time; a second start is rejected, never queued.
type Manager struct {
	db       *store.DB
	fs       *artifacts.FS
	provider Provider
	broker   *events.Broker
	logger   *slog.Logger
	timeout  time.Duration

	mu     sync.Mutex
	byNote map[int64]*Job
	byID   map[int64]*Job
	nextID int64
}

// NewManager creates a conversion manager. timeout bounds each network
// conversion call; broker may be nil.
func NewManager(db *store.DB, fs *artifacts.FS, provider Provider, broker *events.Broker, timeout time.Duration, logger *slog.Logger) *Manager {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Manager{
		db:       db,
		fs:       fs,
		provider: provider,
		broker:   broker,
		logger:   logger,
		timeout:  timeout,
		byNote:   make(map[int64]*Job),
		byID:     make(map[int64]*Job),
	}
}

// Start begins converting the voice note's recording into text.
// Artifacts above the conversion ceiling are rejected with ErrTooLong
// before any network contact; a note with an active job rejects with
// Busy and the original job is left untouched.
func (m *Manager) Start(noteID int64) (View, error) {
	note, err := m.db.GetNote(noteID)
	if err != nil {
		return View{}, err
	}
	if note.Kind != models.KindVoice {
		return View{}, fmt.Errorf("convert: note %d is not a voice note: %w", noteID, apperr.ErrInvalidState)
	}
	if note.ArtifactRef == "" {
		return View{}, fmt.Errorf("convert: note %d has no recording: %w", noteID, apperr.ErrInvalidState)
	}
	if note.VoiceDuration() > models.ConversionCeiling {
		return View{}, fmt.Errorf("convert: recording is %s: %w", note.VoiceDuration(), apperr.ErrTooLong)
	}

	m.mu.Lock()
	if existing, ok := m.byNote[noteID]; ok {
		existing.mu.Lock()
		active := !existing.state.Terminal()
		existing.mu.Unlock()
		if active {
			m.mu.Unlock()
			return View{}, fmt.Errorf("convert: note %d already converting: %w", noteID, apperr.ErrBusy)
		}
	}
	m.nextID++
	// The job enters Converting before m.mu is released so a concurrent
	// Start can never observe it in a pre-launch state and slip past the
	// busy check.
	job := &Job{ID: m.nextID, NoteID: noteID, ArtifactRef: note.ArtifactRef, state: JobIdle}
	job.transition(JobConverting)
	m.byNote[noteID] = job
	m.byID[job.ID] = job
	m.mu.Unlock()

	m.launch(job)
	return job.Snapshot(), nil
}

// Retry re-enters Converting after a failure. Each retry is an explicit
// caller action; the manager never retries a failed job on its own. Only
// the note's current job may retry: a failed job that a later Start has
// replaced is rejected, keeping one in-flight conversion per note.
func (m *Manager) Retry(jobID int64) (View, error) {
	m.mu.Lock()
	job, ok := m.byID[jobID]
	if !ok {
		m.mu.Unlock()
		return View{}, fmt.Errorf("convert: job %d: %w", jobID, apperr.ErrNotFound)
	}
	if m.byNote[job.NoteID] != job {
		m.mu.Unlock()
		return View{}, fmt.Errorf("convert: job %d replaced by a newer job for note %d: %w", jobID, job.NoteID, apperr.ErrInvalidState)
	}

	job.mu.Lock()
	if job.state != JobFailedNetwork && job.state != JobFailedOther {
		state := job.state
		job.mu.Unlock()
		m.mu.Unlock()
		return View{}, fmt.Errorf("convert: retry in state %s: %w", state, apperr.ErrInvalidState)
	}
	job.transition(JobConverting)
	job.retries++
	job.cancelled = false
	job.errMsg = ""
	job.mu.Unlock()
	m.mu.Unlock()

	m.launch(job)
	return job.Snapshot(), nil
}

// Cancel aborts a converting job. Valid only while Converting. When a
// cancellation races an in-flight completion, cancellation wins and the
// text output is discarded.
func (m *Manager) Cancel(jobID int64) (View, error) {
	job, err := m.job(jobID)
	if err != nil {
		return View{}, err
	}

	job.mu.Lock()
	if job.state != JobConverting {
		state := job.state
		job.mu.Unlock()
		return View{}, fmt.Errorf("convert: cancel in state %s: %w", state, apperr.ErrInvalidState)
	}
	job.cancelled = true
	job.transition(JobCancelled)
	cancelRun := job.cancelRun
	job.mu.Unlock()

	if cancelRun != nil {
		cancelRun()
	}
	m.publish(job)
	return job.Snapshot(), nil
}

// Get returns the current snapshot of a job.
func (m *Manager) Get(jobID int64) (View, error) {
	job, err := m.job(jobID)
	if err != nil {
		return View{}, err
	}
	return job.Snapshot(), nil
}

// ForNote returns the latest job for a note, if any.
func (m *Manager) ForNote(noteID int64) (View, bool) {
	m.mu.Lock()
	job, ok := m.byNote[noteID]
	m.mu.Unlock()
	if !ok {
		return View{}, false
	}
	return job.Snapshot(), true
}

func (m *Manager) job(jobID int64) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.byID[jobID]
	if !ok {
		return nil, fmt.Errorf("convert: job %d: %w", jobID, apperr.ErrNotFound)
	}
	return job, nil
}

// launch runs a job in the background. The caller has already moved it
// into Converting.
func (m *Manager) launch(job *Job) {
	runCtx, cancel := context.WithCancel(context.Background())

	job.mu.Lock()
	job.cancelRun = cancel
	job.mu.Unlock()

	m.publish(job)
	go m.run(runCtx, job)
}

// run performs one conversion attempt. Cancellation is observed at the
// network call (context) and again before the transcript is attached.
func (m *Manager) run(ctx context.Context, job *Job) {
	audio, err := m.fs.Read(job.ArtifactRef)
	if err != nil {
		m.finishErr(job, fmt.Errorf("convert: read recording: %w", err))
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	text, err := m.provider.Transcribe(callCtx, audio)
	if err != nil {
		m.finishErr(job, err)
		return
	}

	job.mu.Lock()
	if job.cancelled {
		// Completed and cancelled in the same instant: cancellation wins,
		// the transcript is discarded.
		job.mu.Unlock()
		return
	}
	if _, err := m.db.AttachText(job.NoteID, text); err != nil {
		job.transition(JobFailedOther)
		job.errMsg = err.Error()
		job.mu.Unlock()
		m.publish(job)
		return
	}
	job.transition(JobSucceeded)
	job.mu.Unlock()

	m.logger.Info("convert: succeeded", slog.Int64("note_id", job.NoteID), slog.Int64("job_id", job.ID))
	m.publish(job)
}

// finishErr classifies a failed attempt. Network failures (including
// timeouts) and provider errors get distinct states so the caller can
// advise re-checking connectivity only where it helps.
func (m *Manager) finishErr(job *Job, err error) {
	job.mu.Lock()
	if job.cancelled {
		job.mu.Unlock()
		return
	}
	if errors.Is(err, apperr.ErrNetwork) || errors.Is(err, context.DeadlineExceeded) {
		job.transition(JobFailedNetwork)
	} else {
		job.transition(JobFailedOther)
	}
	job.errMsg = err.Error()
	job.mu.Unlock()

	m.logger.Warn("convert: attempt failed",
		slog.Int64("note_id", job.NoteID),
		slog.Int64("job_id", job.ID),
		slog.String("error", err.Error()))
	m.publish(job)
}

func (m *Manager) publish(job *Job) {
	if m.broker == nil {
		return
	}
	view := job.Snapshot()
	m.broker.PublishConversion(view.NoteID, view.State, view.Retries)
}
