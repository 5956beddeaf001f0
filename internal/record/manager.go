// Package record implements the recording state machine over audio
// capture devices.
package record

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
	"github.com/uos-liuyang/deepin-voice-note/internal/artifacts"
	"github.com/uos-liuyang/deepin-voice-note/internal/events"
	"github.com/uos-liuyang/deepin-voice-note/internal/models"
)

// State is the recording manager state.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateRecording
	StateStopped
	StateDeviceError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	case StateDeviceError:
		return "device_error"
	default:
		return "unknown"
	}
}

// transitions is the legal state transition table. Anything absent here
// is rejected with ErrInvalidState.
var transitions = map[State][]State{
	StateIdle:        {StateArmed},
	StateArmed:       {StateRecording, StateDeviceError},
	StateRecording:   {StateStopped},
	StateStopped:     {StateArmed, StateIdle},
	StateDeviceError: {StateArmed, StateIdle},
}

// lowVolumeRMS is the 16-bit PCM RMS threshold below which a recording
// chunk counts as near-silent.
const lowVolumeRMS = 500.0

// Manager owns at most one in-flight recording and the unsaved artifacts
// awaiting a save-or-discard decision per note.
type Manager struct {
	detector Detector
	encoder  Encoder
	fs       *artifacts.FS
	broker   *events.Broker
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	noteID  int64
	source  models.DeviceClass
	rate    int
	cancel  context.CancelFunc
	done    chan struct{}
	pcm     bytes.Buffer
	warned  bool
	pending map[int64]models.AudioArtifact
}

// NewManager creates a recording manager. broker may be nil (no event
// notifications); a nil encoder stores raw PCM.
func NewManager(detector Detector, encoder Encoder, fs *artifacts.FS, broker *events.Broker, logger *slog.Logger) *Manager {
	if encoder == nil {
		encoder = RawEncoder{}
	}
	return &Manager{
		detector: detector,
		encoder:  encoder,
		fs:       fs,
		broker:   broker,
		logger:   logger,
		state:    StateIdle,
		pending:  make(map[int64]models.AudioArtifact),
	}
}

// State returns the current machine state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// transition moves the machine to next, rejecting moves the table does
// not allow. Callers hold m.mu.
func (m *Manager) transition(next State) error {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("record: %s -> %s: %w", m.state, next, apperr.ErrInvalidState)
}

// Start arms the manager and begins capturing audio for the note. A note
// that still holds an unsaved artifact rejects a new recording until the
// caller saves or discards it; the manager never silently overwrites.
func (m *Manager) Start(ctx context.Context, noteID int64, source models.DeviceClass) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateRecording || m.state == StateArmed {
		return fmt.Errorf("record: recording already in progress: %w", apperr.ErrBusy)
	}
	if _, ok := m.pending[noteID]; ok {
		return fmt.Errorf("record: note %d has an unsaved recording: %w", noteID, apperr.ErrBusy)
	}
	if err := m.transition(StateArmed); err != nil {
		return err
	}

	dev, err := m.detector.Detect(source)
	if err != nil {
		_ = m.transition(StateDeviceError)
		m.publishState()
		return fmt.Errorf("record: detect %s device: %w", source, err)
	}

	captureCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := dev.Capture(captureCtx)
	if err != nil {
		cancel()
		_ = m.transition(StateDeviceError)
		m.publishState()
		return fmt.Errorf("record: open capture stream: %w: %v", apperr.ErrDeviceUnavailable, err)
	}

	if err := m.transition(StateRecording); err != nil {
		cancel()
		_ = stream.Close()
		return err
	}
	m.noteID = noteID
	m.source = source
	m.rate = dev.SampleRate()
	m.cancel = cancel
	m.done = make(chan struct{})
	m.pcm.Reset()
	m.warned = false
	m.publishState()

	go m.capture(stream)
	return nil
}

// capture drains the device stream until it ends. Each chunk's RMS is
// checked against the low-volume threshold; the first near-silent chunk
// raises a continuable warning and the recording keeps going.
func (m *Manager) capture(stream io.ReadCloser) {
	defer close(m.done)
	defer stream.Close()

	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			m.mu.Lock()
			m.pcm.Write(buf[:n])
			warn := !m.warned && rms16(buf[:n]) < lowVolumeRMS
			if warn {
				m.warned = true
			}
			noteID := m.noteID
			m.mu.Unlock()

			if warn {
				m.logger.Warn("record: low input volume", slog.Int64("note_id", noteID))
				if m.broker != nil {
					m.broker.PublishRecording("low_volume", noteID)
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// Stop finalizes the in-flight recording into an audio artifact. Stopping
// when nothing records is rejected with ErrInvalidState.
func (m *Manager) Stop() (models.AudioArtifact, error) {
	m.mu.Lock()
	if m.state != StateRecording {
		defer m.mu.Unlock()
		return models.AudioArtifact{}, fmt.Errorf("record: stop without active recording: %w", apperr.ErrInvalidState)
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transition(StateStopped); err != nil {
		return models.AudioArtifact{}, err
	}

	pcm := m.pcm.Bytes()
	duration := pcmDuration(len(pcm), m.rate)

	encoded, err := m.encoder.Encode(pcm, m.rate)
	if err != nil {
		return models.AudioArtifact{}, fmt.Errorf("record: encode: %w", err)
	}

	ref := fmt.Sprintf("note-%d/rec-%s.mp3", m.noteID, time.Now().UTC().Format("20060102-150405.000"))
	sum, err := m.fs.Write(ref, encoded)
	if err != nil {
		return models.AudioArtifact{}, err
	}

	artifact := models.AudioArtifact{
		Ref:      ref,
		Duration: duration,
		Source:   m.source,
		Checksum: sum,
	}
	m.pending[m.noteID] = artifact
	m.publishState()
	return artifact, nil
}

// Pending returns the unsaved artifact for a note, if any.
func (m *Manager) Pending(noteID int64) (models.AudioArtifact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.pending[noteID]
	return a, ok
}

// Save hands the unsaved artifact over to the caller (who attaches it to
// the note) and clears the pending slot.
func (m *Manager) Save(noteID int64) (models.AudioArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.pending[noteID]
	if !ok {
		return models.AudioArtifact{}, fmt.Errorf("record: no unsaved recording for note %d: %w", noteID, apperr.ErrInvalidState)
	}
	delete(m.pending, noteID)
	m.idleIfDrained()
	return a, nil
}

// Discard drops the unsaved artifact and deletes its file.
func (m *Manager) Discard(noteID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.pending[noteID]
	if !ok {
		return fmt.Errorf("record: no unsaved recording for note %d: %w", noteID, apperr.ErrInvalidState)
	}
	delete(m.pending, noteID)
	if err := m.fs.Delete(a.Ref); err != nil {
		m.logger.Warn("record: discard delete failed", slog.String("ref", a.Ref), slog.String("error", err.Error()))
	}
	m.idleIfDrained()
	return nil
}

// idleIfDrained returns the machine to Idle once no recording is active
// and no artifact awaits a decision. Callers hold m.mu.
func (m *Manager) idleIfDrained() {
	if (m.state == StateStopped || m.state == StateDeviceError) && len(m.pending) == 0 {
		_ = m.transition(StateIdle)
	}
}

func (m *Manager) publishState() {
	if m.broker != nil {
		m.broker.PublishRecording(m.state.String(), m.noteID)
	}
}

// pcmDuration derives the recording length from the byte count of 16-bit
// mono PCM at the given sample rate.
func pcmDuration(byteLen, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := byteLen / 2
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// rms16 computes the root mean square of 16-bit little-endian samples.
func rms16(chunk []byte) float64 {
	if len(chunk) < 2 {
		return 0
	}
	var sum float64
	n := 0
	for i := 0; i+1 < len(chunk); i += 2 {
		s := int16(binary.LittleEndian.Uint16(chunk[i:]))
		sum += float64(s) * float64(s)
		n++
	}
	return math.Sqrt(sum / float64(n))
}
