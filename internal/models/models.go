// Package models defines the domain types for the voice note core.
package models

import "time"

// NoteKind distinguishes typed notes from voice recordings.
// A note's kind is immutable after creation: converting a voice note
// attaches a text payload, it never retypes the note.
type NoteKind int

const (
	KindText NoteKind = iota + 1
	KindVoice
)

// String returns the default display-name stem for the kind.
func (k NoteKind) String() string {
	switch k {
	case KindText:
		return "Text"
	case KindVoice:
		return "Voice"
	default:
		return "Note"
	}
}

// Valid reports whether k is a known kind.
func (k NoteKind) Valid() bool {
	return k == KindText || k == KindVoice
}

// DeviceClass selects the audio capture source.
type DeviceClass int

const (
	DeviceInternal DeviceClass = iota + 1
	DeviceMicrophone
)

func (c DeviceClass) String() string {
	switch c {
	case DeviceInternal:
		return "Internal"
	case DeviceMicrophone:
		return "Microphone"
	default:
		return "Unknown"
	}
}

// ConversionCeiling is the hard upper bound on artifact duration eligible
// for voice-to-text conversion (20 minutes, boundary inclusive).
const ConversionCeiling = 1200 * time.Second

// Notebook is a named container of notes. The id is unique and stable
// across renames; display names need not be unique.
type Notebook struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	NoteCount int       `json:"note_count"`
}

// Note is a text or voice entry inside exactly one notebook. The
// NotebookID is a non-owning back-reference; a note never outlives its
// notebook.
type Note struct {
	ID          int64     `json:"id"`
	NotebookID  int64     `json:"notebook_id"`
	Kind        NoteKind  `json:"kind"`
	Name        string    `json:"name"`
	Content     string    `json:"content,omitempty"`
	ArtifactRef string    `json:"artifact_ref,omitempty"`
	VoiceMS     int64     `json:"voice_ms,omitempty"`
	TextPayload string    `json:"text_payload,omitempty"`
	Sticky      bool      `json:"sticky"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// VoiceDuration returns the recording length of a voice note.
func (n Note) VoiceDuration() time.Duration {
	return time.Duration(n.VoiceMS) * time.Millisecond
}

// AudioArtifact describes a finalized recording.
type AudioArtifact struct {
	Ref      string        `json:"ref"`
	Duration time.Duration `json:"duration"`
	Source   DeviceClass   `json:"source"`
	Checksum string        `json:"checksum"`
}

// Convertible reports whether the artifact is eligible for conversion.
// Artifacts above the ceiling are permanently ineligible.
func (a AudioArtifact) Convertible() bool {
	return a.Duration <= ConversionCeiling
}
