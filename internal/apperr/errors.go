// Package apperr defines the error taxonomy shared across the core.
package apperr

import "errors"

var (
	// ErrNotFound means a referenced notebook or note id is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState means the operation is not valid in the current
	// state, e.g. stopping a recording that was never started.
	ErrInvalidState = errors.New("invalid state")
	// ErrBusy means an exclusivity constraint was violated: a second
	// conversion or recording was requested against a note that already
	// has one active.
	ErrBusy = errors.New("busy")
	// ErrTooLong means the audio artifact exceeds the conversion ceiling.
	// Permanent; no amount of retrying changes the artifact length.
	ErrTooLong = errors.New("recording too long to convert")
	// ErrNetwork is a transient network failure; the caller may retry.
	ErrNetwork = errors.New("network failure")
	// ErrDeviceUnavailable means no compatible recording hardware exists.
	ErrDeviceUnavailable = errors.New("no recording device detected")
	// ErrImportPartial means the legacy import completed but skipped
	// records it could not read.
	ErrImportPartial = errors.New("legacy import completed with skipped records")
)
