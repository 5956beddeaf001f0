package record

import (
	"context"
	"io"

	"github.com/uos-liuyang/deepin-voice-note/internal/models"
)

// Device captures raw audio. Capture returns a stream of 16-bit
// little-endian mono PCM at SampleRate that ends when ctx is cancelled.
type Device interface {
	Class() models.DeviceClass
	SampleRate() int
	Capture(ctx context.Context) (io.ReadCloser, error)
}

// Detector finds a capture device of the requested class. Returns
// apperr.ErrDeviceUnavailable when none is present; this is reported, not
// retried automatically.
type Detector interface {
	Detect(class models.DeviceClass) (Device, error)
}

// Encoder turns captured PCM into the stored artifact encoding (MP3).
// Encoding is an external library capability; the core only invokes it.
type Encoder interface {
	Encode(pcm []byte, sampleRate int) ([]byte, error)
}

// RawEncoder stores PCM unencoded. Used when no MP3 encoder is wired in.
type RawEncoder struct{}

func (RawEncoder) Encode(pcm []byte, _ int) ([]byte, error) { return pcm, nil }
