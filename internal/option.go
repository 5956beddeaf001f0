package internal

import (
	"github.com/uos-liuyang/deepin-voice-note/internal/convert"
	"github.com/uos-liuyang/deepin-voice-note/internal/record"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	detector record.Detector
	encoder  record.Encoder
	provider convert.Provider
	sink     convert.AudioSink
	mcp      bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithDetector overrides the capture device detector.
func WithDetector(d record.Detector) Option {
	return func(a *application) {
		a.detector = d
	}
}

// WithEncoder overrides the audio encoder.
func WithEncoder(e record.Encoder) Option {
	return func(a *application) {
		a.encoder = e
	}
}

// WithProvider overrides the voice conversion provider.
func WithProvider(p convert.Provider) Option {
	return func(a *application) {
		a.provider = p
	}
}

// WithMCP switches the process to MCP stdio mode instead of HTTP.
func WithMCP(enabled bool) Option {
	return func(a *application) {
		a.mcp = enabled
	}
}

// WithAudioSink overrides the speech playback sink.
func WithAudioSink(s convert.AudioSink) Option {
	return func(a *application) {
		a.sink = s
	}
}
