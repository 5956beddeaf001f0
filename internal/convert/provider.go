package convert

import "context"

// Provider performs the network side of voice conversion: speech-to-text
// and its inverse. Implementations classify transport-level failures by
// wrapping apperr.ErrNetwork; everything else counts as a provider error.
type Provider interface {
	// Transcribe converts recorded audio into text.
	Transcribe(ctx context.Context, audio []byte) (string, error)
	// Synthesize converts text into audio for read-aloud playback.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
