package convert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"resty.dev/v3"

	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
)

// Client talks to the speech service over HTTP.
//
// Each conversion attempt is a single caller-visible operation; attempts
// here only covers transport-level retries inside that one operation
// (default 1, i.e. no hidden retry). Job-level retries stay an explicit
// caller action.
type Client struct {
	httpClient *resty.Client
	attempts   uint
}

// NewClient creates a speech-service client. timeout bounds every request;
// expiry surfaces as a network failure, never an indefinite hang.
func NewClient(baseURL, token string, timeout time.Duration, attempts uint) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	if token != "" {
		client.SetHeader("Authorization", "Bearer "+token)
	}
	if attempts == 0 {
		attempts = 1
	}
	return &Client{httpClient: client, attempts: attempts}
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.httpClient.Close()
}

type transcribeResponse struct {
	Text string `json:"text"`
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

// Transcribe sends audio to the speech service and returns the transcript.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var text string
	err := retry.Do(
		func() error {
			res, err := c.httpClient.R().
				SetContext(ctx).
				SetHeader("Content-Type", "audio/mpeg").
				SetBody(audio).
				SetResult(&transcribeResponse{}).
				Post("/v1/transcriptions")
			if err != nil {
				return fmt.Errorf("convert: transcribe request: %w: %v", apperr.ErrNetwork, err)
			}
			if res.IsError() {
				if res.StatusCode() >= 500 || res.StatusCode() == 429 {
					return fmt.Errorf("convert: transcribe: service error %d: %w", res.StatusCode(), apperr.ErrNetwork)
				}
				return retry.Unrecoverable(fmt.Errorf("convert: transcribe: provider rejected request (%d): %s",
					res.StatusCode(), res.String()))
			}
			text = res.Result().(*transcribeResponse).Text
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, apperr.ErrNetwork) {
			return "", fmt.Errorf("convert: transcribe: %w: %v", apperr.ErrNetwork, ctxErr)
		}
		return "", err
	}
	return text, nil
}

// Synthesize sends text to the speech service and returns synthesized audio.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var audio []byte
	err := retry.Do(
		func() error {
			res, err := c.httpClient.R().
				SetContext(ctx).
				SetBody(synthesizeRequest{Text: text}).
				Post("/v1/speech")
			if err != nil {
				return fmt.Errorf("convert: synthesize request: %w: %v", apperr.ErrNetwork, err)
			}
			if res.IsError() {
				if res.StatusCode() >= 500 || res.StatusCode() == 429 {
					return fmt.Errorf("convert: synthesize: service error %d: %w", res.StatusCode(), apperr.ErrNetwork)
				}
				return retry.Unrecoverable(fmt.Errorf("convert: synthesize: provider rejected request (%d): %s",
					res.StatusCode(), res.String()))
			}
			audio = []byte(res.String())
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return audio, nil
}
