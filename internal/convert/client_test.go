package convert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
)

func TestClientTranscribe(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hello"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", 5*time.Second, 1)
	defer c.Close()

	text, err := c.Transcribe(context.Background(), []byte("audio"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello" {
		t.Errorf("text = %q", text)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("auth = %q", gotAuth)
	}
}

func TestClientServerErrorIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second, 1)
	defer c.Close()

	if _, err := c.Transcribe(context.Background(), nil); !errors.Is(err, apperr.ErrNetwork) {
		t.Errorf("err = %v, want ErrNetwork", err)
	}
}

func TestClientRejectionIsNotNetwork(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	// Even with transport retries enabled, a 4xx rejection is final.
	c := NewClient(srv.URL, "", 5*time.Second, 3)
	defer c.Close()

	_, err := c.Transcribe(context.Background(), nil)
	if err == nil {
		t.Fatal("rejection accepted")
	}
	if errors.Is(err, apperr.ErrNetwork) {
		t.Errorf("4xx classified as network: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (unrecoverable)", calls.Load())
	}
}

func TestClientTransportRetries(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "eventually"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second, 3)
	defer c.Close()

	text, err := c.Transcribe(context.Background(), []byte("a"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "eventually" {
		t.Errorf("text = %q", text)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClientUnreachableHostIsNetwork(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", time.Second, 1)
	defer c.Close()

	if _, err := c.Transcribe(context.Background(), nil); !errors.Is(err, apperr.ErrNetwork) {
		t.Errorf("err = %v, want ErrNetwork", err)
	}
}

func TestClientSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Text != "read me" {
			t.Errorf("text = %q", req.Text)
		}
		_, _ = w.Write([]byte("pcm-bytes"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second, 1)
	defer c.Close()

	audio, err := c.Synthesize(context.Background(), "read me")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "pcm-bytes" {
		t.Errorf("audio = %q", audio)
	}
}
