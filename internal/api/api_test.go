package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
	"github.com/uos-liuyang/deepin-voice-note/internal/artifacts"
	"github.com/uos-liuyang/deepin-voice-note/internal/convert"
	"github.com/uos-liuyang/deepin-voice-note/internal/models"
	"github.com/uos-liuyang/deepin-voice-note/internal/noteservice"
	"github.com/uos-liuyang/deepin-voice-note/internal/record"
	"github.com/uos-liuyang/deepin-voice-note/internal/store"
	"github.com/uos-liuyang/deepin-voice-note/internal/testutil"
)

type stubProvider struct{}

func (stubProvider) Transcribe(context.Context, []byte) (string, error) {
	return "transcript", nil
}

func (stubProvider) Synthesize(context.Context, string) ([]byte, error) {
	return []byte("audio"), nil
}

type stubDetector struct{}

func (stubDetector) Detect(models.DeviceClass) (record.Device, error) {
	return nil, fmt.Errorf("no capture device in tests: %w", apperr.ErrDeviceUnavailable)
}

type testEnv struct {
	db  *store.DB
	fs  *artifacts.FS
	svc *noteservice.Service
}

// newTestEnv wires a full service stack over temp storage. authToken
// empty means auth disabled.
func newTestEnv(t *testing.T, authToken string) (*testEnv, http.Handler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := testutil.TestDB(t)
	_, fs := testutil.TestArtifacts(t)

	rec := record.NewManager(stubDetector{}, nil, fs, nil, logger)
	conv := convert.NewManager(db, fs, stubProvider{}, nil, time.Second, logger)
	speaker := convert.NewSpeaker(db, stubProvider{}, nil, nil, logger)
	svc := noteservice.NewService(db, fs, rec, conv, speaker, nil, logger)

	router := NewRouter(svc, authToken != "", authToken, nil)
	return &testEnv{db: db, fs: fs, svc: svc}, router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNotebookCRUD(t *testing.T) {
	_, router := newTestEnv(t, "")

	// Create with an empty name gets the default.
	w := doJSON(t, router, http.MethodPost, "/notebooks", map[string]string{"name": ""})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var nb models.Notebook
	if err := json.Unmarshal(w.Body.Bytes(), &nb); err != nil {
		t.Fatal(err)
	}
	if nb.Name != "Notebook" {
		t.Errorf("name = %q", nb.Name)
	}

	// Rename.
	w = doJSON(t, router, http.MethodPut, fmt.Sprintf("/notebooks/%d", nb.ID), map[string]string{"name": "Work"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename status = %d", w.Code)
	}

	// List.
	w = doJSON(t, router, http.MethodGet, "/notebooks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var nbs []models.Notebook
	if err := json.Unmarshal(w.Body.Bytes(), &nbs); err != nil {
		t.Fatal(err)
	}
	if len(nbs) != 1 || nbs[0].Name != "Work" {
		t.Errorf("notebooks = %+v", nbs)
	}

	// Get missing → 404.
	w = doJSON(t, router, http.MethodGet, "/notebooks/999", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d", w.Code)
	}
}

func TestUnknownKindAndSourceRejected(t *testing.T) {
	env, router := newTestEnv(t, "")

	nb, err := env.db.CreateNotebook("a")
	if err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/notebooks/%d/notes", nb.ID),
		map[string]string{"kind": "pdf"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind status = %d, body = %s", w.Code, w.Body.String())
	}

	voice, err := env.db.CreateNote(nb.ID, models.KindVoice, "", "")
	if err != nil {
		t.Fatal(err)
	}
	w = doJSON(t, router, http.MethodPost, "/recording/start",
		map[string]any{"note_id": voice.ID, "source": "telepathy"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown source status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestNoteLifecycleOverHTTP(t *testing.T) {
	_, router := newTestEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/notebooks", map[string]string{"name": "a"})
	var nb models.Notebook
	if err := json.Unmarshal(w.Body.Bytes(), &nb); err != nil {
		t.Fatal(err)
	}
	w = doJSON(t, router, http.MethodPost, "/notebooks", map[string]string{"name": "b"})
	var other models.Notebook
	if err := json.Unmarshal(w.Body.Bytes(), &other); err != nil {
		t.Fatal(err)
	}

	// Create a text note.
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/notebooks/%d/notes", nb.ID),
		map[string]string{"kind": "text", "content": "hello"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create note status = %d, body = %s", w.Code, w.Body.String())
	}
	var note models.Note
	if err := json.Unmarshal(w.Body.Bytes(), &note); err != nil {
		t.Fatal(err)
	}
	if note.Name != "Text" || note.Kind != models.KindText {
		t.Errorf("note = %+v", note)
	}

	// Update content and sticky.
	w = doJSON(t, router, http.MethodPut, fmt.Sprintf("/notes/%d", note.ID), map[string]string{"content": "updated"})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodPut, fmt.Sprintf("/notes/%d/sticky", note.ID), map[string]bool{"sticky": true})
	if w.Code != http.StatusOK {
		t.Fatalf("sticky status = %d", w.Code)
	}

	// Move into the other notebook.
	w = doJSON(t, router, http.MethodPost, "/notes/move",
		map[string]any{"note_ids": []int64{note.ID}, "target_notebook_id": other.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("move status = %d, body = %s", w.Code, w.Body.String())
	}

	// A move with a missing id is atomic and reports 404.
	w = doJSON(t, router, http.MethodPost, "/notes/move",
		map[string]any{"note_ids": []int64{note.ID, 9999}, "target_notebook_id": nb.ID})
	if w.Code != http.StatusNotFound {
		t.Fatalf("bad move status = %d", w.Code)
	}

	// Bulk delete skips missing ids and reports the real count.
	w = doJSON(t, router, http.MethodPost, "/notes/delete", map[string]any{"note_ids": []int64{note.ID, 9999}})
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	var result BulkResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Affected != 1 {
		t.Errorf("affected = %d, want 1", result.Affected)
	}
}

func TestSearchEndpoint(t *testing.T) {
	env, router := newTestEnv(t, "")

	nb, err := env.db.CreateNotebook("a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.db.CreateNote(nb.ID, models.KindText, "groceries", "buy oat milk"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.db.CreateNote(nb.ID, models.KindText, "other", "nothing"); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, http.MethodGet, "/search?q=oat", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var hits []store.SearchHit
	if err := json.Unmarshal(w.Body.Bytes(), &hits); err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("hits = %+v", hits)
	}

	// A blank query is an empty result, not an error.
	w = doJSON(t, router, http.MethodGet, "/search?q=", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("blank query status = %d", w.Code)
	}
}

func TestConversionOverHTTP(t *testing.T) {
	env, router := newTestEnv(t, "")

	nb, err := env.db.CreateNotebook("a")
	if err != nil {
		t.Fatal(err)
	}
	voice, err := env.db.CreateNote(nb.ID, models.KindVoice, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.fs.Write("rec.mp3", []byte("audio")); err != nil {
		t.Fatal(err)
	}
	if _, err := env.db.SetArtifact(voice.ID, "rec.mp3", 30*time.Second); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, http.MethodPost, "/conversions", map[string]int64{"note_id": voice.ID})
	if w.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, body = %s", w.Code, w.Body.String())
	}
	var view convert.View
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/conversions/%d", view.ID), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("get status = %d", w.Code)
		}
		if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
			t.Fatal(err)
		}
		if view.State == "succeeded" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job stuck in %s", view.State)
		}
		time.Sleep(5 * time.Millisecond)
	}

	got, err := env.db.GetNote(voice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TextPayload != "transcript" {
		t.Errorf("payload = %q", got.TextPayload)
	}
}

func TestConversionTooLongOverHTTP(t *testing.T) {
	env, router := newTestEnv(t, "")

	nb, err := env.db.CreateNotebook("a")
	if err != nil {
		t.Fatal(err)
	}
	voice, err := env.db.CreateNote(nb.ID, models.KindVoice, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.fs.Write("long.mp3", []byte("audio")); err != nil {
		t.Fatal(err)
	}
	if _, err := env.db.SetArtifact(voice.ID, "long.mp3", models.ConversionCeiling+time.Second); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, http.MethodPost, "/conversions", map[string]int64{"note_id": voice.ID})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestRecordingDeviceErrorOverHTTP(t *testing.T) {
	env, router := newTestEnv(t, "")

	nb, err := env.db.CreateNotebook("a")
	if err != nil {
		t.Fatal(err)
	}
	voice, err := env.db.CreateNote(nb.ID, models.KindVoice, "", "")
	if err != nil {
		t.Fatal(err)
	}

	// The stub detector never finds a device.
	w := doJSON(t, router, http.MethodPost, "/recording/start",
		map[string]any{"note_id": voice.ID, "source": "microphone"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/recording", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("state status = %d", w.Code)
	}
	if body := w.Body.String(); !bytes.Contains([]byte(body), []byte("device_error")) {
		t.Errorf("state body = %s", body)
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, router := newTestEnv(t, "secret")

	// No token → 401.
	w := doJSON(t, router, http.MethodGet, "/notebooks", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}

	// Wrong token → 401.
	req := httptest.NewRequest(http.MethodGet, "/notebooks", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}

	// Correct token passes.
	req = httptest.NewRequest(http.MethodGet, "/notebooks", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
