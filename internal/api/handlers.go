package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
	"github.com/uos-liuyang/deepin-voice-note/internal/models"
	"github.com/uos-liuyang/deepin-voice-note/internal/noteservice"
	"github.com/uos-liuyang/deepin-voice-note/internal/store"
)

// Handlers binds the note service to HTTP.
type Handlers struct {
	svc *noteservice.Service
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(svc *noteservice.Service) *Handlers {
	return &Handlers{svc: svc}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("api: decode request: %w", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("api: bad id: %w", apperr.ErrNotFound)
	}
	return id, nil
}

// parseNoteKind maps the wire kind to the model. An omitted kind means a
// text note; anything unrecognized is rejected rather than coerced.
func parseNoteKind(s string) (models.NoteKind, error) {
	switch s {
	case "", "text":
		return models.KindText, nil
	case "voice":
		return models.KindVoice, nil
	default:
		return 0, fmt.Errorf("api: unknown note kind %q", s)
	}
}

func parseSource(s string) (models.DeviceClass, error) {
	switch s {
	case "", "microphone":
		return models.DeviceMicrophone, nil
	case "internal":
		return models.DeviceInternal, nil
	default:
		return 0, fmt.Errorf("api: unknown recording source %q", s)
	}
}

// --- Notebooks ---

func (h *Handlers) CreateNotebook(w http.ResponseWriter, r *http.Request) {
	var req CreateNotebookRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	nb, err := h.svc.CreateNotebook(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, nb)
}

func (h *Handlers) ListNotebooks(w http.ResponseWriter, r *http.Request) {
	nbs, err := h.svc.ListNotebooks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nbs)
}

func (h *Handlers) GetNotebook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	nb, err := h.svc.GetNotebook(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nb)
}

func (h *Handlers) RenameNotebook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req RenameRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	nb, err := h.svc.RenameNotebook(r.Context(), id, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nb)
}

func (h *Handlers) DeleteNotebook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	n, err := h.svc.DeleteNotebook(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BulkResult{Affected: n})
}

// --- Notes ---

func (h *Handlers) CreateNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req CreateNoteRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	kind, err := parseNoteKind(req.Kind)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	n, err := h.svc.CreateNote(r.Context(), id, kind, req.Name, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *Handlers) ListNotes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	notes, err := h.svc.ListNotes(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *Handlers) GetNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	n, err := h.svc.GetNote(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handlers) RenameNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req RenameRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	n, err := h.svc.RenameNote(r.Context(), id, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handlers) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req UpdateNoteRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	n, err := h.svc.UpdateContent(r.Context(), id, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handlers) SetSticky(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req StickyRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	n, err := h.svc.SetSticky(r.Context(), id, req.Sticky)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handlers) MoveNotes(w http.ResponseWriter, r *http.Request) {
	var req MoveNotesRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	if err := h.svc.MoveNotes(r.Context(), req.NoteIDs, req.TargetNotebookID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BulkResult{Affected: len(req.NoteIDs)})
}

func (h *Handlers) DeleteNotes(w http.ResponseWriter, r *http.Request) {
	var req DeleteNotesRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	n, err := h.svc.DeleteNotes(r.Context(), req.NoteIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BulkResult{Affected: n})
}

// Search runs a query and collects up to limit hits from the lazy
// sequence. The default limit keeps a broad query from streaming the
// whole corpus into one response.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	hits := make([]store.SearchHit, 0, 16)
	for hit := range h.svc.Search(r.Context(), query) {
		hits = append(hits, hit)
		if len(hits) >= limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, hits)
}

// --- Recording ---

func (h *Handlers) StartRecording(w http.ResponseWriter, r *http.Request) {
	var req StartRecordingRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	source, err := parseSource(req.Source)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	if err := h.svc.StartRecording(r.Context(), req.NoteID, source); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": h.svc.RecordingState(r.Context()).String()})
}

func (h *Handlers) StopRecording(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.StopRecording(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handlers) SaveRecording(w http.ResponseWriter, r *http.Request) {
	var req NoteIDRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	n, err := h.svc.SaveRecording(r.Context(), req.NoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handlers) DiscardRecording(w http.ResponseWriter, r *http.Request) {
	var req NoteIDRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	if err := h.svc.DiscardRecording(r.Context(), req.NoteID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": h.svc.RecordingState(r.Context()).String()})
}

func (h *Handlers) RecordingState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"state": h.svc.RecordingState(r.Context()).String()})
}

// --- Conversion ---

func (h *Handlers) StartConversion(w http.ResponseWriter, r *http.Request) {
	var req NoteIDRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	view, err := h.svc.StartConversion(r.Context(), req.NoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

func (h *Handlers) GetConversion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.svc.GetConversion(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) RetryConversion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.svc.RetryConversion(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

func (h *Handlers) CancelConversion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.svc.CancelConversion(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// --- Speech ---

func (h *Handlers) Speak(w http.ResponseWriter, r *http.Request) {
	var req NoteIDRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	if err := h.svc.Speak(r.Context(), req.NoteID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "speaking"})
}

func (h *Handlers) StopReading(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.StopReading(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// --- Export ---

func (h *Handlers) ExportNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req ExportRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	var dest string
	switch req.Format {
	case "mp3":
		dest, err = h.svc.ExportVoice(r.Context(), id, req.Dir)
	case "txt":
		dest, err = h.svc.ExportText(r.Context(), id, req.Dir)
	default:
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "api: unknown export format " + req.Format})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": dest})
}
