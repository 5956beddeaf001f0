package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/uos-liuyang/deepin-voice-note/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandlers(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notebooks.
	r.Get("/notebooks", h.ListNotebooks)
	r.Post("/notebooks", h.CreateNotebook)
	r.Get("/notebooks/{id}", h.GetNotebook)
	r.Put("/notebooks/{id}", h.RenameNotebook)
	r.Delete("/notebooks/{id}", h.DeleteNotebook)
	r.Get("/notebooks/{id}/notes", h.ListNotes)
	r.Post("/notebooks/{id}/notes", h.CreateNote)

	// Notes.
	r.Get("/notes/{id}", h.GetNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Put("/notes/{id}/name", h.RenameNote)
	r.Put("/notes/{id}/sticky", h.SetSticky)
	r.Post("/notes/{id}/export", h.ExportNote)
	r.Post("/notes/move", h.MoveNotes)
	r.Post("/notes/delete", h.DeleteNotes)

	// Search.
	r.Get("/search", h.Search)

	// Recording lifecycle.
	r.Get("/recording", h.RecordingState)
	r.Post("/recording/start", h.StartRecording)
	r.Post("/recording/stop", h.StopRecording)
	r.Post("/recording/save", h.SaveRecording)
	r.Post("/recording/discard", h.DiscardRecording)

	// Voice-to-text conversion.
	r.Post("/conversions", h.StartConversion)
	r.Get("/conversions/{id}", h.GetConversion)
	r.Post("/conversions/{id}/retry", h.RetryConversion)
	r.Post("/conversions/{id}/cancel", h.CancelConversion)

	// Text-to-speech.
	r.Post("/speech/start", h.Speak)
	r.Post("/speech/stop", h.StopReading)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
