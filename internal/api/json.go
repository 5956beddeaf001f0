package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// writeError maps the error taxonomy onto HTTP statuses. Retryable marks
// failures where an explicit retry affordance makes sense (network);
// TooLong and DeviceUnavailable are terminal.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errResponse{Error: "not found"})
	case errors.Is(err, apperr.ErrBusy):
		writeJSON(w, http.StatusConflict, errResponse{Error: err.Error()})
	case errors.Is(err, apperr.ErrTooLong):
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{Error: err.Error()})
	case errors.Is(err, apperr.ErrInvalidState):
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{Error: err.Error()})
	case errors.Is(err, apperr.ErrDeviceUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errResponse{Error: err.Error()})
	case errors.Is(err, apperr.ErrNetwork):
		writeJSON(w, http.StatusBadGateway, errResponse{Error: err.Error(), Retryable: true})
	default:
		slog.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "internal error"})
	}
}
