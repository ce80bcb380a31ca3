package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pkordes/bike-trips/internal/domain"
)

// Error codes carried in ErrorDetail.Code.
const (
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeInvalidState = "invalid_state"
	codeValidation   = "validation_error"
	codeTooLarge     = "body_too_large"
	codeInternal     = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// requestError rejects input that never reached the service layer
// (e.g. missing or malformed body, unparseable path id). A body cut off by
// http.MaxBytesReader is reported as 413.
func requestError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, codeTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusUnprocessableEntity, codeValidation, err.Error())
}

// serviceError maps a service failure onto a status and error body.
// Typed failures keep their documented message; anything else is logged and
// reported as an opaque 500.
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, domain.Message(err))
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, codeConflict, domain.Message(err))
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, codeInvalidState, domain.Message(err))
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, codeValidation, domain.Message(err))
	default:
		s.log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}
