package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/speechset/speechset/internal/ai"
	"github.com/speechset/speechset/internal/dataset"
	"github.com/speechset/speechset/internal/format"
	"github.com/speechset/speechset/internal/library"
	"github.com/speechset/speechset/internal/resilience"
	"github.com/speechset/speechset/pkg/provider/textgen"
	"github.com/speechset/speechset/pkg/provider/transcribe"
)

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v with the given status code. On encoding failure it
// falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

// writeError maps err onto an HTTP status and writes the JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor translates the domain error taxonomy into HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dataset.ErrParse),
		errors.Is(err, format.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, dataset.ErrNoFiles),
		errors.Is(err, dataset.ErrNoTranscripts),
		errors.Is(err, ai.ErrNoTranscript):
		return http.StatusConflict
	case errors.Is(err, ai.ErrNotConfigured):
		return http.StatusPreconditionFailed
	case errors.Is(err, transcribe.ErrUnavailable),
		errors.Is(err, textgen.ErrUnavailable),
		errors.Is(err, resilience.ErrAllFailed),
		errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
