package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/trbojevicstefan/taskwise"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps taskwise sentinel errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, taskwise.ErrJobNotFound),
		errors.Is(err, taskwise.ErrEventNotFound),
		errors.Is(err, taskwise.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, taskwise.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, taskwise.ErrInvalidPayload),
		errors.Is(err, taskwise.ErrUnknownEventType),
		errors.Is(err, taskwise.ErrUnknownJobType):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
