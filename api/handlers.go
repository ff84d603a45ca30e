package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trbojevicstefan/taskwise/id"
)

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health(r.Context()); err != nil {
			a.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) queueSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := a.eng.Queue().Snapshot(r.Context())
	if err != nil {
		a.writeError(w, r, fmt.Errorf("queue snapshot: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid job ID: %v", err)})
		return
	}

	j, err := a.eng.GetJob(r.Context(), jobID, r.Header.Get(UserHeader))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid event ID: %v", err)})
		return
	}

	evt, err := a.eng.GetEvent(r.Context(), eventID, r.Header.Get(UserHeader))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

// dispatchEvent re-runs an event's handler unless it was already handled.
func (a *API) dispatchEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid event ID: %v", err)})
		return
	}

	out, err := a.eng.Dispatch(r.Context(), eventID, r.Header.Get(UserHeader))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
