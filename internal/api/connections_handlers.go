package api

import (
	"fmt"
	"net/http"
	"strings"
)

func (h *Handler) Connections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if h.Monitor == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("connection monitor unavailable"))
		return
	}
	direction := r.URL.Query().Get("direction")
	switch direction {
	case "", "in", "out":
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("direction must be in or out"))
		return
	}
	snap := h.Monitor.Snapshot()
	snap.Connections = h.Monitor.Connections(direction)
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) ConnectionByID(w http.ResponseWriter, r *http.Request) {
	if h.Monitor == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("connection monitor unavailable"))
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/connections/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("connection id is required"))
		return
	}

	switch {
	case len(parts) == 1 && parts[0] == "ws":
		h.ConnectionsFeed(w, r)
	case len(parts) == 1 && parts[0] == "restart":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		h.Monitor.Restart()
		writeJSON(w, http.StatusAccepted, h.Monitor.Snapshot())
	case len(parts) == 2 && parts[1] == "kick":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		if err := h.Monitor.Kick(r.Context(), parts[0]); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h.Monitor.Snapshot())
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown connection path"))
	}
}
