package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"srtpanel/internal/channels"
	"srtpanel/internal/mediamtx"
)

type setPreviewRequest struct {
	Visible *bool `json:"visible"`
}

type setPreviewsRequest struct {
	Channels []string `json:"channels"`
	Visible  *bool    `json:"visible"`
}

type probeAllRequest struct {
	Channels []string `json:"channels"`
}

func (h *Handler) PreviewsCollection(w http.ResponseWriter, r *http.Request) {
	if h.Previews == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("preview service unavailable"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.writePreviewStates(w)
	case http.MethodPut:
		var req setPreviewsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.Visible == nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("visible is required"))
			return
		}
		for _, name := range req.Channels {
			if !channels.ValidName(name) {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid channel name %q", name))
				return
			}
		}
		if err := h.Previews.SetAllVisible(req.Channels, *req.Visible); err != nil {
			writeServiceError(w, err)
			return
		}
		h.writePreviewStates(w)
	default:
		w.Header().Set("Allow", "GET, PUT")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) PreviewByChannel(w http.ResponseWriter, r *http.Request) {
	if h.Previews == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("preview service unavailable"))
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/previews/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("channel name is required"))
		return
	}

	if parts[0] == "probe" && len(parts) == 1 {
		h.probeAll(w, r)
		return
	}

	name := parts[0]
	if !channels.ValidName(name) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid channel name %q", name))
		return
	}

	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			h.previewInfo(w, name)
		case http.MethodPut:
			var req setPreviewRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if req.Visible == nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("visible is required"))
				return
			}
			if err := h.Previews.SetVisible(name, *req.Visible); err != nil {
				writeServiceError(w, err)
				return
			}
			h.previewInfo(w, name)
		default:
			w.Header().Set("Allow", "GET, PUT")
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		}
	case 2:
		if parts[1] != "probe" {
			writeError(w, http.StatusNotFound, fmt.Errorf("unknown preview path"))
			return
		}
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		result := h.Previews.Probe(r.Context(), name)
		writeJSON(w, http.StatusOK, result)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown preview path"))
	}
}

func (h *Handler) previewInfo(w http.ResponseWriter, name string) {
	payload := map[string]interface{}{
		"channel": name,
		"visible": h.Previews.Visible(name),
	}
	url, err := h.Previews.PlaybackURL(name)
	switch {
	case err == nil:
		payload["url"] = url
	case errors.Is(err, mediamtx.ErrNotConfigured):
		// No active server yet; the preview state is still meaningful.
	default:
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// probeAll checks every requested channel concurrently. An empty channel
// list probes everything configured on the active server.
func (h *Handler) probeAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	var req probeAllRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	names := req.Channels
	if len(names) == 0 {
		if h.Channels == nil {
			writeError(w, http.StatusServiceUnavailable, fmt.Errorf("channel service unavailable"))
			return
		}
		list, err := h.Channels.List(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		for _, channel := range list {
			names = append(names, channel.Name)
		}
	}
	for _, name := range names {
		if !channels.ValidName(name) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid channel name %q", name))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": h.Previews.ProbeAll(r.Context(), names),
	})
}

func (h *Handler) writePreviewStates(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"states":        h.Previews.States(),
		"activePlayers": h.Previews.ActivePlayers(),
	})
}
