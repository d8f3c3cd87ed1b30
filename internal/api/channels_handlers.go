package api

import (
	"fmt"
	"net/http"
	"strings"

	"srtpanel/internal/channels"
	"srtpanel/internal/models"
)

type createChannelRequest struct {
	Name        string `json:"name"`
	Mode        string `json:"mode"`
	Source      string `json:"source"`
	PublishUser string `json:"publishUser"`
	PublishPass string `json:"publishPass"`
	ReadUser    string `json:"readUser"`
	ReadPass    string `json:"readPass"`
}

type patchChannelRequest struct {
	Mode        *string `json:"mode"`
	Source      *string `json:"source"`
	PublishUser *string `json:"publishUser"`
	PublishPass *string `json:"publishPass"`
	ReadUser    *string `json:"readUser"`
	ReadPass    *string `json:"readPass"`
}

func (h *Handler) ChannelsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.Channels.List(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"channels": list})
	case http.MethodPost:
		var req createChannelRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		channel, err := h.Channels.Create(r.Context(), channels.Params{
			Name:        req.Name,
			Mode:        models.ChannelMode(req.Mode),
			Source:      req.Source,
			PublishUser: req.PublishUser,
			PublishPass: req.PublishPass,
			ReadUser:    req.ReadUser,
			ReadPass:    req.ReadPass,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, channel)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) ChannelByName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/channels/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("channel name is required"))
		return
	}
	name := parts[0]

	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			channel, err := h.Channels.Get(r.Context(), name)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, channel)
		case http.MethodPatch:
			h.patchChannel(w, r, name)
		case http.MethodDelete:
			// Deletion is destructive on the remote server, so the UI's
			// confirmation dialog is enforced here as well.
			if r.URL.Query().Get("confirm") != "true" {
				writeError(w, http.StatusBadRequest, fmt.Errorf("channel deletion requires confirm=true"))
				return
			}
			if err := h.Channels.Delete(r.Context(), name); err != nil {
				writeServiceError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", "GET, PATCH, DELETE")
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		}
	case 2:
		if parts[1] != "duplicate" {
			writeError(w, http.StatusNotFound, fmt.Errorf("unknown channel path"))
			return
		}
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		channel, err := h.Channels.Duplicate(r.Context(), name)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, channel)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown channel path"))
	}
}

func (h *Handler) patchChannel(w http.ResponseWriter, r *http.Request, name string) {
	var req patchChannelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	existing, err := h.Channels.Get(r.Context(), name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	params := channels.Params{
		Name:        name,
		Mode:        existing.Mode,
		Source:      existing.Source,
		PublishUser: existing.PublishUser,
		PublishPass: existing.PublishPass,
		ReadUser:    existing.ReadUser,
		ReadPass:    existing.ReadPass,
	}
	if req.Mode != nil {
		params.Mode = models.ChannelMode(*req.Mode)
	}
	if req.Source != nil {
		params.Source = *req.Source
		if req.Mode == nil {
			// A source change re-derives the mode instead of keeping a
			// stale listener/caller classification.
			params.Mode = ""
		}
	}
	if req.PublishUser != nil {
		params.PublishUser = *req.PublishUser
	}
	if req.PublishPass != nil {
		params.PublishPass = *req.PublishPass
	}
	if req.ReadUser != nil {
		params.ReadUser = *req.ReadUser
	}
	if req.ReadPass != nil {
		params.ReadPass = *req.ReadPass
	}
	channel, err := h.Channels.Update(r.Context(), name, params)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channel)
}
