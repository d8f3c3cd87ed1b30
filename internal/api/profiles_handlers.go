package api

import (
	"fmt"
	"net/http"
	"strings"

	"srtpanel/internal/events"
	"srtpanel/internal/mediamtx"
	"srtpanel/internal/models"
	"srtpanel/internal/storage"
)

type upsertProfileRequest struct {
	Name     *string `json:"name"`
	URL      *string `json:"url"`
	Username *string `json:"username"`
	Password *string `json:"password"`
}

type testProfileRequest struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// profileResponse never echoes the stored password; the panel server talks
// to the media server on the browser's behalf.
type profileResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Username    string `json:"username,omitempty"`
	HasPassword bool   `json:"hasPassword"`
	Active      bool   `json:"active"`
}

func newProfileResponse(profile models.ServerProfile, active bool) profileResponse {
	return profileResponse{
		ID:          profile.ID,
		Name:        profile.Name,
		URL:         profile.URL,
		Username:    profile.Username,
		HasPassword: profile.Password != "",
		Active:      active,
	}
}

func (h *Handler) Profiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		profiles := h.Store.ListProfiles()
		active, _ := h.Store.GetActiveProfile()
		payload := make([]profileResponse, 0, len(profiles))
		for _, profile := range profiles {
			payload = append(payload, newProfileResponse(profile, profile.ID == active.ID))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"profiles":        payload,
			"activeProfileId": active.ID,
		})
	case http.MethodPost:
		var req upsertProfileRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		params := storage.ProfileParams{
			Name:     stringValue(req.Name),
			URL:      stringValue(req.URL),
			Username: stringValue(req.Username),
			Password: stringValue(req.Password),
		}
		profile, activated, err := h.Store.AddProfile(params)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if activated {
			h.applyActiveProfile(profile)
		}
		writeJSON(w, http.StatusCreated, newProfileResponse(profile, activated))
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) ProfileByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/profiles/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("profile id is required"))
		return
	}

	if parts[0] == "test" {
		if len(parts) != 1 {
			writeError(w, http.StatusNotFound, fmt.Errorf("unknown profile path"))
			return
		}
		h.testProfile(w, r)
		return
	}

	id := parts[0]
	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			profile, exists := h.Store.GetProfile(id)
			if !exists {
				writeError(w, http.StatusNotFound, fmt.Errorf("profile %s not found", id))
				return
			}
			active, _ := h.Store.GetActiveProfile()
			writeJSON(w, http.StatusOK, newProfileResponse(profile, profile.ID == active.ID))
		case http.MethodPut:
			h.updateProfile(w, r, id)
		case http.MethodDelete:
			h.deleteProfile(w, r, id)
		default:
			w.Header().Set("Allow", "GET, PUT, DELETE")
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		}
	case 2:
		if parts[1] != "activate" {
			writeError(w, http.StatusNotFound, fmt.Errorf("unknown profile path"))
			return
		}
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		profile, err := h.Store.SetActiveProfile(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		h.applyActiveProfile(profile)
		writeJSON(w, http.StatusOK, newProfileResponse(profile, true))
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown profile path"))
	}
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request, id string) {
	var req upsertProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	existing, exists := h.Store.GetProfile(id)
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("profile %s not found", id))
		return
	}
	// Omitted fields keep their stored values, so the form can leave the
	// password untouched without ever seeing it.
	params := storage.ProfileParams{
		Name:     existing.Name,
		URL:      existing.URL,
		Username: existing.Username,
		Password: existing.Password,
	}
	if req.Name != nil {
		params.Name = *req.Name
	}
	if req.URL != nil {
		params.URL = *req.URL
	}
	if req.Username != nil {
		params.Username = *req.Username
	}
	if req.Password != nil {
		params.Password = *req.Password
	}
	profile, err := h.Store.UpdateProfile(id, params)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	active, _ := h.Store.GetActiveProfile()
	isActive := profile.ID == active.ID
	if isActive {
		h.applyActiveProfile(profile)
	}
	writeJSON(w, http.StatusOK, newProfileResponse(profile, isActive))
}

func (h *Handler) deleteProfile(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.Store.DeleteProfile(id); err != nil {
		writeServiceError(w, err)
		return
	}
	if successor, exists := h.Store.GetActiveProfile(); exists {
		h.applyActiveProfile(successor)
	} else if h.Client != nil {
		h.Client.ClearConfig()
		h.publish(events.ServerChanged, "")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) testProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	var req testProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("url is required"))
		return
	}
	if h.Client == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("media server client unavailable"))
		return
	}
	cfg := mediamtx.Config{BaseURL: req.URL, Username: req.Username, Password: req.Password}
	if err := h.Client.TestConnection(r.Context(), cfg); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// applyActiveProfile points the media server client at the given profile and
// announces the switch so the monitor resumes polling.
func (h *Handler) applyActiveProfile(profile models.ServerProfile) {
	if h.Client != nil {
		h.Client.SetConfig(mediamtx.Config{
			BaseURL:  profile.URL,
			Username: profile.Username,
			Password: profile.Password,
		})
	}
	h.publish(events.ServerChanged, profile.ID)
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
