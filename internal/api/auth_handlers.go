package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"srtpanel/internal/events"
	"srtpanel/internal/storage"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type authResponse struct {
	Username  string `json:"username"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func newAuthResponse(username string, expiresAt time.Time) authResponse {
	resp := authResponse{Username: username}
	if !expiresAt.IsZero() {
		resp.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	record, err := h.Store.Authenticate(req.Username, req.Password)
	if err != nil {
		h.recordSessionEvent("login_failure")
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid credentials"))
		return
	}

	token, expiresAt, err := h.sessionManager().Create(record.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.recordSessionEvent("login")
	h.setSessionCookie(w, r, token, expiresAt)
	writeJSON(w, http.StatusOK, newAuthResponse(record.Username, expiresAt))
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		token := ExtractToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("missing session token"))
			return
		}
		username, ok, err := h.sessionManager().Validate(token)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid or expired session"))
			return
		}
		writeJSON(w, http.StatusOK, authResponse{Username: username})
	case http.MethodDelete:
		token := ExtractToken(r)
		if token == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("missing session token"))
			return
		}
		if err := h.sessionManager().Revoke(token); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		h.recordSessionEvent("logout")
		h.ClearSessionCookie(w, r)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

// ChangePassword rotates the account password. All existing sessions are
// revoked and a fresh one is issued so the caller stays signed in.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	username, ok := h.requireAuthenticated(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("new password is required"))
		return
	}

	if err := h.Store.ChangePassword(username, req.OldPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, storage.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, storage.ErrInvalidCredentials):
			writeError(w, http.StatusForbidden, fmt.Errorf("current password is incorrect"))
		case errors.Is(err, storage.ErrAccountNotFound):
			writeError(w, http.StatusNotFound, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	if err := h.sessionManager().RevokeAll(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.publish(events.SessionRevoked, username)
	h.recordSessionEvent("password_change")

	token, expiresAt, err := h.sessionManager().Create(username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.setSessionCookie(w, r, token, expiresAt)
	writeJSON(w, http.StatusOK, newAuthResponse(username, expiresAt))
}
