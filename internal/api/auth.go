package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type contextKey string

const usernameContextKey contextKey = "authenticatedUsername"

// ContextWithUsername stores the authenticated account name in the context.
func ContextWithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameContextKey, username)
}

// UsernameFromContext retrieves the authenticated account name if present.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameContextKey).(string)
	return username, ok && username != ""
}

// ExtractToken pulls the session token from the Authorization header,
// falling back to the session cookie.
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// AuthenticateRequest validates the session token on the request and returns
// the account name it belongs to.
func (h *Handler) AuthenticateRequest(r *http.Request) (string, error) {
	token := ExtractToken(r)
	if token == "" {
		return "", fmt.Errorf("missing session token")
	}
	username, ok, err := h.sessionManager().Validate(token)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("invalid or expired session")
	}
	return username, nil
}

func (h *Handler) requireAuthenticated(w http.ResponseWriter, r *http.Request) (string, bool) {
	if username, ok := UsernameFromContext(r.Context()); ok {
		return username, true
	}
	username, err := h.AuthenticateRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return "", false
	}
	return username, true
}
