package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"srtpanel/internal/storage"
)

func loginAs(t *testing.T, handler *Handler, username, password string) (string, *http.Cookie) {
	t.Helper()
	payload, _ := json.Marshal(loginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	cookie := findCookie(t, rec.Result().Cookies(), sessionCookieName)
	return cookie.Value, cookie
}

func TestLoginIssuesSessionCookie(t *testing.T) {
	handler, _ := newTestHandler(t)

	token, cookie := loginAs(t, handler, storage.DefaultAdminUsername, storage.DefaultAdminPassword)
	if token == "" {
		t.Fatal("expected a session token")
	}
	if !cookie.HttpOnly {
		t.Fatal("expected HttpOnly cookie")
	}
	if cookie.MaxAge != 0 {
		t.Fatalf("expected session cookie without Max-Age, got %d", cookie.MaxAge)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	handler, _ := newTestHandler(t)

	payload, _ := json.Marshal(loginRequest{Username: storage.DefaultAdminUsername, Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid credentials") {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}
}

func TestSessionLifecycle(t *testing.T) {
	handler, _ := newTestHandler(t)
	token, _ := loginAs(t, handler, storage.DefaultAdminUsername, storage.DefaultAdminPassword)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.Session(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("session lookup: expected status 200, got %d", rec.Code)
	}
	var resp authResponse
	decodeBody(t, rec, &resp)
	if resp.Username != storage.DefaultAdminUsername {
		t.Fatalf("expected username %q, got %q", storage.DefaultAdminUsername, resp.Username)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.Session(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: expected status 204, got %d", rec.Code)
	}
	cleared := findCookie(t, rec.Result().Cookies(), sessionCookieName)
	if cleared.MaxAge != -1 {
		t.Fatalf("expected logout to clear the cookie, got MaxAge %d", cleared.MaxAge)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.Session(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", rec.Code)
	}
}

func TestChangePasswordRevokesOtherSessions(t *testing.T) {
	handler, _ := newTestHandler(t)
	tokenA, _ := loginAs(t, handler, storage.DefaultAdminUsername, storage.DefaultAdminPassword)
	tokenB, _ := loginAs(t, handler, storage.DefaultAdminUsername, storage.DefaultAdminPassword)

	payload, _ := json.Marshal(changePasswordRequest{
		OldPassword: storage.DefaultAdminPassword,
		NewPassword: "correct-horse",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/password", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+tokenA)
	rec := httptest.NewRecorder()
	handler.ChangePassword(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("change password: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	fresh := findCookie(t, rec.Result().Cookies(), sessionCookieName)

	for _, stale := range []string{tokenA, tokenB} {
		req = httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.Header.Set("Authorization", "Bearer "+stale)
		rec = httptest.NewRecorder()
		handler.Session(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected stale token to be revoked, got %d", rec.Code)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+fresh.Value)
	rec = httptest.NewRecorder()
	handler.Session(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected fresh token to remain valid, got %d", rec.Code)
	}

	loginAs(t, handler, storage.DefaultAdminUsername, "correct-horse")
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	handler, _ := newTestHandler(t)
	token, _ := loginAs(t, handler, storage.DefaultAdminUsername, storage.DefaultAdminPassword)

	payload, _ := json.Marshal(changePasswordRequest{OldPassword: "nope", NewPassword: "whatever"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/password", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ChangePassword(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func TestChangePasswordRejectsShortPassword(t *testing.T) {
	handler, _ := newTestHandler(t)
	token, _ := loginAs(t, handler, storage.DefaultAdminUsername, storage.DefaultAdminPassword)

	payload, _ := json.Marshal(changePasswordRequest{OldPassword: storage.DefaultAdminPassword, NewPassword: "short"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/password", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ChangePassword(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "at least 8 characters") {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}

	// The rejected change must not revoke the caller's session.
	req = httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.Session(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected session to survive, got %d", rec.Code)
	}
}

func TestLoginSessionCookieAttributes(t *testing.T) {
	cases := []struct {
		name         string
		configure    func(req *http.Request)
		policy       SessionCookiePolicy
		wantSecure   bool
		wantSameSite http.SameSite
	}{
		{
			name:         "insecure localhost defaults to non secure",
			configure:    func(req *http.Request) {},
			policy:       SessionCookiePolicy{},
			wantSecure:   false,
			wantSameSite: http.SameSiteStrictMode,
		},
		{
			name: "forwarded https enables secure cookie",
			configure: func(req *http.Request) {
				req.Header.Set("X-Forwarded-Proto", "https")
			},
			policy:       SessionCookiePolicy{},
			wantSecure:   true,
			wantSameSite: http.SameSiteStrictMode,
		},
		{
			name:      "secure policy forces secure flag",
			configure: func(req *http.Request) {},
			policy: SessionCookiePolicy{
				SameSite:   http.SameSiteLaxMode,
				SecureMode: SessionCookieSecureAlways,
			},
			wantSecure:   true,
			wantSameSite: http.SameSiteLaxMode,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler, _ := newTestHandler(t)
			handler.SessionCookiePolicy = tc.policy

			payload, _ := json.Marshal(loginRequest{
				Username: storage.DefaultAdminUsername,
				Password: storage.DefaultAdminPassword,
			})
			req := httptest.NewRequest(http.MethodPost, "http://localhost/api/auth/login", bytes.NewReader(payload))
			tc.configure(req)
			rec := httptest.NewRecorder()
			handler.Login(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}
			cookie := findCookie(t, rec.Result().Cookies(), sessionCookieName)
			if cookie.Secure != tc.wantSecure {
				t.Fatalf("expected Secure=%v, got %v", tc.wantSecure, cookie.Secure)
			}
			if cookie.SameSite != tc.wantSameSite {
				t.Fatalf("expected SameSite=%v, got %v", tc.wantSameSite, cookie.SameSite)
			}
		})
	}
}
