package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"srtpanel/internal/api"
	"srtpanel/internal/auth"
	"srtpanel/internal/channels"
	"srtpanel/internal/events"
	"srtpanel/internal/mediamtx"
	"srtpanel/internal/storage"
)

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "panel.json"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := api.NewHandler(store, auth.NewSessionManager(0))
	handler.Client = mediamtx.NewClient()
	handler.Bus = events.New(8)
	handler.Channels = channels.NewService(handler.Client, handler.Bus, logger)

	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func login(t *testing.T, ts *httptest.Server) *http.Cookie {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"username": storage.DefaultAdminUsername,
		"password": storage.DefaultAdminPassword,
	})
	res, err := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: expected status 200, got %d", res.StatusCode)
	}
	for _, cookie := range res.Cookies() {
		if cookie.Name == "srtpanel_session" {
			return cookie
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func TestAuthGateBlocksAPIWithoutSession(t *testing.T) {
	ts := newTestServer(t, Config{})

	res, err := http.Get(ts.URL + "/api/profiles")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", res.StatusCode)
	}
}

func TestAuthGateAdmitsSessionCookie(t *testing.T) {
	ts := newTestServer(t, Config{})
	cookie := login(t, ts)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/profiles", nil)
	req.AddCookie(cookie)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.StatusCode)
	}
}

func TestHealthAndMetricsBypassAuth(t *testing.T) {
	ts := newTestServer(t, Config{})

	for _, path := range []string{"/healthz", "/metrics"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("expected %s to bypass auth, got %d", path, res.StatusCode)
		}
	}
}

func TestLoginThrottlePerIP(t *testing.T) {
	ts := newTestServer(t, Config{
		RateLimit: RateLimitConfig{LoginLimit: 2, LoginWindow: time.Minute},
	})

	attempt := func() int {
		body := bytes.NewReader([]byte(`{"username":"admin","password":"wrong"}`))
		res, err := http.Post(ts.URL+"/api/auth/login", "application/json", body)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		res.Body.Close()
		return res.StatusCode
	}

	if code := attempt(); code != http.StatusUnauthorized {
		t.Fatalf("first attempt: expected 401, got %d", code)
	}
	if code := attempt(); code != http.StatusUnauthorized {
		t.Fatalf("second attempt: expected 401, got %d", code)
	}
	if code := attempt(); code != http.StatusTooManyRequests {
		t.Fatalf("third attempt: expected 429, got %d", code)
	}
}

func TestSPAFallbackServesIndex(t *testing.T) {
	ts := newTestServer(t, Config{})

	res, err := http.Get(ts.URL + "/servers/some/client/route")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected html response, got %q", ct)
	}
	body, _ := io.ReadAll(res.Body)
	if !bytes.Contains(body, []byte("SRT Panel")) {
		t.Fatal("expected the control panel index page")
	}
}

func TestRequestIDEchoedAndGenerated(t *testing.T) {
	ts := newTestServer(t, Config{})

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	res.Body.Close()
	if got := res.Header.Get("X-Request-Id"); got != "abc-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}

	res, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	res.Body.Close()
	if res.Header.Get("X-Request-Id") == "" {
		t.Fatal("expected a generated request id")
	}
}
