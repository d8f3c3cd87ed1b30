package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"srtpanel/internal/auth"
	"srtpanel/internal/channels"
	"srtpanel/internal/events"
	"srtpanel/internal/mediamtx"
	"srtpanel/internal/storage"
)

func newTestHandler(t *testing.T) (*Handler, *storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "panel.json"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(store, auth.NewSessionManager(0))
	handler.Client = mediamtx.NewClient()
	handler.Bus = events.New(8)
	handler.Channels = channels.NewService(handler.Client, handler.Bus, logger)
	return handler, store
}

func findCookie(t *testing.T, cookies []*http.Cookie, name string) *http.Cookie {
	t.Helper()
	for _, cookie := range cookies {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("cookie %s not found", name)
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthReportsOKWithoutServer(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var payload struct {
		Status   string        `json:"status"`
		Services []healthCheck `json:"services"`
	}
	decodeBody(t, rec, &payload)
	if payload.Status != "ok" {
		t.Fatalf("expected ok status, got %q", payload.Status)
	}
	for _, check := range payload.Services {
		if check.Component == "media-server" && check.Status != "disabled" {
			t.Fatalf("expected media-server disabled without active profile, got %q", check.Status)
		}
	}
}
