package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewRespectsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Writer: &buf})

	logger.Info("should be filtered")
	logger.Warn("should appear", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single JSON entry, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "should appear" {
		t.Fatalf("unexpected message %v", entry["msg"])
	}
}

func TestRequestIDContextRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-123")
	id, ok := RequestIDFromContext(ctx)
	if !ok || id != "req-123" {
		t.Fatalf("unexpected id %q ok=%v", id, ok)
	}
	if _, ok := RequestIDFromContext(context.Background()); ok {
		t.Fatal("empty context must not yield an id")
	}
	if ctx := ContextWithRequestID(context.Background(), "  "); ctx != context.Background() {
		t.Fatal("blank ids must not be stored")
	}
}

func TestRequestLoggerEmitsStatusAndPath(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf})
	middleware := RequestLogger(RequestLoggerConfig{Logger: logger})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/profiles", nil)
	request = request.WithContext(ContextWithRequestID(request.Context(), "req-9"))
	handler.ServeHTTP(recorder, request)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["status"] != float64(http.StatusCreated) {
		t.Fatalf("unexpected status %v", entry["status"])
	}
	if entry["path"] != "/api/profiles" {
		t.Fatalf("unexpected path %v", entry["path"])
	}
	if entry["request_id"] != "req-9" {
		t.Fatalf("unexpected request_id %v", entry["request_id"])
	}
}
