package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"srtpanel/internal/events"
	"srtpanel/internal/mediamtx"
	"srtpanel/internal/models"
	"srtpanel/internal/monitor"
)

// connStub serves /v3/srtconns endpoints with a fixed connection list.
type connStub struct {
	mu     sync.Mutex
	conns  []mediamtx.SRTConnection
	kicked []string
}

func (s *connStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case r.URL.Path == "/v3/srtconns/list":
			json.NewEncoder(w).Encode(mediamtx.SRTConnectionList{
				ItemCount: len(s.conns),
				PageCount: 1,
				Items:     s.conns,
			})
		case strings.HasPrefix(r.URL.Path, "/v3/srtconns/kick/"):
			id := strings.TrimPrefix(r.URL.Path, "/v3/srtconns/kick/")
			for _, conn := range s.conns {
				if conn.ID == id {
					s.kicked = append(s.kicked, id)
					w.WriteHeader(http.StatusOK)
					return
				}
			}
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"connection not found"}`))
		default:
			http.NotFound(w, r)
		}
	})
}

func newConnectionTestHandler(t *testing.T, stub *connStub) *Handler {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	handler, _ := newTestHandler(t)
	handler.Client.SetConfig(mediamtx.Config{BaseURL: srv.URL})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler.Monitor = monitor.New(handler.Client, handler.Bus, logger, monitor.WithInterval(time.Hour))

	snapshots, cancel := handler.Monitor.Subscribe()
	t.Cleanup(cancel)
	ctx, stop := context.WithCancel(context.Background())
	t.Cleanup(stop)
	handler.Monitor.Start(ctx)
	t.Cleanup(handler.Monitor.Stop)

	select {
	case <-snapshots:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial poll")
	}
	return handler
}

func testConnections() []mediamtx.SRTConnection {
	return []mediamtx.SRTConnection{
		{ID: "c-read", Path: "cam1", State: "read", RemoteAddr: "10.0.0.5:3901", Created: "2026-02-01T10:00:00Z"},
		{ID: "c-pub", Path: "cam2", State: "publish", Created: "2026-02-01T10:01:00Z"},
	}
}

func TestConnectionsFilterByDirection(t *testing.T) {
	handler := newConnectionTestHandler(t, &connStub{conns: testConnections()})

	req := httptest.NewRequest(http.MethodGet, "/api/connections?direction=in", nil)
	rec := httptest.NewRecorder()
	handler.Connections(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var snap monitor.Snapshot
	decodeBody(t, rec, &snap)
	if snap.Status != monitor.StatusPolling {
		t.Fatalf("expected polling status, got %q", snap.Status)
	}
	if len(snap.Connections) != 1 || snap.Connections[0].Direction != models.DirectionInbound {
		t.Fatalf("expected one inbound connection, got %+v", snap.Connections)
	}
	if snap.Connections[0].ID != "c-pub" {
		t.Fatalf("publisher should classify as inbound, got %+v", snap.Connections[0])
	}
}

func TestConnectionsRejectsUnknownDirection(t *testing.T) {
	handler := newConnectionTestHandler(t, &connStub{conns: testConnections()})

	req := httptest.NewRequest(http.MethodGet, "/api/connections?direction=sideways", nil)
	rec := httptest.NewRecorder()
	handler.Connections(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestKickConnectionRefreshesSnapshot(t *testing.T) {
	stub := &connStub{conns: testConnections()}
	handler := newConnectionTestHandler(t, stub)

	req := httptest.NewRequest(http.MethodPost, "/api/connections/c-read/kick", nil)
	rec := httptest.NewRecorder()
	handler.ConnectionByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	stub.mu.Lock()
	kicked := append([]string(nil), stub.kicked...)
	stub.mu.Unlock()
	if len(kicked) != 1 || kicked[0] != "c-read" {
		t.Fatalf("expected kick for c-read, got %v", kicked)
	}
}

func TestKickUnknownConnection(t *testing.T) {
	handler := newConnectionTestHandler(t, &connStub{conns: testConnections()})

	req := httptest.NewRequest(http.MethodPost, "/api/connections/ghost/kick", nil)
	rec := httptest.NewRecorder()
	handler.ConnectionByID(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestRestartReturnsAccepted(t *testing.T) {
	handler := newConnectionTestHandler(t, &connStub{conns: testConnections()})

	req := httptest.NewRequest(http.MethodPost, "/api/connections/restart", nil)
	rec := httptest.NewRecorder()
	handler.ConnectionByID(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rec.Code)
	}
}

func TestConnectionsFeedStreamsSnapshots(t *testing.T) {
	handler := newConnectionTestHandler(t, &connStub{conns: testConnections()})

	srv := httptest.NewServer(http.HandlerFunc(handler.ConnectionsFeed))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap monitor.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if len(snap.Connections) != 2 {
		t.Fatalf("expected 2 connections in the initial snapshot, got %d", len(snap.Connections))
	}

	// A restart re-polls, which pushes another snapshot to subscribers.
	handler.Monitor.Restart()
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read second snapshot: %v", err)
	}
	if snap.Status != monitor.StatusPolling {
		t.Fatalf("expected polling status, got %q", snap.Status)
	}
}

func TestConnectionsFeedClosesOnSessionRevocation(t *testing.T) {
	handler := newConnectionTestHandler(t, &connStub{conns: testConnections()})

	srv := httptest.NewServer(http.HandlerFunc(handler.ConnectionsFeed))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap monitor.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}

	handler.Bus.Publish(events.Event{Kind: events.SessionRevoked, Subject: "admin"})

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected close frame after revocation, got %v", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("expected policy violation close code, got %d", closeErr.Code)
	}
}
