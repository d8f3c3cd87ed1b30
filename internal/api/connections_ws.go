package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"srtpanel/internal/events"
)

const (
	feedWriteTimeout = 10 * time.Second
	feedPingInterval = 30 * time.Second
)

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// ConnectionsFeed upgrades to a WebSocket and streams monitor snapshots as
// they are published. The current snapshot is sent immediately so a client
// never renders an empty view while waiting for the next poll.
func (h *Handler) ConnectionsFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	if h.Monitor == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("connection monitor unavailable"))
		return
	}

	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		return
	}
	defer conn.Close()

	snapshots, cancel := h.Monitor.Subscribe()
	defer cancel()

	// A nil channel blocks forever, so feeds without a bus simply never see
	// revocations.
	var revocations <-chan events.Event
	if h.Bus != nil {
		ch, cancelRevocations := h.Bus.Subscribe(events.SessionRevoked)
		defer cancelRevocations()
		revocations = ch
	}

	// Reader goroutine: the panel never sends application messages, but the
	// read loop is required to process close and pong control frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writeSnapshot := func(payload interface{}) error {
		conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		return conn.WriteJSON(payload)
	}
	if err := writeSnapshot(h.Monitor.Snapshot()); err != nil {
		return
	}

	pings := time.NewTicker(feedPingInterval)
	defer pings.Stop()

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := writeSnapshot(snap); err != nil {
				return
			}
		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-revocations:
			// A password change revokes every session; close the feed so
			// the client re-authenticates instead of streaming to a dead
			// session.
			conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session revoked"))
			return
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
