package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"srtpanel/internal/auth"
	"srtpanel/internal/channels"
	"srtpanel/internal/events"
	"srtpanel/internal/mediamtx"
	"srtpanel/internal/monitor"
	"srtpanel/internal/observability/metrics"
	"srtpanel/internal/preview"
	"srtpanel/internal/storage"
)

type Handler struct {
	Store    storage.Repository
	Sessions *auth.SessionManager
	Client   *mediamtx.Client
	Channels *channels.Service
	Monitor  *monitor.Monitor
	Previews *preview.Service
	Bus      *events.Bus
	Metrics  *metrics.Recorder

	SessionCookiePolicy SessionCookiePolicy
}

func NewHandler(store storage.Repository, sessions *auth.SessionManager) *Handler {
	if sessions == nil {
		sessions = auth.NewSessionManager(0)
	}
	return &Handler{Store: store, Sessions: sessions}
}

func (h *Handler) sessionManager() *auth.SessionManager {
	if h.Sessions == nil {
		h.Sessions = auth.NewSessionManager(0)
	}
	return h.Sessions
}

func (h *Handler) recordSessionEvent(event string) {
	if h.Metrics != nil {
		h.Metrics.RecordSessionEvent(event)
	}
}

func (h *Handler) publish(kind events.Kind, subject string) {
	if h.Bus != nil {
		h.Bus.Publish(events.Event{Kind: kind, Subject: subject})
	}
}

// writeServiceError maps domain errors onto HTTP statuses: validation
// failures become 400, missing resources 404, an unconfigured or exhausted
// server 409, transport failures 502, and remote control-API rejections keep
// their original status and message.
func writeServiceError(w http.ResponseWriter, err error) {
	var statusErr *mediamtx.StatusError
	switch {
	case errors.Is(err, channels.ErrInvalidName),
		errors.Is(err, channels.ErrInvalidSource),
		errors.Is(err, channels.ErrSourceRequired),
		errors.Is(err, storage.ErrInvalidProfile):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, mediamtx.ErrNotFound),
		errors.Is(err, storage.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, mediamtx.ErrNotConfigured),
		errors.Is(err, channels.ErrTooManyCopies):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, mediamtx.ErrUnreachable):
		writeError(w, http.StatusBadGateway, err)
	case errors.As(err, &statusErr):
		writeError(w, statusErr.StatusCode, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type healthCheck struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make([]healthCheck, 0, 3)

	storeCheck := healthCheck{Component: "store", Status: "ok"}
	if h.Store == nil {
		storeCheck.Status = "disabled"
	} else if err := h.Store.Ping(ctx); err != nil {
		storeCheck.Status = "error"
		storeCheck.Detail = err.Error()
	}
	checks = append(checks, storeCheck)

	sessionCheck := healthCheck{Component: "sessions", Status: "ok"}
	if err := h.sessionManager().Ping(ctx); err != nil {
		sessionCheck.Status = "error"
		sessionCheck.Detail = err.Error()
	}
	checks = append(checks, sessionCheck)

	serverCheck := healthCheck{Component: "media-server", Status: "ok"}
	switch {
	case h.Client == nil || !h.Client.Configured():
		serverCheck.Status = "disabled"
		serverCheck.Detail = "no server configured"
	case h.Monitor != nil:
		snap := h.Monitor.Snapshot()
		if snap.Status == monitor.StatusSuspended {
			serverCheck.Status = "error"
			serverCheck.Detail = snap.LastError
		}
	}
	checks = append(checks, serverCheck)

	status := "ok"
	for _, check := range checks {
		switch strings.ToLower(check.Status) {
		case "ok", "disabled":
			continue
		default:
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   status,
		"services": checks,
	})
}
