package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory counters and gauges for HTTP requests,
// connection-monitor polls, preview probes and session activity, and renders
// them in Prometheus text format.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	pollCount       map[string]uint64
	probeCount      map[string]uint64
	sessionEvents   map[string]uint64
	monitorStatus   string
	activePlayers   atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder ready for use.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		pollCount:       make(map[string]uint64),
		probeCount:      make(map[string]uint64),
		sessionEvents:   make(map[string]uint64),
		monitorStatus:   "stopped",
	}
}

// Default returns the shared Recorder used when no custom instance is wired.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates request count and cumulative duration by method,
// normalized path and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// RecordMonitorPoll counts one connection-monitor poll by outcome.
func (r *Recorder) RecordMonitorPoll(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	r.mu.Lock()
	r.pollCount[outcome]++
	r.mu.Unlock()
}

// SetMonitorStatus records the monitor's current state for export.
func (r *Recorder) SetMonitorStatus(status string) {
	normalized := strings.ToLower(strings.TrimSpace(status))
	if normalized == "" {
		normalized = "unknown"
	}
	r.mu.Lock()
	r.monitorStatus = normalized
	r.mu.Unlock()
}

// RecordPreviewProbe counts one playlist probe by signal outcome.
func (r *Recorder) RecordPreviewProbe(signal string) {
	normalized := strings.ToLower(strings.TrimSpace(signal))
	if normalized == "" {
		normalized = "unknown"
	}
	r.mu.Lock()
	r.probeCount[normalized]++
	r.mu.Unlock()
}

// RecordSessionEvent counts session lifecycle events such as "login",
// "logout" or "rejected".
func (r *Recorder) RecordSessionEvent(event string) {
	normalized := strings.ToLower(strings.TrimSpace(event))
	if normalized == "" {
		normalized = "unknown"
	}
	r.mu.Lock()
	r.sessionEvents[normalized]++
	r.mu.Unlock()
}

// PlayerStarted increments the active preview player gauge.
func (r *Recorder) PlayerStarted() {
	r.activePlayers.Add(1)
}

// PlayerStopped decrements the active preview player gauge without letting it
// go negative.
func (r *Recorder) PlayerStopped() {
	for {
		current := r.activePlayers.Load()
		if current <= 0 {
			return
		}
		if r.activePlayers.CompareAndSwap(current, current-1) {
			return
		}
	}
}

// ActivePlayers exposes the current preview player gauge.
func (r *Recorder) ActivePlayers() int64 {
	return r.activePlayers.Load()
}

// PollCounts returns copies of the poll outcome counters, for tests.
func (r *Recorder) PollCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]uint64, len(r.pollCount))
	for k, v := range r.pollCount {
		out[k] = v
	}
	return out
}

// Reset clears all counters and gauges. Intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.pollCount = make(map[string]uint64)
	r.probeCount = make(map[string]uint64)
	r.sessionEvents = make(map[string]uint64)
	r.monitorStatus = "stopped"
	r.activePlayers.Store(0)
}

// Handler exposes the Recorder as an http.Handler writing Prometheus text
// exposition data.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the metrics with sorted label sets for stable scrapes.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()

	fmt.Fprintln(w, "# HELP srtpanel_http_requests_total Total number of HTTP requests processed by the panel")
	fmt.Fprintln(w, "# TYPE srtpanel_http_requests_total counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "srtpanel_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP srtpanel_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE srtpanel_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "srtpanel_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	fmt.Fprintln(w, "# HELP srtpanel_monitor_polls_total Connection monitor polls by outcome")
	fmt.Fprintln(w, "# TYPE srtpanel_monitor_polls_total counter")
	for _, outcome := range sortedKeys(r.pollCount) {
		fmt.Fprintf(w, "srtpanel_monitor_polls_total{outcome=\"%s\"} %d\n", outcome, r.pollCount[outcome])
	}

	fmt.Fprintln(w, "# HELP srtpanel_monitor_status Connection monitor state (1=active state)")
	fmt.Fprintln(w, "# TYPE srtpanel_monitor_status gauge")
	for _, status := range []string{"polling", "suspended", "stopped"} {
		value := 0
		if r.monitorStatus == status {
			value = 1
		}
		fmt.Fprintf(w, "srtpanel_monitor_status{state=\"%s\"} %d\n", status, value)
	}

	fmt.Fprintln(w, "# HELP srtpanel_preview_probes_total Preview playlist probes by signal")
	fmt.Fprintln(w, "# TYPE srtpanel_preview_probes_total counter")
	for _, signal := range sortedKeys(r.probeCount) {
		fmt.Fprintf(w, "srtpanel_preview_probes_total{signal=\"%s\"} %d\n", signal, r.probeCount[signal])
	}

	fmt.Fprintln(w, "# HELP srtpanel_preview_active_players Current number of live preview players")
	fmt.Fprintln(w, "# TYPE srtpanel_preview_active_players gauge")
	fmt.Fprintf(w, "srtpanel_preview_active_players %d\n", r.activePlayers.Load())

	fmt.Fprintln(w, "# HELP srtpanel_session_events_total Session lifecycle events by type")
	fmt.Fprintln(w, "# TYPE srtpanel_session_events_total counter")
	for _, event := range sortedKeys(r.sessionEvents) {
		fmt.Fprintf(w, "srtpanel_session_events_total{event=\"%s\"} %d\n", event, r.sessionEvents[event])
	}
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// normalizePath collapses identifier-looking path segments so metrics stay
// low-cardinality: channel names, profile IDs and connection IDs all become
// ":id".
func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

// ObserveRequest records on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
