package monitor

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"srtpanel/internal/events"
	"srtpanel/internal/mediamtx"
	"srtpanel/internal/models"
)

// Status reports the monitor's polling state.
type Status string

const (
	StatusStopped   Status = "stopped"
	StatusPolling   Status = "polling"
	StatusSuspended Status = "suspended"
)

const (
	defaultInterval         = 5 * time.Second
	defaultFailureThreshold = 3
)

// Snapshot is the monitor's view of the server's SRT connections at one
// point in time.
type Snapshot struct {
	Status      Status              `json:"status"`
	Failures    int                 `json:"failures"`
	LastError   string              `json:"lastError,omitempty"`
	UpdatedAt   time.Time           `json:"updatedAt"`
	Connections []models.Connection `json:"connections"`
}

type pollTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) pollTicker

// Recorder receives poll outcomes, typically backed by the metrics package.
type Recorder interface {
	RecordMonitorPoll(success bool)
	SetMonitorStatus(status string)
}

// Option adjusts monitor construction.
type Option func(*Monitor)

// WithInterval overrides the polling interval.
func WithInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithFailureThreshold overrides how many consecutive failures suspend
// polling.
func WithFailureThreshold(threshold int) Option {
	return func(m *Monitor) {
		if threshold > 0 {
			m.threshold = threshold
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(recorder Recorder) Option {
	return func(m *Monitor) {
		m.metrics = recorder
	}
}

func withTickerFactory(factory tickerFactory) Option {
	return func(m *Monitor) {
		if factory != nil {
			m.newTicker = factory
		}
	}
}

// Monitor polls the active server's SRT connections on a fixed interval and
// suspends itself after repeated failures so an unreachable server is not
// hammered forever. Switching server profiles resumes polling.
type Monitor struct {
	client    *mediamtx.Client
	bus       *events.Bus
	logger    *slog.Logger
	metrics   Recorder
	interval  time.Duration
	threshold int
	newTicker tickerFactory

	mu   sync.RWMutex
	snap Snapshot

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	resume      chan struct{}
}

// New constructs a stopped monitor. Call Start to begin polling.
func New(client *mediamtx.Client, bus *events.Bus, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		client:    client,
		bus:       bus,
		logger:    logger,
		interval:  defaultInterval,
		threshold: defaultFailureThreshold,
		newTicker: func(d time.Duration) pollTicker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
		subs:   make(map[int]chan Snapshot),
		resume: make(chan struct{}, 1),
		snap:   Snapshot{Status: StatusStopped, Connections: []models.Connection{}},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Start launches the polling goroutine. The first fetch happens immediately,
// before the first tick. Starting an already running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(runCtx)
}

// Stop halts polling and waits for the goroutine to exit. Safe to call more
// than once.
func (m *Monitor) Stop() {
	m.lifecycleMu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.lifecycleMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.setStatus(StatusStopped)
}

// Restart clears the failure counter and resumes polling after a suspension.
// Also triggers one immediate fetch.
func (m *Monitor) Restart() {
	select {
	case m.resume <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the current monitor view.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSnapshot(m.snap)
}

// Connections filters the current snapshot by direction: "in", "out" or ""
// for all. Filtering never triggers a refetch.
func (m *Monitor) Connections(direction string) []models.Connection {
	snap := m.Snapshot()
	if direction == "" {
		return snap.Connections
	}
	var want models.ConnectionDirection
	switch direction {
	case "in":
		want = models.DirectionInbound
	case "out":
		want = models.DirectionOutbound
	default:
		return snap.Connections
	}
	filtered := make([]models.Connection, 0, len(snap.Connections))
	for _, conn := range snap.Connections {
		if conn.Direction == want {
			filtered = append(filtered, conn)
		}
	}
	return filtered
}

// Kick force-disconnects one SRT connection and immediately re-polls so the
// list reflects the disconnect without waiting for the next tick.
func (m *Monitor) Kick(ctx context.Context, id string) error {
	if err := m.client.KickSRTConnection(ctx, id); err != nil {
		return err
	}
	m.poll(ctx)
	return nil
}

// Subscribe returns a channel receiving every snapshot the monitor publishes.
// The returned cancel func must be called to release the subscription.
func (m *Monitor) Subscribe() (<-chan Snapshot, func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan Snapshot, 4)
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	var busFeed <-chan events.Event
	if m.bus != nil {
		feed, cancelSub := m.bus.Subscribe(events.ServerChanged)
		defer cancelSub()
		busFeed = feed
	}

	m.resetFailures()
	m.poll(ctx)

	ticker := m.newTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if m.suspended() {
				continue
			}
			m.poll(ctx)
		case <-m.resume:
			m.resetFailures()
			m.poll(ctx)
		case _, ok := <-busFeed:
			if !ok {
				busFeed = nil
				continue
			}
			m.resetFailures()
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	list, err := m.client.ListSRTConnections(pollCtx)

	m.mu.Lock()
	if err != nil {
		m.snap.Failures++
		m.snap.LastError = err.Error()
		m.snap.Connections = []models.Connection{}
		m.snap.UpdatedAt = time.Now().UTC()
		if m.snap.Failures >= m.threshold && m.snap.Status != StatusSuspended {
			m.snap.Status = StatusSuspended
			m.logger.Warn("connection polling suspended",
				"failures", m.snap.Failures, "error", err)
		} else if m.snap.Status != StatusSuspended {
			m.snap.Status = StatusPolling
		}
	} else {
		m.snap.Failures = 0
		m.snap.LastError = ""
		m.snap.Status = StatusPolling
		m.snap.Connections = classifyConnections(list.Items)
		m.snap.UpdatedAt = time.Now().UTC()
	}
	snap := cloneSnapshot(m.snap)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordMonitorPoll(err == nil)
		m.metrics.SetMonitorStatus(string(snap.Status))
	}
	m.notify(snap)
}

func (m *Monitor) notify(snap Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (m *Monitor) suspended() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Status == StatusSuspended
}

func (m *Monitor) resetFailures() {
	m.mu.Lock()
	m.snap.Failures = 0
	m.snap.LastError = ""
	m.snap.Status = StatusPolling
	m.mu.Unlock()
}

func (m *Monitor) setStatus(status Status) {
	m.mu.Lock()
	m.snap.Status = status
	m.mu.Unlock()
}

func cloneSnapshot(snap Snapshot) Snapshot {
	out := snap
	out.Connections = append([]models.Connection(nil), snap.Connections...)
	return out
}

// classifyConnections sorts connections by path then id so grouped rendering
// is stable across polls, and tags each with a best-effort direction.
func classifyConnections(items []mediamtx.SRTConnection) []models.Connection {
	connections := make([]models.Connection, 0, len(items))
	for _, item := range items {
		conn := models.Connection{
			ID:         item.ID,
			Path:       item.Path,
			State:      item.State,
			RemoteAddr: item.RemoteAddr,
			Direction:  classifyDirection(item),
		}
		if item.Created != "" {
			if created, err := time.Parse(time.RFC3339, item.Created); err == nil {
				conn.Created = created
			}
		}
		connections = append(connections, conn)
	}
	sort.Slice(connections, func(i, j int) bool {
		if connections[i].Path != connections[j].Path {
			return connections[i].Path < connections[j].Path
		}
		return connections[i].ID < connections[j].ID
	})
	return connections
}

// classifyDirection is a heuristic: MediaMTX does not report direction
// explicitly, so the state text is matched first and the remote address
// decides the rest. A publishing peer sends media into the server, a
// reading peer pulls it out.
func classifyDirection(conn mediamtx.SRTConnection) models.ConnectionDirection {
	state := strings.ToLower(conn.State)
	if strings.Contains(state, "publish") {
		return models.DirectionInbound
	}
	if strings.Contains(state, "read") {
		return models.DirectionOutbound
	}
	if strings.TrimSpace(conn.RemoteAddr) != "" {
		return models.DirectionInbound
	}
	return models.DirectionOutbound
}
