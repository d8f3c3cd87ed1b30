package preview

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"srtpanel/internal/mediamtx"
	"srtpanel/internal/storage"
)

const (
	defaultRetryDelay  = 3 * time.Second
	defaultProbeLimit  = 4
	manifestProbeBytes = 64 * 1024
)

// Signal is the outcome of probing a channel's HLS playlist.
type Signal string

const (
	SignalOK   Signal = "ok"
	SignalNone Signal = "no-signal"
)

// ProbeResult describes one channel probe.
type ProbeResult struct {
	Channel string `json:"channel"`
	Signal  Signal `json:"signal"`
	Detail  string `json:"detail,omitempty"`
	URL     string `json:"url"`
}

// Recorder receives probe outcomes and player gauge changes, typically backed
// by the metrics package.
type Recorder interface {
	RecordPreviewProbe(signal string)
	PlayerStarted()
	PlayerStopped()
}

// Option adjusts service construction.
type Option func(*Service)

// WithRecorder attaches a metrics recorder.
func WithRecorder(recorder Recorder) Option {
	return func(s *Service) {
		s.metrics = recorder
	}
}

// WithHTTPClient overrides the probing HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *Service) {
		if httpClient != nil {
			s.httpClient = httpClient
		}
	}
}

// WithHLSPort overrides the HLS port substituted into playback URLs.
func WithHLSPort(port int) Option {
	return func(s *Service) {
		if port > 0 {
			s.hlsPort = port
		}
	}
}

// WithRetryDelay overrides the delay before the single network-error retry.
func WithRetryDelay(delay time.Duration) Option {
	return func(s *Service) {
		if delay >= 0 {
			s.retryDelay = delay
		}
	}
}

// Service owns stream preview state: per-channel visibility (persisted),
// playlist probing and the set of channels with a live player session.
type Service struct {
	store      storage.Repository
	httpClient *http.Client
	logger     *slog.Logger
	metrics    Recorder
	hlsPort    int
	retryDelay time.Duration
	probeLimit int

	mu      sync.Mutex
	players map[string]struct{}
}

// NewService wires a preview service over the shared datastore.
func NewService(store storage.Repository, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		hlsPort:    DefaultHLSPort,
		retryDelay: defaultRetryDelay,
		probeLimit: defaultProbeLimit,
		players:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// HLSPort reports the configured HLS port.
func (s *Service) HLSPort() int {
	return s.hlsPort
}

// PlaybackURL resolves the HLS playlist URL for a channel against the active
// server profile.
func (s *Service) PlaybackURL(channel string) (string, error) {
	profile, ok := s.store.GetActiveProfile()
	if !ok {
		return "", mediamtx.ErrNotConfigured
	}
	return PlaybackURL(profile.URL, channel, s.hlsPort)
}

// Visible reports the persisted visibility of a channel preview. Channels
// never toggled default to visible.
func (s *Service) Visible(channel string) bool {
	return s.store.PreviewVisible(channel)
}

// SetVisible persists a channel's preview visibility. Hiding also tears down
// the channel's player session.
func (s *Service) SetVisible(channel string, visible bool) error {
	if err := s.store.SetPreviewVisible(channel, visible); err != nil {
		return err
	}
	if !visible {
		s.releasePlayer(channel)
	}
	return nil
}

// SetAllVisible toggles several channels at once.
func (s *Service) SetAllVisible(channels []string, visible bool) error {
	if err := s.store.SetPreviewsVisible(channels, visible); err != nil {
		return err
	}
	if !visible {
		for _, channel := range channels {
			s.releasePlayer(channel)
		}
	}
	return nil
}

// States returns the persisted visibility map.
func (s *Service) States() map[string]bool {
	return s.store.PreviewStates()
}

// ActivePlayers lists channels with a live player session, sorted by name.
func (s *Service) ActivePlayers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	players := make([]string, 0, len(s.players))
	for channel := range s.players {
		players = append(players, channel)
	}
	sort.Strings(players)
	return players
}

func (s *Service) markPlayer(channel string) {
	s.mu.Lock()
	_, known := s.players[channel]
	s.players[channel] = struct{}{}
	s.mu.Unlock()
	if !known && s.metrics != nil {
		s.metrics.PlayerStarted()
	}
}

func (s *Service) releasePlayer(channel string) {
	s.mu.Lock()
	_, known := s.players[channel]
	delete(s.players, channel)
	s.mu.Unlock()
	if known && s.metrics != nil {
		s.metrics.PlayerStopped()
	}
}

// Probe checks whether a channel's HLS playlist is being served. Transport
// failures get one retry after a fixed delay, a malformed playlist gets one
// immediate reload, anything else reports no signal.
func (s *Service) Probe(ctx context.Context, channel string) ProbeResult {
	result := ProbeResult{Channel: channel, Signal: SignalNone}
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordPreviewProbe(string(result.Signal))
		}
	}()
	playbackURL, err := s.PlaybackURL(channel)
	if err != nil {
		result.Detail = err.Error()
		return result
	}
	result.URL = playbackURL

	signal, detail, transportErr := s.fetchManifest(ctx, playbackURL)
	if transportErr != nil {
		if !sleepCtx(ctx, s.retryDelay) {
			result.Detail = ctx.Err().Error()
			return result
		}
		signal, detail, transportErr = s.fetchManifest(ctx, playbackURL)
		if transportErr != nil {
			result.Detail = transportErr.Error()
			return result
		}
	}
	if signal == SignalNone && detail == detailBadPlaylist {
		signal, detail, transportErr = s.fetchManifest(ctx, playbackURL)
		if transportErr != nil {
			result.Detail = transportErr.Error()
			return result
		}
	}

	result.Signal = signal
	result.Detail = detail
	if signal == SignalOK {
		s.markPlayer(channel)
	}
	return result
}

// ProbeAll probes the visible subset of channels concurrently.
func (s *Service) ProbeAll(ctx context.Context, channels []string) map[string]ProbeResult {
	var mu sync.Mutex
	results := make(map[string]ProbeResult, len(channels))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.probeLimit)
	for _, channel := range channels {
		if !s.Visible(channel) {
			continue
		}
		channel := channel
		group.Go(func() error {
			result := s.Probe(groupCtx, channel)
			mu.Lock()
			results[channel] = result
			mu.Unlock()
			return nil
		})
	}
	group.Wait()
	return results
}

const detailBadPlaylist = "invalid playlist"

func (s *Service) fetchManifest(ctx context.Context, playbackURL string) (Signal, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playbackURL, nil)
	if err != nil {
		return SignalNone, "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return SignalNone, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return SignalNone, fmt.Sprintf("HTTP %d", resp.StatusCode), nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, manifestProbeBytes))
	if err != nil {
		return SignalNone, "", err
	}
	if !strings.HasPrefix(strings.TrimSpace(string(data)), "#EXTM3U") {
		return SignalNone, detailBadPlaylist, nil
	}
	return SignalOK, "", nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
