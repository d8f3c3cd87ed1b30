package mediamtx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotConfigured is returned while no server profile is active.
	ErrNotConfigured = errors.New("no server configured")
	// ErrUnreachable wraps transport-level failures reaching the server.
	ErrUnreachable = errors.New("server unreachable")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")
)

// StatusError reports a non-2xx response. Message carries the server's own
// error text when the body provided one.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if text := http.StatusText(e.StatusCode); text != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, text)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Config identifies the MediaMTX instance the client talks to. Basic auth is
// sent only when both username and password are set.
type Config struct {
	BaseURL  string
	Username string
	Password string
}

func (c Config) normalized() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	return c
}

// Client is a MediaMTX v3 control API client. The active configuration can be
// swapped at runtime when the operator switches server profiles.
type Client struct {
	mu         sync.RWMutex
	cfg        Config
	httpClient *http.Client
}

// ClientOption adjusts client construction.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient builds an unconfigured client. Calls fail with ErrNotConfigured
// until SetConfig provides a server.
func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// SetConfig swaps the active server configuration. An empty base URL clears
// the configuration.
func (c *Client) SetConfig(cfg Config) {
	cfg = cfg.normalized()
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// ClearConfig forgets the active server.
func (c *Client) ClearConfig() {
	c.SetConfig(Config{})
}

// Configured reports whether a server profile is currently active.
func (c *Client) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.BaseURL != ""
}

func (c *Client) config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// ListPaths returns every configured path.
func (c *Client) ListPaths(ctx context.Context) (PathList, error) {
	var list PathList
	err := c.do(ctx, c.config(), http.MethodGet, "/v3/config/paths/list", nil, &list)
	return list, err
}

// GetPath returns the configuration of a single path.
func (c *Client) GetPath(ctx context.Context, name string) (PathConfig, error) {
	var conf PathConfig
	err := c.do(ctx, c.config(), http.MethodGet, "/v3/config/paths/get/"+url.PathEscape(name), nil, &conf)
	return conf, err
}

// AddPath creates a new path with the provided configuration.
func (c *Client) AddPath(ctx context.Context, name string, conf PathConfig) error {
	return c.do(ctx, c.config(), http.MethodPost, "/v3/config/paths/add/"+url.PathEscape(name), conf, nil)
}

// PatchPath updates an existing path in place.
func (c *Client) PatchPath(ctx context.Context, name string, conf PathConfig) error {
	return c.do(ctx, c.config(), http.MethodPatch, "/v3/config/paths/patch/"+url.PathEscape(name), conf, nil)
}

// DeletePath removes a path from the server configuration.
func (c *Client) DeletePath(ctx context.Context, name string) error {
	return c.do(ctx, c.config(), http.MethodDelete, "/v3/config/paths/delete/"+url.PathEscape(name), nil, nil)
}

// ListSRTConnections returns the live SRT connections.
func (c *Client) ListSRTConnections(ctx context.Context) (SRTConnectionList, error) {
	var list SRTConnectionList
	err := c.do(ctx, c.config(), http.MethodGet, "/v3/srtconns/list", nil, &list)
	return list, err
}

// KickSRTConnection closes the identified SRT connection server-side.
func (c *Client) KickSRTConnection(ctx context.Context, id string) error {
	return c.do(ctx, c.config(), http.MethodPost, "/v3/srtconns/kick/"+url.PathEscape(id), nil, nil)
}

// TestConnection probes the provided configuration without making it active.
// Used by the profile form's connection test.
func (c *Client) TestConnection(ctx context.Context, cfg Config) error {
	var list PathList
	return c.do(ctx, cfg.normalized(), http.MethodGet, "/v3/config/paths/list", nil, &list)
}

func (c *Client) do(ctx context.Context, cfg Config, method, path string, payload, dest any) error {
	if cfg.BaseURL == "" {
		return ErrNotConfigured
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cfg.Username != "" && cfg.Password != "" {
		req.SetBasicAuth(cfg.Username, cfg.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if dest == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	// MediaMTX sometimes answers mutations with a non-JSON body; treat it
	// like an empty one.
	if err := json.Unmarshal(data, dest); err != nil {
		return nil
	}
	return nil
}

func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && strings.TrimSpace(payload.Error) != "" {
		return strings.TrimSpace(payload.Error)
	}
	return ""
}
