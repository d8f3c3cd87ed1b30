package main

import (
	"time"

	"srtpanel/internal/server"
)

type startupSummaryInput struct {
	Mode          string
	Addr          string
	StorageDriver string
	StoragePath   string
	StorageDSN    string
	SessionConfig sessionStoreConfig
	SessionTTL    time.Duration
	RateLimit     server.RateLimitConfig
	TLSEnabled    bool
}

// startupSummary is the one-line boot report. Connection strings are redacted
// before they reach the log output.
type startupSummary struct {
	args []any
}

func newStartupSummary(input startupSummaryInput) startupSummary {
	datastore := map[string]any{"driver": input.StorageDriver}
	if input.StoragePath != "" {
		datastore["path"] = input.StoragePath
	}
	if input.StorageDSN != "" {
		datastore["dsn"] = redactDSN(input.StorageDSN)
	}

	session := map[string]any{"driver": input.SessionConfig.Driver}
	if input.SessionConfig.Addr != "" {
		session["addr"] = input.SessionConfig.Addr
	}
	if input.SessionTTL > 0 {
		session["ttl"] = input.SessionTTL.String()
	} else {
		session["ttl"] = "unlimited"
	}

	login := map[string]any{"driver": "memory"}
	if input.RateLimit.RedisAddr != "" {
		login["driver"] = "redis"
		login["addr"] = input.RateLimit.RedisAddr
	}
	if input.RateLimit.LoginLimit > 0 {
		login["limit"] = input.RateLimit.LoginLimit
		login["window"] = input.RateLimit.LoginWindow.String()
	}

	return startupSummary{args: []any{
		"mode", input.Mode,
		"addr", input.Addr,
		"tls", input.TLSEnabled,
		"datastore", datastore,
		"session_store", session,
		"login_throttle", login,
	}}
}

// LogArgs returns alternating slog key/value pairs.
func (s startupSummary) LogArgs() []any {
	return s.args
}
