package models

import "time"

// ServerProfile is a named set of MediaMTX control-API connection settings
// stored locally by the panel. At most one profile is active at a time.
type ServerProfile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// AuthRecord is a panel account. PasswordHash holds a one-way pbkdf2 digest;
// plaintext passwords are never persisted.
type AuthRecord struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
}

// ChannelMode describes the SRT transport direction of a channel source.
type ChannelMode string

const (
	// ModeListener waits for an incoming publisher connection; the channel
	// configuration carries no source URL.
	ModeListener ChannelMode = "listener"
	// ModeCaller dials out to the configured SRT source URL.
	ModeCaller ChannelMode = "caller"
)

// Channel is a transient snapshot of a stream path configured on the remote
// media server. The server owns the authoritative copy; the panel re-fetches
// it per request. Mode is derived from the presence of a source and is a
// best-effort heuristic, never stored remotely.
type Channel struct {
	Name        string      `json:"name"`
	Source      string      `json:"source,omitempty"`
	PublishUser string      `json:"publishUser,omitempty"`
	PublishPass string      `json:"publishPass,omitempty"`
	ReadUser    string      `json:"readUser,omitempty"`
	ReadPass    string      `json:"readPass,omitempty"`
	Mode        ChannelMode `json:"mode,omitempty"`
}

// ConnectionDirection classifies a transport connection relative to the
// media server.
type ConnectionDirection string

const (
	DirectionInbound  ConnectionDirection = "inbound"
	DirectionOutbound ConnectionDirection = "outbound"
)

// Connection is a transient snapshot of an active SRT transport connection on
// the remote server. Direction is a classification heuristic applied by the
// connection monitor, not a server-provided fact.
type Connection struct {
	ID         string              `json:"id"`
	Path       string              `json:"path"`
	State      string              `json:"state"`
	RemoteAddr string              `json:"remoteAddr"`
	Created    time.Time           `json:"created"`
	Direction  ConnectionDirection `json:"direction"`
}
