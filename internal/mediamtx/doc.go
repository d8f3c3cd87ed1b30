// Package mediamtx implements a typed client for the MediaMTX v3 control
// API. The client carries the credentials of whichever server profile is
// currently active and is safe for concurrent use.
package mediamtx
