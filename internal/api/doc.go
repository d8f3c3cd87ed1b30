// Package api implements the panel's HTTP handlers: authentication,
// server profile management, channel administration, connection
// monitoring, and preview control. Handlers translate service errors
// into JSON responses; routing and middleware live in internal/server.
package api
