// Package server hosts the panel API, the embedded control UI, and the HLS
// preview proxy from a single HTTP server.
//
// The server builds a consistent middleware chain of request IDs, logging,
// audit, metrics, CORS, rate limiting, and session auth so handlers all share
// common protections and instrumentation.
package server
