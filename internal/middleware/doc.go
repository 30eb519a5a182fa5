// Package middleware provides the gin middleware chain of the HTTP server.
//
//   - RequestID: assigns or propagates X-Request-ID
//   - Logging: one structured log line per request
//   - Recovery: panic recovery with stack trace logging
//   - Tracing: OpenTelemetry server spans
//   - Metrics: Prometheus request counters and latency
//   - SecurityHeaders: nosniff, frame, referrer, CSP and HSTS headers
//   - BodyLimit: request body size cap
//   - RateLimit: per-client token bucket
//
// Register RequestID first so later middleware can read the id.
package middleware
