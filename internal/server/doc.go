// Package server exposes the redirector over HTTP with gin.
//
// Routes:
//
//	GET  /                  editor seeded with the starter configuration
//	GET  /:id               editor seeded with a saved configuration
//	GET  /q/:id?q=...       303 redirect chosen by the saved configuration
//	POST /save              validate and store a configuration, answer its id
//	GET  /favicon.ico       embedded favicon
//	GET  /assets/*filepath  embedded static files
//	GET  /health, /ready    liveness and readiness
//	GET  /metrics           Prometheus exposition, when enabled
package server
