// Package store persists rules configuration text keyed by its content
// hash.
//
// A configuration id is the lowercase hex MD5 of the text, so saving the
// same text twice yields the same id and never a second record. Writes are
// create-only: the first writer wins and later writes of the same id are
// no-ops.
//
// Backends:
//
//   - memory: mutex-guarded map, for tests and single-node development
//   - redis: SETNX against standalone Redis or Sentinel
//   - badger: embedded BadgerDB
//   - sqlite: GORM over SQLite
//
// New builds the configured backend and optionally wraps it in a circuit
// breaker. Every backend records Prometheus metrics and OpenTelemetry spans.
package store
