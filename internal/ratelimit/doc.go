// Package ratelimit provides per-key token bucket rate limiting backed by
// golang.org/x/time/rate. Idle buckets are evicted by a background loop, so
// callers must Close a limiter when done with it.
package ratelimit
