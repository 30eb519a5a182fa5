package ratelimit

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/qkrun/internal/observability"
)

const (
	defaultCleanupInterval = 5 * time.Minute
	defaultBucketTTL       = 10 * time.Minute
)

var _ io.Closer = (*TokenBucketLimiter)(nil)

// TokenBucketLimiter keeps one rate.Limiter per key.
type TokenBucketLimiter struct {
	rps    rate.Limit
	burst  int
	logger observability.Logger

	mu      sync.RWMutex
	buckets map[string]*bucket
	now     func() time.Time

	cleanupInterval time.Duration
	bucketTTL       time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Option configures a TokenBucketLimiter.
type Option func(*TokenBucketLimiter)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(l *TokenBucketLimiter) {
		l.logger = logger
	}
}

// WithCleanup overrides how often idle buckets are swept and how long a
// bucket may stay idle before eviction.
func WithCleanup(interval, ttl time.Duration) Option {
	return func(l *TokenBucketLimiter) {
		if interval > 0 {
			l.cleanupInterval = interval
		}
		if ttl > 0 {
			l.bucketTTL = ttl
		}
	}
}

// NewTokenBucketLimiter creates a limiter allowing rps requests per second per
// key with bursts of up to burst. It starts a cleanup goroutine; call Close to
// stop it.
func NewTokenBucketLimiter(rps float64, burst int, opts ...Option) *TokenBucketLimiter {
	if burst < 1 {
		burst = 1
	}

	l := &TokenBucketLimiter{
		rps:             rate.Limit(rps),
		burst:           burst,
		logger:          observability.NopLogger(),
		buckets:         make(map[string]*bucket),
		now:             time.Now,
		cleanupInterval: defaultCleanupInterval,
		bucketTTL:       defaultBucketTTL,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.cleanupLoop()

	return l
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (*Result, error) {
	now := l.now()
	b := l.getBucket(key, now)

	res := &Result{Limit: l.burst}

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		res.RetryAfter = delay
	} else {
		res.Allowed = true
	}

	if tokens := int(b.limiter.TokensAt(now)); tokens > 0 {
		res.Remaining = tokens
	}

	if !res.Allowed {
		l.logger.Debug("rate limit exceeded",
			observability.String("key", key),
			observability.Duration("retry_after", res.RetryAfter),
		)
	}

	return res, nil
}

// getBucket returns the bucket for key, creating it on first use.
func (l *TokenBucketLimiter) getBucket(key string, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b
}

// Len returns the number of tracked keys.
func (l *TokenBucketLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// Cleanup evicts buckets idle for longer than ttl.
func (l *TokenBucketLimiter) Cleanup(ttl time.Duration) {
	cutoff := l.now().Add(-ttl)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debug("evicted idle rate limit buckets",
			observability.Int("removed", removed),
			observability.Int("remaining", len(l.buckets)),
		)
	}
}

func (l *TokenBucketLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup(l.bucketTTL)
		case <-l.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (l *TokenBucketLimiter) Close() error {
	l.cleanupOnce.Do(func() {
		close(l.stopCleanup)
	})
	return nil
}
