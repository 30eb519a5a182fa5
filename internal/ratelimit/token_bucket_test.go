package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, rps float64, burst int) (*TokenBucketLimiter, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewTokenBucketLimiter(rps, burst, WithCleanup(time.Hour, time.Minute))
	l.now = clock.Now
	t.Cleanup(func() { _ = l.Close() })

	return l, clock
}

func TestTokenBucketLimiter_AllowsBurstThenRejects(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(t, 1, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 3, res.Limit)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)
	assert.Equal(t, 1, res.RetryAfterSeconds())
}

func TestTokenBucketLimiter_Refills(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(t, 2, 1)
	ctx := context.Background()

	res, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 500*time.Millisecond, res.RetryAfter)

	clock.Advance(500 * time.Millisecond)

	res, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucketLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(t, 1, 1)
	ctx := context.Background()

	res, err := l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Allow(ctx, "b")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	assert.Equal(t, 2, l.Len())
}

func TestTokenBucketLimiter_Cleanup(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(t, 1, 1)
	ctx := context.Background()

	_, err := l.Allow(ctx, "old")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	_, err = l.Allow(ctx, "fresh")
	require.NoError(t, err)

	l.Cleanup(time.Minute)
	assert.Equal(t, 1, l.Len())

	// An evicted key starts again with a full bucket.
	res, err := l.Allow(ctx, "old")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucketLimiter_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	l := NewTokenBucketLimiter(1, 1)
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}

func TestTokenBucketLimiter_ZeroBurstIsRaised(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(t, 1, 0)

	res, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Limit)
}

func TestNoopLimiter(t *testing.T) {
	t.Parallel()

	l := NewNoopLimiter()
	for i := 0; i < 100; i++ {
		res, err := l.Allow(context.Background(), "k")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

func TestResult_RetryAfterSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   time.Duration
		want int
	}{
		{name: "zero", in: 0, want: 1},
		{name: "sub-second rounds up", in: 200 * time.Millisecond, want: 1},
		{name: "exact", in: 2 * time.Second, want: 2},
		{name: "fraction rounds up", in: 2*time.Second + time.Millisecond, want: 3},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := &Result{RetryAfter: tt.in}
			assert.Equal(t, tt.want, r.RetryAfterSeconds())
		})
	}
}
