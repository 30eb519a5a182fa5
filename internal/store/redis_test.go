package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/qkrun/internal/config"
	"github.com/vyrodovalexey/qkrun/internal/observability"
	"github.com/vyrodovalexey/qkrun/internal/retry"
)

const defaultTestBreakerTimeout = 30 * time.Second

// setupMiniRedis starts a miniredis server closed at test cleanup.
func setupMiniRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return mr
}

func newTestRedisStore(t *testing.T, mr *miniredis.Miniredis, prefix string) *redisStore {
	t.Helper()

	s, err := newRedisStore(&config.RedisConfig{
		URL:       "redis://" + mr.Addr(),
		KeyPrefix: prefix,
	}, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	s.retryCfg = &retry.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	return s
}

func TestRedisStore_Contract(t *testing.T) {
	t.Parallel()

	testStoreContract(t, newTestRedisStore(t, setupMiniRedis(t), ""))
}

func TestRedisStore_ConcurrentPut(t *testing.T) {
	t.Parallel()

	mr := setupMiniRedis(t)
	testConcurrentPut(t, newTestRedisStore(t, mr, ""))
	assert.Len(t, mr.Keys(), 1)
}

func TestRedisStore_KeyLayout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		prefix     string
		wantPrefix string
	}{
		{name: "default prefix", prefix: "", wantPrefix: config.DefaultRedisKeyPrefix},
		{name: "custom prefix", prefix: "test:", wantPrefix: "test:"},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mr := setupMiniRedis(t)
			s := newTestRedisStore(t, mr, tt.prefix)

			id, err := s.Put(context.Background(), sampleConfig)
			require.NoError(t, err)

			key := tt.wantPrefix + id
			assert.True(t, mr.Exists(key))
			stored, err := mr.Get(key)
			require.NoError(t, err)
			assert.Equal(t, sampleConfig, stored)
			assert.Zero(t, mr.TTL(key), "configs never expire")
		})
	}
}

func TestRedisStore_PutNeverOverwrites(t *testing.T) {
	t.Parallel()

	mr := setupMiniRedis(t)
	s := newTestRedisStore(t, mr, "")

	id := ContentID(sampleConfig)
	require.NoError(t, mr.Set(config.DefaultRedisKeyPrefix+id, "first writer"))

	got, err := s.Put(context.Background(), sampleConfig)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	text, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "first writer", text)
}

func TestRedisStore_Unavailable(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	s := newTestRedisStore(t, mr, "")
	mr.Close()

	ctx := context.Background()

	_, err = s.Get(ctx, ContentID(sampleConfig))
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = s.Put(ctx, sampleConfig)
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.ErrorIs(t, s.Ping(ctx), ErrUnavailable)
}

func TestNewRedisStore_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *config.RedisConfig
	}{
		{name: "nil config", cfg: nil},
		{name: "missing url", cfg: &config.RedisConfig{}},
		{name: "invalid url", cfg: &config.RedisConfig{URL: "http://not-redis"}},
		{name: "unreachable", cfg: &config.RedisConfig{URL: "redis://127.0.0.1:1", ConnectTimeout: config.Duration(100 * time.Millisecond)}},
		{name: "sentinel without addresses", cfg: &config.RedisConfig{Sentinel: &config.RedisSentinelConfig{MasterName: "mymaster"}}},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := newRedisStore(tt.cfg, observability.NopLogger())
			assert.Error(t, err)
			assert.Nil(t, s)
		})
	}
}

func TestIsRetryableRedisError(t *testing.T) {
	t.Parallel()

	assert.False(t, isRetryableRedisError(nil))
	assert.False(t, isRetryableRedisError(context.Canceled))
	assert.False(t, isRetryableRedisError(context.DeadlineExceeded))
	assert.True(t, isRetryableRedisError(assert.AnError))
}

func TestResolveKeyPrefix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, config.DefaultRedisKeyPrefix, resolveKeyPrefix(""))
	assert.Equal(t, "x:", resolveKeyPrefix("x:"))
}
