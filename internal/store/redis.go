package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vyrodovalexey/qkrun/internal/config"
	"github.com/vyrodovalexey/qkrun/internal/observability"
	"github.com/vyrodovalexey/qkrun/internal/retry"
)

const backendRedis = "redis"

// redisRetryConfig returns the retry configuration for Redis operations.
func redisRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		JitterFactor:   retry.DefaultJitterFactor,
	}
}

// isRetryableRedisError reports whether err is a connection-level failure.
func isRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// redisStore keeps each configuration as a plain string key without TTL.
type redisStore struct {
	logger    observability.Logger
	client    *redis.Client
	keyPrefix string
	retryCfg  *retry.Config
}

// newRedisStore dispatches between standalone and Sentinel modes.
func newRedisStore(cfg *config.RedisConfig, logger observability.Logger) (*redisStore, error) {
	if cfg == nil {
		return nil, errors.New("redis configuration is required")
	}

	if cfg.Sentinel != nil && cfg.Sentinel.MasterName != "" {
		return newRedisSentinelStore(cfg, logger)
	}

	if cfg.URL == "" {
		return nil, errors.New("redis URL is required for standalone mode")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	applyRedisPoolOptions(opts, cfg)

	client := redis.NewClient(opts)
	if err := pingRedis(client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	s := newRedisStoreFromClient(client, cfg.KeyPrefix, logger)
	logger.Info("redis store initialized",
		observability.String("addr", opts.Addr),
		observability.String("keyPrefix", s.keyPrefix))
	return s, nil
}

func newRedisSentinelStore(cfg *config.RedisConfig, logger observability.Logger) (*redisStore, error) {
	sentinel := cfg.Sentinel
	if len(sentinel.SentinelAddrs) == 0 {
		return nil, errors.New("at least one sentinel address is required")
	}

	opts := &redis.FailoverOptions{
		MasterName:       sentinel.MasterName,
		SentinelAddrs:    sentinel.SentinelAddrs,
		SentinelPassword: sentinel.SentinelPassword,
		Password:         sentinel.Password,
		DB:               sentinel.DB,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.ConnectTimeout > 0 {
		opts.DialTimeout = cfg.ConnectTimeout.Duration()
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout.Duration()
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout.Duration()
	}

	client := redis.NewFailoverClient(opts)
	if err := pingRedis(client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis sentinel connection failed: %w", err)
	}

	s := newRedisStoreFromClient(client, cfg.KeyPrefix, logger)
	logger.Info("redis sentinel store initialized",
		observability.String("masterName", sentinel.MasterName),
		observability.Int("sentinelCount", len(sentinel.SentinelAddrs)),
		observability.String("keyPrefix", s.keyPrefix))
	return s, nil
}

func newRedisStoreFromClient(client *redis.Client, keyPrefix string, logger observability.Logger) *redisStore {
	GetStoreMetrics().Init(backendRedis)
	return &redisStore{
		logger:    logger,
		client:    client,
		keyPrefix: resolveKeyPrefix(keyPrefix),
		retryCfg:  redisRetryConfig(),
	}
}

// applyRedisPoolOptions applies pool and timeout overrides.
func applyRedisPoolOptions(opts *redis.Options, cfg *config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.ConnectTimeout > 0 {
		opts.DialTimeout = cfg.ConnectTimeout.Duration()
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout.Duration()
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout.Duration()
	}
}

// pingRedis tests the connection with a timeout.
func pingRedis(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

// resolveKeyPrefix returns prefix, defaulting to config.DefaultRedisKeyPrefix.
func resolveKeyPrefix(prefix string) string {
	if prefix == "" {
		return config.DefaultRedisKeyPrefix
	}
	return prefix
}

func (s *redisStore) key(id string) string {
	return s.keyPrefix + id
}

func (s *redisStore) retryOptions(op, id string) *retry.Options {
	return &retry.Options{
		ShouldRetry: isRetryableRedisError,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			s.logger.Debug("retrying redis "+op,
				observability.String("id", id),
				observability.Int("attempt", attempt),
				observability.Duration("backoff", backoff),
				observability.Error(err))
		},
	}
}

// Get returns the text stored under id.
func (s *redisStore) Get(ctx context.Context, id string) (text string, err error) {
	ctx, op := startOperation(ctx, backendRedis, "get", attribute.String("store.id", id))
	defer func() { op.finish(err) }()

	if !ValidID(id) {
		return "", ErrNotFound
	}

	err = retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		var getErr error
		text, getErr = s.client.Get(ctx, s.key(id)).Result()
		return getErr
	}, s.retryOptions("get", id))

	switch {
	case err == nil:
		return text, nil
	case errors.Is(err, redis.Nil):
		return "", ErrNotFound
	default:
		s.logger.Error("redis get failed",
			observability.String("id", id),
			observability.Error(err))
		return "", fmt.Errorf("%w: redis get: %w", ErrUnavailable, err)
	}
}

// Put stores text with SETNX so an existing id is never overwritten.
func (s *redisStore) Put(ctx context.Context, text string) (id string, err error) {
	id = ContentID(text)
	ctx, op := startOperation(ctx, backendRedis, "put",
		attribute.String("store.id", id),
		attribute.Int("store.value_size", len(text)))
	defer func() { op.finish(err) }()

	var created bool
	err = retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		var setErr error
		created, setErr = s.client.SetNX(ctx, s.key(id), text, 0).Result()
		return setErr
	}, s.retryOptions("setnx", id))
	if err != nil {
		s.logger.Error("redis setnx failed",
			observability.String("id", id),
			observability.Error(err))
		return "", fmt.Errorf("%w: redis setnx: %w", ErrUnavailable, err)
	}

	op.span.SetAttributes(attribute.Bool("store.created", created))
	s.logger.Debug("redis put",
		observability.String("id", id),
		observability.Bool("created", created))
	return id, nil
}

// Ping checks connectivity without retrying.
func (s *redisStore) Ping(ctx context.Context) (err error) {
	ctx, op := startOperation(ctx, backendRedis, "ping")
	defer func() { op.finish(err) }()

	if err = s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %w", ErrUnavailable, err)
	}
	return nil
}

// Close closes the client.
func (s *redisStore) Close() error {
	return s.client.Close()
}
