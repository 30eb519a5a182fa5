package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vyrodovalexey/qkrun/internal/config"
	"github.com/vyrodovalexey/qkrun/internal/observability"
	"github.com/vyrodovalexey/qkrun/internal/retry"
)

const (
	backendBadger = "badger"
	badgerPrefix  = "config:"
)

// badgerLoggerAdapter routes BadgerDB's internal logging to our logger.
type badgerLoggerAdapter struct {
	logger observability.Logger
}

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// badgerStore keeps configurations in an embedded BadgerDB.
type badgerStore struct {
	db     *badger.DB
	logger observability.Logger
}

func newBadgerStore(cfg *config.BadgerConfig, logger observability.Logger) (*badgerStore, error) {
	if cfg == nil {
		return nil, errors.New("badger configuration is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts.Logger = &badgerLoggerAdapter{logger: logger.With(observability.String("component", "badger"))}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	GetStoreMetrics().Init(backendBadger)
	logger.Info("badger store initialized",
		observability.String("path", cfg.Path),
		observability.Bool("inMemory", cfg.InMemory))

	return &badgerStore{db: db, logger: logger}, nil
}

func badgerKey(id string) []byte {
	return []byte(badgerPrefix + id)
}

// Get returns the text stored under id.
func (s *badgerStore) Get(ctx context.Context, id string) (text string, err error) {
	_, op := startOperation(ctx, backendBadger, "get", attribute.String("store.id", id))
	defer func() { op.finish(err) }()

	if !ValidID(id) {
		return "", ErrNotFound
	}

	err = s.db.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get(badgerKey(id))
		if getErr != nil {
			return getErr
		}
		return item.Value(func(val []byte) error {
			text = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("badger get: %w", err)
	}
	return text, nil
}

// Put writes text in a read-write transaction that skips existing ids.
// Transaction conflicts are retried.
func (s *badgerStore) Put(ctx context.Context, text string) (id string, err error) {
	id = ContentID(text)
	ctx, op := startOperation(ctx, backendBadger, "put",
		attribute.String("store.id", id),
		attribute.Int("store.value_size", len(text)))
	defer func() { op.finish(err) }()

	key := badgerKey(id)
	cfg := &retry.Config{MaxRetries: 5, InitialBackoff: time.Millisecond, MaxBackoff: 50 * time.Millisecond}

	err = retry.Do(ctx, cfg, func(context.Context) error {
		return s.db.Update(func(txn *badger.Txn) error {
			_, getErr := txn.Get(key)
			if getErr == nil {
				return nil
			}
			if !errors.Is(getErr, badger.ErrKeyNotFound) {
				return getErr
			}
			return txn.Set(key, []byte(text))
		})
	}, &retry.Options{
		ShouldRetry: func(err error) bool { return errors.Is(err, badger.ErrConflict) },
	})
	if err != nil {
		s.logger.Error("badger put failed",
			observability.String("id", id),
			observability.Error(err))
		return "", fmt.Errorf("badger put: %w", err)
	}
	return id, nil
}

// Ping reports ErrUnavailable once the database is closed.
func (s *badgerStore) Ping(ctx context.Context) (err error) {
	_, op := startOperation(ctx, backendBadger, "ping")
	defer func() { op.finish(err) }()

	if s.db.IsClosed() {
		return fmt.Errorf("%w: badger is closed", ErrUnavailable)
	}
	return nil
}

// Close closes the database.
func (s *badgerStore) Close() error {
	return s.db.Close()
}
