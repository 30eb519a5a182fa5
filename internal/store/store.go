package store

import (
	"context"
	"crypto/md5" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/qkrun/internal/config"
	"github.com/vyrodovalexey/qkrun/internal/observability"
)

// Sentinel errors returned by every backend.
var (
	// ErrNotFound is returned when no configuration exists for an id.
	ErrNotFound = errors.New("configuration not found")

	// ErrUnavailable is returned when the backend cannot serve requests.
	ErrUnavailable = errors.New("store unavailable")
)

// IDLength is the length of a configuration id.
const IDLength = md5.Size * 2

// Store persists configuration text keyed by ContentID.
type Store interface {
	// Get returns the text stored under id, or ErrNotFound.
	Get(ctx context.Context, id string) (string, error)

	// Put stores text under ContentID(text) unless that id already exists,
	// and returns the id.
	Put(ctx context.Context, text string) (string, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// ContentID returns the id for text: the lowercase hex MD5 digest.
func ContentID(text string) string {
	sum := md5.Sum([]byte(text)) //nolint:gosec // content addressing
	return hex.EncodeToString(sum[:])
}

// ValidID reports whether id has the shape of a ContentID.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// New creates the backend selected by cfg.Type, wrapped in a circuit breaker
// when cfg.CircuitBreaker.Enabled.
func New(cfg *config.StoreConfig, logger observability.Logger) (Store, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	var (
		s   Store
		err error
	)

	switch cfg.Type {
	case config.StoreMemory, "":
		s = NewMemoryStore()
	case config.StoreRedis:
		s, err = newRedisStore(cfg.Redis, logger)
	case config.StoreBadger:
		s, err = newBadgerStore(cfg.Badger, logger)
	case config.StoreSQLite:
		s, err = newSQLiteStore(cfg.SQLite, logger)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", cfg.Type, err)
	}

	if cfg.CircuitBreaker.Enabled {
		s = NewBreakerStore(s, "store-"+backendName(cfg.Type), &cfg.CircuitBreaker, logger)
	}

	logger.Info("configuration store initialized",
		observability.String("type", backendName(cfg.Type)),
		observability.Bool("circuitBreaker", cfg.CircuitBreaker.Enabled))

	return s, nil
}

func backendName(t string) string {
	if t == "" {
		return config.StoreMemory
	}
	return t
}
