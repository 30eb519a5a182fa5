package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/vyrodovalexey/qkrun/internal/config"
	"github.com/vyrodovalexey/qkrun/internal/observability"
)

const backendSQLite = "sqlite"

// configRecord is one row of the configs table.
type configRecord struct {
	ConfigHash string    `gorm:"column:config_hash;primaryKey;size:32"`
	Config     string    `gorm:"column:config;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName implements gorm's tabler interface.
func (configRecord) TableName() string {
	return "configs"
}

// sqliteStore keeps configurations in SQLite through GORM.
type sqliteStore struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	logger observability.Logger
}

func newSQLiteStore(cfg *config.SQLiteConfig, log observability.Logger) (*sqliteStore, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := cfg.Path
	inMemory := cfg.Path == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	if inMemory {
		// Each connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&configRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
	}

	GetStoreMetrics().Init(backendSQLite)
	log.Info("sqlite store initialized", observability.String("path", cfg.Path))

	return &sqliteStore{db: db, sqlDB: sqlDB, logger: log}, nil
}

// Get returns the text stored under id.
func (s *sqliteStore) Get(ctx context.Context, id string) (text string, err error) {
	ctx, op := startOperation(ctx, backendSQLite, "get", attribute.String("store.id", id))
	defer func() { op.finish(err) }()

	if !ValidID(id) {
		return "", ErrNotFound
	}

	var rec configRecord
	err = s.db.WithContext(ctx).Where("config_hash = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite get: %w", err)
	}
	return rec.Config, nil
}

// Put inserts text with ON CONFLICT DO NOTHING so an existing id is kept.
func (s *sqliteStore) Put(ctx context.Context, text string) (id string, err error) {
	id = ContentID(text)
	ctx, op := startOperation(ctx, backendSQLite, "put",
		attribute.String("store.id", id),
		attribute.Int("store.value_size", len(text)))
	defer func() { op.finish(err) }()

	rec := configRecord{ConfigHash: id, Config: text}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		s.logger.Error("sqlite put failed",
			observability.String("id", id),
			observability.Error(res.Error))
		return "", fmt.Errorf("sqlite put: %w", res.Error)
	}

	op.span.SetAttributes(attribute.Bool("store.created", res.RowsAffected > 0))
	return id, nil
}

// Ping pings the underlying connection pool.
func (s *sqliteStore) Ping(ctx context.Context) (err error) {
	ctx, op := startOperation(ctx, backendSQLite, "ping")
	defer func() { op.finish(err) }()

	if err = s.sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: sqlite ping: %w", ErrUnavailable, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *sqliteStore) Close() error {
	return s.sqlDB.Close()
}
