package config

import "time"

// Store backend types.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreBadger = "badger"
	StoreSQLite = "sqlite"
)

// Default values.
const (
	DefaultListen          = ":8000"
	DefaultPublicURL       = "https://qk.run/"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxBodyBytes    = 64 << 10
	DefaultStoreTimeout    = 5 * time.Second
	DefaultRedisKeyPrefix  = "qkrun:config:"
	DefaultEditorTitle     = "qk.run - search bar superpowers"
	DefaultMetricsPath     = "/metrics"
	DefaultServiceName     = "qkrun"

	// DefaultContentSecurityPolicy allows the editor's own assets only.
	DefaultContentSecurityPolicy = "default-src 'self'; frame-ancestors 'none'"
)

// Config is the root service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Editor  EditorConfig  `yaml:"editor" json:"editor"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Listen is the host:port to bind.
	Listen string `yaml:"listen" json:"listen"`

	// PublicURL is the externally visible base URL, used in editor metadata.
	PublicURL string `yaml:"publicURL" json:"publicURL"`

	ReadTimeout     Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	IdleTimeout     Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`

	// MaxBodyBytes caps request bodies. Larger requests get 413.
	MaxBodyBytes int64 `yaml:"maxBodyBytes,omitempty" json:"maxBodyBytes,omitempty"`

	// SaveRateLimit limits POST /save per client IP.
	SaveRateLimit RateLimitConfig `yaml:"saveRateLimit" json:"saveRateLimit"`

	// SecurityHeaders are added to every response.
	SecurityHeaders SecurityHeadersConfig `yaml:"securityHeaders" json:"securityHeaders"`
}

// SecurityHeadersConfig configures browser security headers.
type SecurityHeadersConfig struct {
	Enabled               bool     `yaml:"enabled" json:"enabled"`
	FrameOptions          string   `yaml:"frameOptions,omitempty" json:"frameOptions,omitempty"`
	ContentSecurityPolicy string   `yaml:"contentSecurityPolicy,omitempty" json:"contentSecurityPolicy,omitempty"`
	ReferrerPolicy        string   `yaml:"referrerPolicy,omitempty" json:"referrerPolicy,omitempty"`
	HSTSMaxAge            Duration `yaml:"hstsMaxAge,omitempty" json:"hstsMaxAge,omitempty"`
}

// RateLimitConfig configures a per-client token bucket.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond" json:"requestsPerSecond"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// StoreConfig selects and configures the configuration store backend.
type StoreConfig struct {
	// Type is one of memory, redis, badger, sqlite.
	Type string `yaml:"type" json:"type"`

	Redis  *RedisConfig  `yaml:"redis,omitempty" json:"redis,omitempty"`
	Badger *BadgerConfig `yaml:"badger,omitempty" json:"badger,omitempty"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty" json:"sqlite,omitempty"`

	// CircuitBreaker wraps the backend when enabled.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker" json:"circuitBreaker"`

	// Timeout bounds every store call made while serving a request.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	// URL is the connection URL for standalone mode:
	// redis://[user:password@]host:port[/db]
	URL string `yaml:"url" json:"url"`

	// Sentinel takes precedence over URL when MasterName is set.
	Sentinel *RedisSentinelConfig `yaml:"sentinel,omitempty" json:"sentinel,omitempty"`

	KeyPrefix      string   `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
	PoolSize       int      `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`
	ConnectTimeout Duration `yaml:"connectTimeout,omitempty" json:"connectTimeout,omitempty"`
	ReadTimeout    Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout   Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
}

// RedisSentinelConfig contains Redis Sentinel settings.
type RedisSentinelConfig struct {
	MasterName       string   `yaml:"masterName" json:"masterName"`
	SentinelAddrs    []string `yaml:"sentinelAddrs" json:"sentinelAddrs"`
	SentinelPassword string   `yaml:"sentinelPassword,omitempty" json:"sentinelPassword,omitempty"`
	Password         string   `yaml:"password,omitempty" json:"password,omitempty"`
	DB               int      `yaml:"db,omitempty" json:"db,omitempty"`
}

// BadgerConfig configures the embedded BadgerDB backend.
type BadgerConfig struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path     string `yaml:"path" json:"path"`
	InMemory bool   `yaml:"inMemory,omitempty" json:"inMemory,omitempty"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file, or ":memory:".
	Path string `yaml:"path" json:"path"`
}

// CircuitBreakerConfig configures the store circuit breaker.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// MaxRequests allowed through while half-open.
	MaxRequests uint32 `yaml:"maxRequests,omitempty" json:"maxRequests,omitempty"`

	// Interval is the cyclic period of the closed state for clearing counts.
	Interval Duration `yaml:"interval,omitempty" json:"interval,omitempty"`

	// Timeout is how long the breaker stays open.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// FailureThreshold is the number of consecutive failures that trips the breaker.
	FailureThreshold uint32 `yaml:"failureThreshold,omitempty" json:"failureThreshold,omitempty"`
}

// EditorConfig configures the editor page.
type EditorConfig struct {
	Title string `yaml:"title" json:"title"`

	// StarterFile replaces the built-in starter configuration when set.
	StarterFile string `yaml:"starterFile,omitempty" json:"starterFile,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint" json:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          DefaultListen,
			PublicURL:       DefaultPublicURL,
			ReadTimeout:     Duration(DefaultReadTimeout),
			WriteTimeout:    Duration(DefaultWriteTimeout),
			IdleTimeout:     Duration(DefaultIdleTimeout),
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
			MaxBodyBytes:    DefaultMaxBodyBytes,
			SaveRateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 1,
				Burst:             10,
			},
			SecurityHeaders: SecurityHeadersConfig{
				Enabled:               true,
				FrameOptions:          "DENY",
				ContentSecurityPolicy: DefaultContentSecurityPolicy,
				ReferrerPolicy:        "strict-origin-when-cross-origin",
			},
		},
		Store: StoreConfig{
			Type: StoreMemory,
			CircuitBreaker: CircuitBreakerConfig{
				MaxRequests:      1,
				Interval:         Duration(60 * time.Second),
				Timeout:          Duration(30 * time.Second),
				FailureThreshold: 5,
			},
			Timeout: Duration(DefaultStoreTimeout),
		},
		Editor: EditorConfig{
			Title: DefaultEditorTitle,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
		Tracing: TracingConfig{
			ServiceName:  DefaultServiceName,
			SamplingRate: 1.0,
		},
	}
}
