package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/qkrun/internal/observability"
)

// ValidationError is a single invalid field.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is every invalid field found in one pass.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e[i].Error())
	}
	return sb.String()
}

type validator struct {
	errors ValidationErrors
}

func (v *validator) addError(path, format string, args ...any) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Validate checks cfg and returns ValidationErrors listing every bad field,
// or nil.
func Validate(cfg *Config) error {
	v := &validator{}
	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(&cfg.Server)
	v.validateStore(&cfg.Store)
	v.validateLogging(&cfg.Logging)
	v.validateMetrics(&cfg.Metrics)
	v.validateTracing(&cfg.Tracing)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *validator) validateServer(s *ServerConfig) {
	if s.Listen == "" {
		v.addError("server.listen", "is required")
	}
	if s.PublicURL != "" {
		u, err := url.Parse(s.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			v.addError("server.publicURL", "must be an absolute URL, got %q", s.PublicURL)
		}
	}
	if s.ReadTimeout < 0 {
		v.addError("server.readTimeout", "must not be negative")
	}
	if s.WriteTimeout < 0 {
		v.addError("server.writeTimeout", "must not be negative")
	}
	if s.IdleTimeout < 0 {
		v.addError("server.idleTimeout", "must not be negative")
	}
	if s.ShutdownTimeout < 0 {
		v.addError("server.shutdownTimeout", "must not be negative")
	}
	if s.MaxBodyBytes <= 0 {
		v.addError("server.maxBodyBytes", "must be positive")
	}
	if s.SaveRateLimit.Enabled {
		if s.SaveRateLimit.RequestsPerSecond <= 0 {
			v.addError("server.saveRateLimit.requestsPerSecond", "must be positive")
		}
		if s.SaveRateLimit.Burst <= 0 {
			v.addError("server.saveRateLimit.burst", "must be positive")
		}
	}
	v.validateSecurityHeaders(&s.SecurityHeaders)
}

var validFrameOptions = map[string]bool{
	"":           true,
	"DENY":       true,
	"SAMEORIGIN": true,
}

var validReferrerPolicies = map[string]bool{
	"":                                true,
	"no-referrer":                     true,
	"no-referrer-when-downgrade":      true,
	"origin":                          true,
	"origin-when-cross-origin":        true,
	"same-origin":                     true,
	"strict-origin":                   true,
	"strict-origin-when-cross-origin": true,
	"unsafe-url":                      true,
}

func (v *validator) validateSecurityHeaders(h *SecurityHeadersConfig) {
	if !h.Enabled {
		return
	}
	if !validFrameOptions[strings.ToUpper(h.FrameOptions)] {
		v.addError("server.securityHeaders.frameOptions", "must be DENY or SAMEORIGIN, got %q", h.FrameOptions)
	}
	if !validReferrerPolicies[h.ReferrerPolicy] {
		v.addError("server.securityHeaders.referrerPolicy", "invalid referrer policy %q", h.ReferrerPolicy)
	}
	if h.HSTSMaxAge < 0 {
		v.addError("server.securityHeaders.hstsMaxAge", "must not be negative")
	}
}

func (v *validator) validateStore(s *StoreConfig) {
	switch s.Type {
	case StoreMemory:
	case StoreRedis:
		v.validateRedis(s.Redis)
	case StoreBadger:
		if s.Badger == nil || (!s.Badger.InMemory && s.Badger.Path == "") {
			v.addError("store.badger.path", "is required unless inMemory is set")
		}
	case StoreSQLite:
		if s.SQLite == nil || s.SQLite.Path == "" {
			v.addError("store.sqlite.path", "is required")
		}
	default:
		v.addError("store.type", "must be one of %s, %s, %s, %s; got %q",
			StoreMemory, StoreRedis, StoreBadger, StoreSQLite, s.Type)
	}

	if s.Timeout < 0 {
		v.addError("store.timeout", "must not be negative")
	}
	if cb := s.CircuitBreaker; cb.Enabled {
		if cb.FailureThreshold == 0 {
			v.addError("store.circuitBreaker.failureThreshold", "must be positive")
		}
		if cb.Timeout <= 0 {
			v.addError("store.circuitBreaker.timeout", "must be positive")
		}
	}
}

func (v *validator) validateRedis(r *RedisConfig) {
	if r == nil {
		v.addError("store.redis", "is required for the redis store")
		return
	}
	if r.Sentinel != nil && r.Sentinel.MasterName != "" {
		if len(r.Sentinel.SentinelAddrs) == 0 {
			v.addError("store.redis.sentinel.sentinelAddrs", "at least one address is required")
		}
		return
	}
	if r.URL == "" {
		v.addError("store.redis.url", "is required without sentinel")
	}
	if r.PoolSize < 0 {
		v.addError("store.redis.poolSize", "must not be negative")
	}
}

func (v *validator) validateLogging(l *LoggingConfig) {
	if _, err := observability.ParseLevel(l.Level); err != nil {
		v.addError("logging.level", "unknown level %q", l.Level)
	}
	switch l.Format {
	case "", "json", "console":
	default:
		v.addError("logging.format", "must be json or console, got %q", l.Format)
	}
	switch l.Output {
	case "", "stdout", "stderr":
	default:
		v.addError("logging.output", "must be stdout or stderr, got %q", l.Output)
	}
}

func (v *validator) validateMetrics(m *MetricsConfig) {
	if m.Enabled && !strings.HasPrefix(m.Path, "/") {
		v.addError("metrics.path", "must start with /")
	}
}

func (v *validator) validateTracing(t *TracingConfig) {
	if t.SamplingRate < 0 || t.SamplingRate > 1 {
		v.addError("tracing.samplingRate", "must be between 0 and 1")
	}
	if t.Enabled && t.ServiceName == "" {
		v.addError("tracing.serviceName", "is required when tracing is enabled")
	}
}
