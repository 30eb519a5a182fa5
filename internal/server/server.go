package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/qkrun/internal/config"
	"github.com/vyrodovalexey/qkrun/internal/health"
	"github.com/vyrodovalexey/qkrun/internal/middleware"
	"github.com/vyrodovalexey/qkrun/internal/observability"
	"github.com/vyrodovalexey/qkrun/internal/ratelimit"
	"github.com/vyrodovalexey/qkrun/internal/rules"
	"github.com/vyrodovalexey/qkrun/internal/store"
	"github.com/vyrodovalexey/qkrun/web"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions.
var ginModeOnce sync.Once

// TextSource supplies the configuration text shown on the editor's start page.
type TextSource interface {
	Text() string
}

// StaticText is a TextSource that never changes.
type StaticText string

// Text implements TextSource.
func (s StaticText) Text() string {
	return string(s)
}

// Server serves the editor, the save endpoint and redirects.
type Server struct {
	cfg     *config.Config
	store   store.Store
	logger  observability.Logger
	metrics *observability.Metrics
	health  *health.Checker
	starter TextSource

	limiter   *ratelimit.TokenBucketLimiter
	templates *template.Template
	favicon   []byte
	publicURL string

	engine     *gin.Engine
	httpServer *http.Server
	mu         sync.RWMutex
	running    bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics enables request metrics and the metrics endpoint.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithHealthChecker sets the checker behind /health and /ready.
func WithHealthChecker(c *health.Checker) Option {
	return func(s *Server) {
		s.health = c
	}
}

// WithStarter sets the source of the start page configuration text.
func WithStarter(src TextSource) Option {
	return func(s *Server) {
		s.starter = src
	}
}

// New creates a Server for cfg backed by st.
func New(cfg *config.Config, st store.Store, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: config is required")
	}
	if st == nil {
		return nil, errors.New("server: store is required")
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		cfg:       cfg,
		store:     st,
		logger:    observability.NopLogger(),
		starter:   StaticText(rules.DefaultConfig),
		publicURL: strings.TrimRight(cfg.Server.PublicURL, "/") + "/",
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.health == nil {
		s.health = health.NewChecker("")
		s.health.RegisterCheck("store", health.PingCheck(st))
	}

	tmpl, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s.templates = tmpl

	favicon, err := web.Favicon()
	if err != nil {
		return nil, fmt.Errorf("load favicon: %w", err)
	}
	s.favicon = favicon

	if rl := cfg.Server.SaveRateLimit; rl.Enabled {
		s.limiter = ratelimit.NewTokenBucketLimiter(rl.RequestsPerSecond, rl.Burst,
			ratelimit.WithLogger(s.logger),
		)
	}

	s.engine = s.buildEngine()

	return s, nil
}

func (s *Server) buildEngine() *gin.Engine {
	engine := gin.New()
	engine.SetHTMLTemplate(s.templates)

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(s.logger),
		middleware.Tracing(),
		middleware.LoggingWithConfig(middleware.LoggingConfig{
			Logger:          s.logger,
			SkipPaths:       []string{s.cfg.Metrics.Path},
			SkipHealthCheck: true,
		}),
	)
	if s.metrics != nil {
		engine.Use(middleware.Metrics(s.metrics))
	}
	if sh := s.cfg.Server.SecurityHeaders; sh.Enabled {
		engine.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
			FrameOptions:          sh.FrameOptions,
			ContentSecurityPolicy: sh.ContentSecurityPolicy,
			ReferrerPolicy:        sh.ReferrerPolicy,
			HSTSMaxAge:            sh.HSTSMaxAge.Duration(),
		}))
	}
	engine.Use(middleware.BodyLimit(s.cfg.Server.MaxBodyBytes))

	engine.GET("/health", s.health.HealthHandler())
	engine.GET("/ready", s.health.ReadinessHandler())
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		engine.GET(s.cfg.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}

	engine.GET("/favicon.ico", s.handleFavicon)
	engine.StaticFS("/assets", http.FS(web.Assets()))

	engine.GET("/", s.handleIndex)
	engine.GET("/:id", s.handleEdit)
	engine.GET("/q/:id", s.handleRedirect)

	save := []gin.HandlerFunc{}
	if s.limiter != nil {
		save = append(save, middleware.RateLimit(middleware.RateLimitConfig{
			Limiter: s.limiter,
			Logger:  s.logger,
			OnReject: func(c *gin.Context) {
				if s.metrics != nil {
					s.metrics.RecordRateLimitHit(c.FullPath())
				}
			},
		}))
	}
	save = append(save, s.handleSave)
	engine.POST("/save", save...)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   http.StatusText(http.StatusNotFound),
			"message": "No such page",
		})
	})

	return engine
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Server.Listen, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.New("server already running")
	}

	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadTimeout:       s.cfg.Server.ReadTimeout.Duration(),
		ReadHeaderTimeout: s.cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:      s.cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:       s.cfg.Server.IdleTimeout.Duration(),
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("address", ln.Addr().String()),
		observability.String("public_url", s.publicURL),
		observability.Duration("read_timeout", s.cfg.Server.ReadTimeout.Duration()),
		observability.Duration("write_timeout", s.cfg.Server.WriteTimeout.Duration()),
	)

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		_ = s.limiter.Close()
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("HTTP server stopped")
	return nil
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// storeContext bounds a store call by the configured store timeout.
func (s *Server) storeContext(parent context.Context) (context.Context, context.CancelFunc) {
	if d := s.cfg.Store.Timeout.Duration(); d > 0 {
		return context.WithTimeout(parent, d)
	}
	return context.WithCancel(parent)
}
