package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/qkrun/internal/config"
	"github.com/vyrodovalexey/qkrun/internal/health"
	"github.com/vyrodovalexey/qkrun/internal/observability"
	"github.com/vyrodovalexey/qkrun/internal/rules"
	"github.com/vyrodovalexey/qkrun/internal/server"
	"github.com/vyrodovalexey/qkrun/internal/store"
)

// application holds all application components.
type application struct {
	config  *config.Config
	server  *server.Server
	store   store.Store
	watcher *config.StarterWatcher
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// initApplication builds every component from cfg. On error, components
// created so far are released.
func initApplication(cfg *config.Config, logger observability.Logger) (app *application, err error) {
	app = &application{config: cfg}
	defer func() {
		if err != nil {
			app.close(context.Background(), logger)
			app = nil
		}
	}()

	app.metrics = observability.NewMetrics(config.DefaultServiceName)
	app.metrics.SetBuildInfo(version, gitCommit, buildTime)
	app.metrics.InitVecMetrics(rules.OutcomeMatched, rules.OutcomeFallback)
	store.GetStoreMetrics().MustRegister(app.metrics.Registry())

	app.tracer, err = initTracer(cfg.Tracing)
	if err != nil {
		return app, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	app.store, err = store.New(&cfg.Store, logger)
	if err != nil {
		return app, err
	}

	healthChecker := health.NewChecker(version)
	healthChecker.RegisterCheck("store", health.PingCheck(app.store))

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithHealthChecker(healthChecker),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(app.metrics))
	}

	if path := cfg.Editor.StarterFile; path != "" {
		app.watcher, err = startStarterWatcher(path, logger)
		if err != nil {
			return app, err
		}
		opts = append(opts, server.WithStarter(app.watcher))
	}

	app.server, err = server.New(cfg, app.store, opts...)
	if err != nil {
		return app, fmt.Errorf("failed to create server: %w", err)
	}

	return app, nil
}

// initTracer initializes the tracer.
func initTracer(cfg config.TracingConfig) (*observability.Tracer, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = config.DefaultServiceName
	}

	return observability.NewTracer(observability.TracerConfig{
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.SamplingRate,
		Enabled:      cfg.Enabled,
	})
}

// startStarterWatcher loads the starter file and reloads it on change.
func startStarterWatcher(path string, logger observability.Logger) (*config.StarterWatcher, error) {
	watcher, err := config.NewStarterWatcher(path,
		config.WithLogger(logger),
		config.WithCallback(func(text string) {
			logger.Info("starter configuration reloaded",
				observability.String("path", path),
				observability.Int("size", len(text)),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create starter watcher: %w", err)
	}

	if err := watcher.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load starter file %s: %w", path, err)
	}

	return watcher, nil
}

// close releases every component that was created, in reverse order.
func (a *application) close(ctx context.Context, logger observability.Logger) {
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			logger.Error("failed to stop server gracefully", observability.Error(err))
		}
	}

	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			logger.Error("failed to stop starter watcher", observability.Error(err))
		}
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Error("failed to close store", observability.Error(err))
		}
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("failed to shutdown tracer", observability.Error(err))
		}
	}
}
