package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/qkrun/internal/config"
	"github.com/vyrodovalexey/qkrun/internal/observability"
)

// run serves until a shutdown signal or a server failure, then shuts down.
func run(app *application, logger observability.Logger) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := waitForShutdown(sigCh, errCh, logger); err != nil {
		app.close(context.Background(), logger)
		fatalWithSync(logger, "server failed", observability.Error(err))
		return
	}

	shutdown(app, logger)
}

// waitForShutdown blocks until a signal arrives or the server stops. It
// returns the server error, if any.
func waitForShutdown(sigCh <-chan os.Signal, errCh <-chan error, logger observability.Logger) error {
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
		return nil
	case err := <-errCh:
		return err
	}
}

// shutdown stops every component within the configured shutdown timeout.
func shutdown(app *application, logger observability.Logger) {
	timeout := app.config.Server.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	app.close(ctx, logger)

	logger.Info("qkrun stopped")
}
