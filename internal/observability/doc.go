// Package observability provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for qkrun.
//
// # Logging
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("configuration saved", observability.String("id", id))
//
// # Metrics
//
// Metrics owns a private Prometheus registry. Subsystems register their own
// collectors through Registry():
//
//	metrics := observability.NewMetrics("qkrun")
//	store.GetStoreMetrics().MustRegister(metrics.Registry())
//	engine.GET("/metrics", gin.WrapH(metrics.Handler()))
//
// # Tracing
//
// NewTracer installs a global tracer provider exporting over OTLP/gRPC when
// enabled; otherwise spans are no-ops.
package observability
