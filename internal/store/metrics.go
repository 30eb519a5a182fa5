package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vyrodovalexey/qkrun/internal/store"

// Operation result label values.
const (
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultError    = "error"
)

// Metrics holds Prometheus metrics for store operations.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	breakerState      *prometheus.GaugeVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetStoreMetrics returns the singleton store metrics instance.
func GetStoreMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

// MustRegister registers the store collectors with registry, which serves
// /metrics in place of the global default registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.breakerState,
	)
}

// Init pre-initializes label combinations for backend.
func (m *Metrics) Init(backend string) {
	for _, op := range []string{"get", "put", "ping"} {
		m.operationDuration.WithLabelValues(backend, op)
		for _, result := range []string{resultOK, resultNotFound, resultError} {
			m.operationsTotal.WithLabelValues(backend, op, result)
		}
	}
}

func newMetrics() *Metrics {
	return &Metrics{
		operationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "qkrun",
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Total number of store operations by result",
			},
			[]string{"backend", "op", "result"},
		),
		operationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "qkrun",
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Duration of store operations",
				Buckets: []float64{
					.0001, .0005, .001, .005,
					.01, .025, .05, .1, .5,
				},
			},
			[]string{"backend", "op"},
		),
		breakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "qkrun",
				Subsystem: "store",
				Name:      "circuit_breaker_state",
				Help:      "Store circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, ErrNotFound):
		return resultNotFound
	default:
		return resultError
	}
}

// operation tracks one instrumented backend call.
type operation struct {
	backend string
	op      string
	start   time.Time
	span    trace.Span
}

// startOperation opens a client span for a backend call. The caller must
// call finish with the call's error.
func startOperation(ctx context.Context, backend, op string, attrs ...attribute.KeyValue) (context.Context, *operation) {
	attrs = append(attrs, attribute.String("store.backend", backend))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, &operation{backend: backend, op: op, start: time.Now(), span: span}
}

func (o *operation) finish(err error) {
	m := GetStoreMetrics()
	result := resultLabel(err)
	m.operationsTotal.WithLabelValues(o.backend, o.op, result).Inc()
	m.operationDuration.WithLabelValues(o.backend, o.op).Observe(time.Since(o.start).Seconds())

	o.span.SetAttributes(attribute.String("store.result", result))
	if result == resultError {
		o.span.SetStatus(codes.Error, err.Error())
		o.span.RecordError(err)
	}
	o.span.End()
}
