package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"xlend/core/events"
	"xlend/native/lending"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// LendingMetrics records engine operations and the events they emit.
type LendingMetrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	events      *prometheus.CounterVec
	quorums     prometheus.Counter
	outstanding prometheus.Gauge
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record RPC
// request activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xlend",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total RPC requests segmented by route and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xlend",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total RPC errors segmented by route and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "xlend",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xlend",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of RPC requests rejected by throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the HTTP
// status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// Lending returns the singleton lending metrics registry.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = newLendingMetrics()
		prometheus.MustRegister(lendingRegistry.collectors()...)
	})
	return lendingRegistry
}

func newLendingMetrics() *LendingMetrics {
	return &LendingMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xlend",
			Subsystem: "lending",
			Name:      "operations_total",
			Help:      "Lending engine operations segmented by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "xlend",
			Subsystem: "lending",
			Name:      "operation_duration_seconds",
			Help:      "Latency distribution for lending engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xlend",
			Subsystem: "lending",
			Name:      "events_total",
			Help:      "Lending events committed, segmented by type.",
		}, []string{"type"}),
		quorums: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xlend",
			Subsystem: "lending",
			Name:      "attestation_quorums_total",
			Help:      "Attestation records that reached witness quorum.",
		}),
		outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "xlend",
			Subsystem: "lending",
			Name:      "outstanding_receipts",
			Help:      "Loan receipts issued since start that are not yet repaid or liquidated.",
		}),
	}
}

func (m *LendingMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.operations, m.latency, m.events, m.quorums, m.outstanding}
}

// RecordOperation implements lending.OperationRecorder. Failures are
// labelled with their error kind.
func (m *LendingMetrics) RecordOperation(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = lending.KindOf(err).String()
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Emit implements events.Emitter.
func (m *LendingMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	eventType := evt.EventType()
	m.events.WithLabelValues(eventType).Inc()
	switch eventType {
	case lending.EventTypeAttestationQuorum:
		m.quorums.Inc()
	case lending.EventTypeBorrowSucceeded:
		m.outstanding.Inc()
	case lending.EventTypeRepaySucceeded, lending.EventTypeLiquidated:
		m.outstanding.Dec()
	}
}
