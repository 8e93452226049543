// Package metrics provides the Prometheus collectors the dispatcher
// records operation outcomes, lock wait times and store-degraded events
// against.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the dispatcher and its ops server touch.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	LockWaitSeconds   *prometheus.HistogramVec
	StoreDegraded     *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with every collector registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_operations_total",
			Help: "Total number of dispatcher operations by outcome",
		},
		[]string{"op", "outcome"},
	)

	m.OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatcher_operation_duration_seconds",
			Help:    "Dispatcher operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	m.LockWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatcher_lock_wait_seconds",
			Help:    "Time spent waiting to acquire a hierarchical lock path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "mode"},
	)

	m.StoreDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_store_degraded_total",
			Help: "Total number of operations that succeeded at the backend but failed to update the entity store",
		},
		[]string{"op"},
	)

	m.registry.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.LockWaitSeconds,
		m.StoreDegraded,
	)

	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveOperation implements dispatcher.Metrics.
func (m *Metrics) ObserveOperation(op string, outcome string, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(op, outcome).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveLockWait implements dispatcher.Metrics.
func (m *Metrics) ObserveLockWait(path string, mode string, duration time.Duration) {
	m.LockWaitSeconds.WithLabelValues(path, mode).Observe(duration.Seconds())
}

// IncStoreDegraded implements dispatcher.Metrics.
func (m *Metrics) IncStoreDegraded(op string) {
	m.StoreDegraded.WithLabelValues(op).Inc()
}
