// Package metrics provides Prometheus metrics for the corvex server and the
// workspace engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corvex_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corvex_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Store metrics
	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corvex_store_operation_duration_seconds",
			Help:    "Store backend operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corvex_store_operations_total",
			Help: "Total store backend operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// Engine metrics
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corvex_engine_mutations_total",
			Help: "Optimistic mutations by operation and outcome",
		},
		[]string{"operation", "result"},
	)

	rollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corvex_engine_rollbacks_total",
			Help: "Rollbacks of failed mutations by how they were resolved",
		},
		[]string{"operation", "outcome"},
	)

	reconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "corvex_engine_reconcile_duration_seconds",
			Help:    "Time to fetch and apply a workspace snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	reconcilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corvex_engine_reconciles_total",
			Help: "Reconciliation passes by outcome",
		},
		[]string{"result"},
	)

	treeSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "corvex_engine_tree_size",
			Help: "Number of nodes in the local workspace tree",
		},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corvex_auth_attempts_total",
			Help: "Bearer token checks by result",
		},
		[]string{"result"},
	)

	// SSE metrics
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "corvex_sse_connections_active",
			Help: "Number of active change-feed subscribers",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corvex_sse_events_total",
			Help: "Change events published by type",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordStoreOperation records a store backend call.
func RecordStoreOperation(backend, operation string, duration time.Duration, success bool) {
	storeOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	storeOperationsTotal.WithLabelValues(backend, operation, status(success)).Inc()
}

// RecordMutation records the outcome of an engine mutation.
func RecordMutation(operation string, success bool) {
	mutationsTotal.WithLabelValues(operation, status(success)).Inc()
}

// RecordRollback records how a failed mutation was unwound:
// "reverted", "stale" (discarded, newer snapshot) or "reconciled".
func RecordRollback(operation, outcome string) {
	rollbacksTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordReconcile records a reconciliation pass.
func RecordReconcile(duration time.Duration, result string) {
	reconcileDuration.Observe(duration.Seconds())
	reconcilesTotal.WithLabelValues(result).Inc()
}

// RecordAuthAttempt records a token check.
func RecordAuthAttempt(success bool) {
	authAttemptsTotal.WithLabelValues(status(success)).Inc()
}

// SetTreeSize sets the local tree size gauge.
func SetTreeSize(n int) {
	treeSize.Set(float64(n))
}

// SetSSEConnectionsActive sets the number of active subscribers.
func SetSSEConnectionsActive(n int64) {
	sseConnectionsActive.Set(float64(n))
}

// RecordSSEEvent records a published change event.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

// Middleware records request count and latency per route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(r.Method, route, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
