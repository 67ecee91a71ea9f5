// Package metrics provides Prometheus metrics for the sessiond correlation service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ingest
	batchesReceived prometheus.Counter
	batchesRejected *prometheus.CounterVec
	eventsReceived  *prometheus.CounterVec

	// Correlation
	sessionsStaged     prometheus.Counter
	sessionsPromoted   prometheus.Counter
	sessionsOutOfOrder prometheus.Counter

	// Async completion
	asyncSubmitted    *prometheus.CounterVec
	asyncFailed       *prometheus.CounterVec
	asyncLatency      *prometheus.HistogramVec
	pendingHandles    prometheus.Gauge
	trackerState      prometheus.Gauge
	breakerState      prometheus.Gauge
	expiredRowsPurged prometheus.Counter

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "sessiond",
		subsystem:        "correlator",
		histogramBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		refreshInterval:  defaultRefreshInterval,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// RefreshInterval is how often callers should refresh gauge metrics.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.batchesReceived = m.counter("batches_received_total", "Total number of event batches received")
	m.batchesRejected = m.counterVec("batches_rejected_total", "Batches rejected before any write, by reason", "reason")
	m.eventsReceived = m.counterVec("events_received_total", "Validated events by kind", "kind")

	m.sessionsStaged = m.counter("sessions_staged_total", "Events that left a session waiting for its pair")
	m.sessionsPromoted = m.counter("sessions_promoted_total", "Sessions handed to the completion tracker for promotion")
	m.sessionsOutOfOrder = m.counter("sessions_out_of_order_total", "Correlated sessions rejected because start was not before end")

	m.asyncSubmitted = m.counterVec("async_writes_submitted_total", "Asynchronous store writes submitted, by operation", "op")
	m.asyncFailed = m.counterVec("async_writes_failed_total", "Asynchronous store writes that failed, by operation", "op")
	m.asyncLatency = m.histogramVec("async_write_latency_milliseconds", "Time from submission to observed outcome", "op")
	m.pendingHandles = m.gauge("pending_handles", "Write handles queued for observation")
	m.trackerState = m.gauge("tracker_state", "Completion tracker state (0 running, 1 draining, 2 stopped)")
	m.breakerState = m.gauge("breaker_state", "Store write circuit breaker state (0 closed, 1 half-open, 2 open)")
	m.expiredRowsPurged = m.counter("expired_rows_purged_total", "Rows deleted by the TTL sweeper")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Synchronous store operation latency", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Store operation errors, by operation", "op")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "system_gc_pause_time_milliseconds",
		Help:    "GC pause time in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Ingest.

// RecordBatchReceived increments the received batches counter.
func RecordBatchReceived() { globalManager.batchesReceived.Inc() }

// RecordBatchRejected counts a batch rejected for reason (batch_size, schema).
func RecordBatchRejected(reason string) { globalManager.batchesRejected.WithLabelValues(reason).Inc() }

// RecordEventReceived counts a validated event of the given kind.
func RecordEventReceived(kind string) { globalManager.eventsReceived.WithLabelValues(kind).Inc() }

// Correlation.

// RecordSessionStaged counts an event that only staged its half.
func RecordSessionStaged() { globalManager.sessionsStaged.Inc() }

// RecordSessionPromoted counts a session handed over for promotion.
func RecordSessionPromoted() { globalManager.sessionsPromoted.Inc() }

// RecordSessionOutOfOrder counts an ordering rejection.
func RecordSessionOutOfOrder() { globalManager.sessionsOutOfOrder.Inc() }

// Async completion.

// RecordAsyncSubmitted counts a submitted asynchronous write.
func RecordAsyncSubmitted(op string) { globalManager.asyncSubmitted.WithLabelValues(op).Inc() }

// RecordAsyncFailed counts a failed asynchronous write.
func RecordAsyncFailed(op string) { globalManager.asyncFailed.WithLabelValues(op).Inc() }

// RecordAsyncLatency observes submission-to-outcome latency.
func RecordAsyncLatency(op string, latencyMs float64) {
	globalManager.asyncLatency.WithLabelValues(op).Observe(latencyMs)
}

// UpdatePendingHandles sets the number of queued write handles.
func UpdatePendingHandles(n int) { globalManager.pendingHandles.Set(float64(n)) }

// UpdateTrackerState sets the tracker lifecycle state.
func UpdateTrackerState(state int) { globalManager.trackerState.Set(float64(state)) }

// UpdateBreakerState sets the circuit breaker state.
func UpdateBreakerState(state int) { globalManager.breakerState.Set(float64(state)) }

// RecordExpiredRowsPurged adds n to the swept rows counter.
func RecordExpiredRowsPurged(n int64) { globalManager.expiredRowsPurged.Add(float64(n)) }

// Store.

// RecordStoreLatency observes a synchronous store operation.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(op string) { globalManager.storeErrors.WithLabelValues(op).Inc() }

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
