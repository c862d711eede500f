// Package metrics provides Prometheus metrics for the krooster stats service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector registered by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Roster fetching
	resolves      *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchLatency  prometheus.Histogram
	duplicateAccs prometheus.Counter

	// Aggregation
	recordsEvaluated prometheus.Counter
	recordsMalformed prometheus.Counter
	catalogOperators prometheus.Gauge
	catalogCache     *prometheus.CounterVec

	// Runs
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	runLastUnix   prometheus.Gauge
	runLastCounts prometheus.Gauge

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount prometheus.Gauge

	// Store
	storeLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by package-level helpers

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // exported through GetRegistry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "krooster",
		subsystem:        "stats",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one block per collector
	auto := promauto.With(m.registry)

	m.resolves = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "handle_resolves_total",
		Help:      "Handle to account resolutions by outcome",
	}, []string{"outcome"})

	m.fetches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "roster_fetches_total",
		Help:      "Roster fetches by outcome",
	}, []string{"outcome"})

	m.fetchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "roster_fetch_latency_milliseconds",
		Help:      "Roster fetch latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.duplicateAccs = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "duplicate_accounts_total",
		Help:      "Handles skipped because their account was already scheduled",
	})

	m.recordsEvaluated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_evaluated_total",
		Help:      "Progress records evaluated into milestone flags",
	})

	m.recordsMalformed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_malformed_total",
		Help:      "Progress records rejected as malformed",
	})

	m.catalogOperators = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "catalog_operators",
		Help:      "Operators in the loaded catalog",
	})

	m.catalogCache = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "catalog_cache_total",
		Help:      "Catalog cache lookups by result",
	}, []string{"result"})

	m.runs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Aggregation runs by status",
	}, []string{"status"})

	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_duration_milliseconds",
		Help:      "Aggregation run duration in milliseconds",
		Buckets:   prometheus.ExponentialBuckets(100, 2, 12),
	})

	m.runLastUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_last_unix",
		Help:      "Unix timestamp of the last finished run",
	})

	m.runLastCounts = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_last_accounts",
		Help:      "Accounts counted by the last finished run",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Fetch jobs waiting in the queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Maximum fetch queue capacity",
	})

	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_total",
		Help:      "Fetch jobs enqueued",
	})

	m.queueDequeued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_dequeue_total",
		Help:      "Fetch jobs dequeued",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_errors_total",
		Help:      "Fetch jobs rejected by the queue",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Fetch workers currently running",
	})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_latency_milliseconds",
		Help:      "Run store operation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"op"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_total",
		Help:      "Errors by component and type",
	}, []string{"component", "type"})
}

// RecordResolve counts one handle resolution. outcome is ok, not_found or error.
func (m *Manager) RecordResolve(outcome string) { m.resolves.WithLabelValues(outcome).Inc() }

// RecordFetch counts one roster fetch and its latency.
func (m *Manager) RecordFetch(outcome string, latencyMs float64) {
	m.fetches.WithLabelValues(outcome).Inc()
	m.fetchLatency.Observe(latencyMs)
}

func (m *Manager) RecordDuplicateAccount() { m.duplicateAccs.Inc() }

func (m *Manager) RecordRecordsEvaluated(n int) { m.recordsEvaluated.Add(float64(n)) }

func (m *Manager) RecordRecordsMalformed(n int) { m.recordsMalformed.Add(float64(n)) }

func (m *Manager) UpdateCatalogOperators(n int) { m.catalogOperators.Set(float64(n)) }

// RecordCatalogCache counts a cache lookup. result is hit, miss or error.
func (m *Manager) RecordCatalogCache(result string) { m.catalogCache.WithLabelValues(result).Inc() }

// RecordRun counts a finished run.
func (m *Manager) RecordRun(status string, durationMs float64, accounts int, finishedUnix int64) {
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(durationMs)
	m.runLastUnix.Set(float64(finishedUnix))
	m.runLastCounts.Set(float64(accounts))
}

func (m *Manager) UpdateQueueSize(size int) { m.queueSize.Set(float64(size)) }

func (m *Manager) UpdateQueueCapacity(capacity int) { m.queueCapacity.Set(float64(capacity)) }

func (m *Manager) RecordQueueEnqueue() { m.queueEnqueued.Inc() }

func (m *Manager) RecordQueueDequeue() { m.queueDequeued.Inc() }

func (m *Manager) RecordQueueEnqueueError() { m.queueEnqueueErrors.Inc() }

func (m *Manager) UpdateWorkerCount(n int) { m.workerCount.Set(float64(n)) }

func (m *Manager) RecordStoreLatency(op string, latencyMs float64) {
	m.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

func (m *Manager) RecordErrorByComponent(component, errorType string) {
	m.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// Package-level helpers backed by the global manager.

func RecordResolve(outcome string)                  { globalManager.RecordResolve(outcome) }
func RecordFetch(outcome string, latencyMs float64) { globalManager.RecordFetch(outcome, latencyMs) }
func RecordDuplicateAccount()                       { globalManager.RecordDuplicateAccount() }
func RecordRecordsEvaluated(n int)                  { globalManager.RecordRecordsEvaluated(n) }
func RecordRecordsMalformed(n int)                  { globalManager.RecordRecordsMalformed(n) }
func UpdateCatalogOperators(n int)                  { globalManager.UpdateCatalogOperators(n) }
func RecordCatalogCache(result string)              { globalManager.RecordCatalogCache(result) }
func UpdateQueueSize(size int)                      { globalManager.UpdateQueueSize(size) }
func UpdateQueueCapacity(capacity int)              { globalManager.UpdateQueueCapacity(capacity) }
func RecordQueueEnqueue()                           { globalManager.RecordQueueEnqueue() }
func RecordQueueDequeue()                           { globalManager.RecordQueueDequeue() }
func RecordQueueEnqueueError()                      { globalManager.RecordQueueEnqueueError() }
func UpdateWorkerCount(n int)                       { globalManager.UpdateWorkerCount(n) }

func RecordRun(status string, durationMs float64, accounts int, finishedUnix int64) {
	globalManager.RecordRun(status, durationMs, accounts, finishedUnix)
}

func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.RecordStoreLatency(op, latencyMs)
}

func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode, durationMs)
}

func RecordErrorByComponent(component, errorType string) {
	globalManager.RecordErrorByComponent(component, errorType)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
