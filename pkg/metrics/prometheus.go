// Package metrics provides Prometheus metrics for the round controller service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// scoreBuckets spans the evaluator's fixed 0-100 scale.
var scoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} //nolint:gochecknoglobals // constant bucket layout

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	constLabels    map[string]string
	registry       prometheus.Registerer

	// Round lifecycle
	roundsStarted   prometheus.Counter
	roundsCompleted prometheus.Counter
	roundFailures   *prometheus.CounterVec
	exitReasons     *prometheus.CounterVec
	teamsFinalized  prometheus.Counter
	teamsFailed     prometheus.Counter
	activeTeams     prometheus.Gauge
	submissionScore prometheus.Histogram

	// Collaborator latency
	runtimeLatency    prometheus.Histogram
	evaluationLatency prometheus.Histogram
	judgmentLatency   prometheus.Histogram
	judgmentFallbacks prometheus.Counter

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors *prometheus.CounterVec
	workerCount        prometheus.Gauge
	workerBusy         prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:      "mixseek",
		subsystem:      "rounds",
		latencyBuckets: []float64{5, 25, 100, 250, 500, 1000, 5000, 15000, 60000, 300000},
		constLabels:    map[string]string{},
		registry:       prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

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

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.roundsStarted = m.counter("started_total", "Rounds started across all teams")
	m.roundsCompleted = m.counter("completed_total", "Rounds evaluated and recorded")
	m.roundFailures = m.counterVec("failures_total", "Round failures by kind", "kind")
	m.exitReasons = m.counterVec("exit_reasons_total", "Terminal rounds by exit reason", "reason")
	m.teamsFinalized = m.counter("teams_finalized_total", "Teams that finished with a final submission")
	m.teamsFailed = m.counter("teams_failed_total", "Teams whose controller failed fatally")
	m.activeTeams = m.gauge("active_teams", "Round controllers currently running")
	m.submissionScore = m.histogram("submission_score", "Evaluator scores on the 0-100 scale", scoreBuckets)

	m.runtimeLatency = m.histogram("team_runtime_latency_milliseconds", "Team runtime call latency", m.latencyBuckets)
	m.evaluationLatency = m.histogram("evaluation_latency_milliseconds", "Evaluator call latency", m.latencyBuckets)
	m.judgmentLatency = m.histogram("judgment_latency_milliseconds", "Judgment service call latency", m.latencyBuckets)
	m.judgmentFallbacks = m.counter("judgment_fallbacks_total", "Judgment failures answered with the conservative stop")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Store operation latency", m.latencyBuckets, "op")
	m.storeErrors = m.counterVec("store_errors_total", "Store operation failures", "op")

	m.queueSize = m.gauge("queue_size", "Team jobs waiting for a worker")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queued team jobs")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Rejected team jobs by cause", "cause")
	m.workerCount = m.gauge("worker_count", "Workers in the controller pool")
	m.workerBusy = m.gauge("worker_busy", "Workers currently running a controller")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration",
		[]float64{0.5, 1, 5, 10, 25, 50, 100, 250, 500, 1000}, "endpoint", "method", "status_code")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Live goroutines")
}

// RecordRoundStarted increments the started rounds counter.
func RecordRoundStarted() { globalManager.roundsStarted.Inc() }

// RecordRoundCompleted records a recorded round and its score.
func RecordRoundCompleted(score float64) {
	globalManager.roundsCompleted.Inc()
	globalManager.submissionScore.Observe(score)
}

// RecordRoundFailure counts a failed round by error kind.
func RecordRoundFailure(kind string) { globalManager.roundFailures.WithLabelValues(kind).Inc() }

// RecordExitReason counts a terminal round by its exit reason.
func RecordExitReason(reason string) { globalManager.exitReasons.WithLabelValues(reason).Inc() }

// RecordTeamFinalized counts a team that produced a final submission.
func RecordTeamFinalized() { globalManager.teamsFinalized.Inc() }

// RecordTeamFailed counts a team whose controller failed.
func RecordTeamFailed() { globalManager.teamsFailed.Inc() }

// AddActiveTeams adjusts the running controller gauge.
func AddActiveTeams(delta int) { globalManager.activeTeams.Add(float64(delta)) }

// RecordRuntimeLatency records a team runtime call in milliseconds.
func RecordRuntimeLatency(ms float64) { globalManager.runtimeLatency.Observe(ms) }

// RecordEvaluationLatency records an evaluator call in milliseconds.
func RecordEvaluationLatency(ms float64) { globalManager.evaluationLatency.Observe(ms) }

// RecordJudgmentLatency records a judgment call in milliseconds.
func RecordJudgmentLatency(ms float64) { globalManager.judgmentLatency.Observe(ms) }

// RecordJudgmentFallback counts a conservative stop after a judgment failure.
func RecordJudgmentFallback() { globalManager.judgmentFallbacks.Inc() }

// RecordStoreLatency records a store operation in milliseconds.
func RecordStoreLatency(op string, ms float64) { globalManager.storeLatency.WithLabelValues(op).Observe(ms) }

// RecordStoreError counts a failed store operation.
func RecordStoreError(op string) { globalManager.storeErrors.WithLabelValues(op).Inc() }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(cause string) { globalManager.queueEnqueueErrors.WithLabelValues(cause).Inc() }

// UpdateWorkerCount sets the pool size.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// AddWorkerBusy adjusts the busy worker gauge.
func AddWorkerBusy(delta int) { globalManager.workerBusy.Add(float64(delta)) }

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// UpdateSystemMemoryUsage sets heap allocation in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
