// Package metrics provides Prometheus metrics for the pitchelo rating service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Votes and rounds
	votesRecorded     *prometheus.CounterVec
	votesFailed       *prometheus.CounterVec
	voteRetries       *prometheus.CounterVec
	voteLatency       *prometheus.HistogramVec
	ratingTransfer    prometheus.Histogram
	matchupsIssued    *prometheus.CounterVec
	selectionFailures *prometheus.CounterVec
	sessionsActive    prometheus.Gauge
	consumedMatchups  prometheus.Gauge

	// Rating store
	storeLatency     *prometheus.HistogramVec
	storeErrors      *prometheus.CounterVec
	storeConflicts   *prometheus.CounterVec
	ratedCandidates  *prometheus.GaugeVec
	breakerState     *prometheus.GaugeVec
	breakerTransits  *prometheus.CounterVec
	writerQueueDepth *prometheus.GaugeVec
	writerRejected   *prometheus.CounterVec
	writerLatency    *prometheus.HistogramVec

	// Candidate pool
	poolCache *prometheus.CounterVec
	poolSize  *prometheus.GaugeVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	rateLimited         *prometheus.CounterVec

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

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pitchelo",
		subsystem:        "ratings",
		histogramBuckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.votesRecorded = m.counterVec("votes_recorded_total", "Votes applied to the rating store", "category")
	m.votesFailed = m.counterVec("votes_failed_total", "Votes rejected or not recorded, by reason", "category", "reason")
	m.voteRetries = m.counterVec("vote_retries_total", "Vote pipeline retries after a store conflict", "category")
	m.voteLatency = m.histogramVec("vote_latency_milliseconds", "End-to-end vote pipeline latency", "category")
	m.ratingTransfer = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "rating_transfer_points",
		Help:        "Rating points moved from loser to winner per vote",
		Buckets:     []float64{1, 2, 4, 8, 12, 16, 20, 24, 28, 32},
		ConstLabels: m.constLabels,
	})
	m.matchupsIssued = m.counterVec("matchups_issued_total", "Matchups handed to voters", "category")
	m.selectionFailures = m.counterVec("selection_failures_total", "Matchup selections that failed, by reason", "category", "reason")
	m.sessionsActive = m.gauge("sessions_active", "Voter sessions currently held in memory")
	m.consumedMatchups = m.gauge("consumed_matchups", "Matchup ids tracked by the consumed-matchup ledger")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Rating store operation latency", "backend", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Rating store errors by kind", "backend", "op", "kind")
	m.storeConflicts = m.counterVec("store_conflicts_total", "Optimistic concurrency conflicts detected by the store", "backend")
	m.ratedCandidates = m.gaugeVec("rated_candidates", "Candidates with a stored rating", "category")
	m.breakerState = m.gaugeVec("breaker_state", "Circuit breaker state (0 closed, 1 half-open, 2 open)", "name")
	m.breakerTransits = m.counterVec("breaker_transitions_total", "Circuit breaker state transitions", "name", "from", "to")
	m.writerQueueDepth = m.gaugeVec("writer_queue_depth", "Pending jobs in the per-category writer queue", "category")
	m.writerRejected = m.counterVec("writer_rejected_total", "Jobs rejected by a full or stopped writer queue", "category", "reason")
	m.writerLatency = m.histogramVec("writer_wait_milliseconds", "Time a job waited in the writer queue before running", "category")

	m.poolCache = m.counterVec("pool_cache_total", "Candidate pool cache lookups by result", "category", "result")
	m.poolSize = m.gaugeVec("pool_size", "Candidates in the most recent pool for a category", "category")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")
	m.rateLimited = m.counterVec("rate_limited_total", "Requests rejected by the client rate limiter", "endpoint")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "Average GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.constLabels,
	})
}

// Vote metrics.

// RecordVoteRecorded counts an applied vote.
func RecordVoteRecorded(category string) {
	globalManager.votesRecorded.WithLabelValues(category).Inc()
}

// RecordVoteFailed counts a vote that was rejected or not recorded.
func RecordVoteFailed(category, reason string) {
	globalManager.votesFailed.WithLabelValues(category, reason).Inc()
}

// RecordVoteRetry counts a pipeline retry after a conflict.
func RecordVoteRetry(category string) {
	globalManager.voteRetries.WithLabelValues(category).Inc()
}

// RecordVoteLatency records the end-to-end vote latency in milliseconds.
func RecordVoteLatency(category string, latencyMs float64) {
	globalManager.voteLatency.WithLabelValues(category).Observe(latencyMs)
}

// RecordRatingTransfer records the points moved by one vote.
func RecordRatingTransfer(points float64) {
	globalManager.ratingTransfer.Observe(points)
}

// RecordMatchupIssued counts a matchup handed to a voter.
func RecordMatchupIssued(category string) {
	globalManager.matchupsIssued.WithLabelValues(category).Inc()
}

// RecordSelectionFailure counts a failed matchup selection.
func RecordSelectionFailure(category, reason string) {
	globalManager.selectionFailures.WithLabelValues(category, reason).Inc()
}

// UpdateSessionsActive sets the number of live sessions.
func UpdateSessionsActive(count int) {
	globalManager.sessionsActive.Set(float64(count))
}

// UpdateConsumedMatchups sets the size of the consumed-matchup ledger.
func UpdateConsumedMatchups(count int64) {
	globalManager.consumedMatchups.Set(float64(count))
}

// Store metrics.

// RecordStoreLatency records a store operation latency in milliseconds.
func RecordStoreLatency(backend, op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordStoreError counts a store error.
func RecordStoreError(backend, op, kind string) {
	globalManager.storeErrors.WithLabelValues(backend, op, kind).Inc()
}

// RecordStoreConflict counts an optimistic concurrency conflict.
func RecordStoreConflict(backend string) {
	globalManager.storeConflicts.WithLabelValues(backend).Inc()
}

// UpdateRatedCandidates sets the number of stored rows for a category.
func UpdateRatedCandidates(category string, count int) {
	globalManager.ratedCandidates.WithLabelValues(category).Set(float64(count))
}

// UpdateBreakerState sets the numeric breaker state.
func UpdateBreakerState(name string, state float64) {
	globalManager.breakerState.WithLabelValues(name).Set(state)
}

// RecordBreakerTransition counts a breaker state change.
func RecordBreakerTransition(name, from, to string) {
	globalManager.breakerTransits.WithLabelValues(name, from, to).Inc()
}

// UpdateWriterQueueDepth sets the pending job count of a category writer.
func UpdateWriterQueueDepth(category string, depth int) {
	globalManager.writerQueueDepth.WithLabelValues(category).Set(float64(depth))
}

// RecordWriterRejected counts a job refused by a writer queue.
func RecordWriterRejected(category, reason string) {
	globalManager.writerRejected.WithLabelValues(category, reason).Inc()
}

// RecordWriterWait records how long a job waited before running.
func RecordWriterWait(category string, latencyMs float64) {
	globalManager.writerLatency.WithLabelValues(category).Observe(latencyMs)
}

// Pool metrics.

// RecordPoolCache counts a pool cache lookup result: hit, miss, stale or error.
func RecordPoolCache(category, result string) {
	globalManager.poolCache.WithLabelValues(category, result).Inc()
}

// UpdatePoolSize sets the size of the latest pool for a category.
func UpdatePoolSize(category string, size int) {
	globalManager.poolSize.WithLabelValues(category).Set(float64(size))
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordRateLimited counts a request refused by the rate limiter.
func RecordRateLimited(endpoint string) {
	globalManager.rateLimited.WithLabelValues(endpoint).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
