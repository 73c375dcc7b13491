// Package metrics provides Prometheus metrics for the finsight service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector used by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ingestion
	articlesIngested  prometheus.Counter
	articlesDuplicate prometheus.Counter

	// Article analysis
	packetsCreated     prometheus.Counter
	packetsImportant   prometheus.Counter
	packetConflicts    prometheus.Counter
	analysisLatency    prometheus.Histogram
	analysisErrors     *prometheus.CounterVec
	clusterMerges      prometheus.Counter
	fingerprintIndexSz prometheus.Gauge

	// Portfolio analytics
	portfolioAssets   *prometheus.CounterVec
	portfolioDuration *prometheus.HistogramVec

	// External collaborators
	marketDataRequests *prometheus.CounterVec
	marketDataLatency  prometheus.Histogram
	llmRequests        *prometheus.CounterVec
	llmLatency         *prometheus.HistogramVec

	// Composition & chat
	insightCompositions *prometheus.CounterVec
	chatTurns           prometheus.Counter
	chatSessions        prometheus.Gauge

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Repository
	repositoryQueryLatency *prometheus.HistogramVec
	repositoryArticles     prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "finsight",
		subsystem:        "pipeline",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.articlesIngested = m.counter("articles_ingested_total", "Articles accepted for analysis")
	m.articlesDuplicate = m.counter("articles_duplicate_total", "Articles rejected at ingest because the URL was already seen")

	m.packetsCreated = m.counter("analysis_packets_total", "Analysis packets persisted")
	m.packetsImportant = m.counter("analysis_packets_important_total", "Analysis packets flagged important")
	m.packetConflicts = m.counter("analysis_conflicts_total", "Analysis attempts rejected because a packet already existed")
	m.analysisLatency = m.histogram("analysis_latency_milliseconds", "End-to-end article analysis latency")
	m.analysisErrors = m.counterVec("analysis_errors_total", "Article analysis failures by stage", "stage")
	m.clusterMerges = m.counter("cluster_merges_total", "Articles joined to an existing same-event cluster")
	m.fingerprintIndexSz = m.gauge("fingerprint_index_size", "Fingerprints held in the recent-window index")

	m.portfolioAssets = m.counterVec("portfolio_assets_total", "Per-asset analytics results by mode and outcome", "mode", "outcome")
	m.portfolioDuration = m.histogramVec("portfolio_duration_milliseconds", "Portfolio analytics batch duration", "mode")

	m.marketDataRequests = m.counterVec("market_data_requests_total", "Market data provider calls", "endpoint", "outcome")
	m.marketDataLatency = m.histogram("market_data_latency_milliseconds", "Market data provider call latency")
	m.llmRequests = m.counterVec("llm_requests_total", "Language model calls", "provider", "outcome")
	m.llmLatency = m.histogramVec("llm_latency_milliseconds", "Language model call latency", "provider")

	m.insightCompositions = m.counterVec("insight_compositions_total", "Insight compositions by profile and outcome", "profile", "outcome")
	m.chatTurns = m.counter("chat_turns_total", "Assistant turns produced")
	m.chatSessions = m.gauge("chat_sessions", "Live conversation sessions")

	m.queueSize = m.gauge("queue_size", "Current size of the ingest queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum ingest queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (size / capacity)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Articles enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Articles dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Enqueue failures")

	m.workerCount = m.gauge("worker_count", "Configured analysis workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently analyzing an article")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency")
	m.workerErrors = m.counter("worker_errors_total", "Worker processing failures")

	m.repositoryQueryLatency = m.histogramVec("repository_query_latency_milliseconds", "Repository operation latency", "op")
	m.repositoryArticles = m.gauge("repository_articles", "Articles held by the repository")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")
}

// RecordArticleIngested increments the ingested articles counter.
func RecordArticleIngested() { globalManager.articlesIngested.Inc() }

// RecordArticleDuplicate increments the duplicate ingest counter.
func RecordArticleDuplicate() { globalManager.articlesDuplicate.Inc() }

// RecordPacketCreated counts a persisted packet and whether it was important.
func RecordPacketCreated(important bool) {
	globalManager.packetsCreated.Inc()
	if important {
		globalManager.packetsImportant.Inc()
	}
}

// RecordPacketConflict counts an analysis attempt rejected as a duplicate.
func RecordPacketConflict() { globalManager.packetConflicts.Inc() }

// RecordAnalysisLatency records analysis latency in milliseconds.
func RecordAnalysisLatency(latencyMs float64) { globalManager.analysisLatency.Observe(latencyMs) }

// RecordAnalysisError counts an analysis failure at the given stage.
func RecordAnalysisError(stage string) { globalManager.analysisErrors.WithLabelValues(stage).Inc() }

// RecordClusterMerge counts an article joining an existing cluster.
func RecordClusterMerge() { globalManager.clusterMerges.Inc() }

// UpdateFingerprintIndexSize sets the fingerprint index size.
func UpdateFingerprintIndexSize(n int) { globalManager.fingerprintIndexSz.Set(float64(n)) }

// RecordPortfolioAsset counts one per-asset analytics result.
func RecordPortfolioAsset(mode, outcome string) {
	globalManager.portfolioAssets.WithLabelValues(mode, outcome).Inc()
}

// RecordPortfolioDuration records a batch duration in milliseconds.
func RecordPortfolioDuration(mode string, latencyMs float64) {
	globalManager.portfolioDuration.WithLabelValues(mode).Observe(latencyMs)
}

// RecordMarketDataRequest records one provider call.
func RecordMarketDataRequest(endpoint, outcome string, latencyMs float64) {
	globalManager.marketDataRequests.WithLabelValues(endpoint, outcome).Inc()
	globalManager.marketDataLatency.Observe(latencyMs)
}

// RecordLLMRequest records one language model call.
func RecordLLMRequest(provider, outcome string, latencyMs float64) {
	globalManager.llmRequests.WithLabelValues(provider, outcome).Inc()
	globalManager.llmLatency.WithLabelValues(provider).Observe(latencyMs)
}

// RecordInsightComposition counts a composition attempt.
func RecordInsightComposition(profile, outcome string) {
	globalManager.insightCompositions.WithLabelValues(profile, outcome).Inc()
}

// RecordChatTurn counts an assistant turn.
func RecordChatTurn() { globalManager.chatTurns.Inc() }

// UpdateChatSessions sets the number of live sessions.
func UpdateChatSessions(n int) { globalManager.chatSessions.Set(float64(n)) }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordRepositoryLatency records a repository operation latency.
func RecordRepositoryLatency(op string, latencyMs float64) {
	globalManager.repositoryQueryLatency.WithLabelValues(op).Observe(latencyMs)
}

// UpdateRepositoryArticles sets the stored article count.
func UpdateRepositoryArticles(n int) { globalManager.repositoryArticles.Set(float64(n)) }

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

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
