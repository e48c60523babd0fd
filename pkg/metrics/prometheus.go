// Package metrics provides Prometheus metrics for the boardcheck verification service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// scoreBuckets cover the [0,1] similarity range.
var scoreBuckets = []float64{0.05, 0.1, 0.2, 0.3, 0.35, 0.4, 0.45, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0} //nolint:gochecknoglobals // fixed bucket layout

// defaultLatencyBuckets are expressed in milliseconds.
var defaultLatencyBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000} //nolint:gochecknoglobals // fixed bucket layout

// Manager owns every Prometheus collector the service exposes.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	constLabels    prometheus.Labels
	registry       prometheus.Registerer

	// Decision outcomes
	decisions          *prometheus.CounterVec
	cascadeOutcomes    *prometheus.CounterVec
	insufficientData   prometheus.Counter
	combinedScore      prometheus.Histogram
	verificationTiming prometheus.Histogram

	// Per-model signals
	calibrationClamps *prometheus.CounterVec
	ignoredReports    *prometheus.CounterVec
	inferenceLatency  *prometheus.HistogramVec
	inferenceErrors   *prometheus.CounterVec

	// Configuration lifecycle
	activeConfigVersion prometheus.Gauge
	configActivations   prometheus.Counter
	configBootstraps    prometheus.Counter
	configRejections    prometheus.Counter

	// Audit sink
	auditWriteLatency prometheus.Histogram
	auditWriteErrors  prometheus.Counter
	auditRetries      prometheus.Counter

	// Ingestion
	eventsAccepted  prometheus.Counter
	eventsDuplicate prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerCount             prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps default Go collectors out of /healthz.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "boardcheck",
		subsystem:      "verification",
		latencyBuckets: defaultLatencyBuckets,
		registry:       prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.decisions = auto.NewCounterVec(m.counterOpts("decisions_total", "Verification decisions by status and confidence level"), []string{"status", "confidence"})
	m.cascadeOutcomes = auto.NewCounterVec(m.counterOpts("cascade_outcomes_total", "Boarding events resolved on the fast path versus escalated to the ensemble"), []string{"path"})
	m.insufficientData = auto.NewCounter(m.counterOpts("insufficient_data_total", "Boarding events with no usable model report"))
	m.combinedScore = auto.NewHistogram(m.histogramOpts("combined_score", "Distribution of combined consensus scores", scoreBuckets))
	m.verificationTiming = auto.NewHistogram(m.histogramOpts("verification_latency_milliseconds", "End-to-end verification latency in milliseconds", m.latencyBuckets))

	m.calibrationClamps = auto.NewCounterVec(m.counterOpts("calibration_clamps_total", "Raw scores outside [0,1] clamped before calibration"), []string{"model"})
	m.ignoredReports = auto.NewCounterVec(m.counterOpts("ignored_reports_total", "Reports from models disabled or unknown in the active configuration"), []string{"model"})
	m.inferenceLatency = auto.NewHistogramVec(m.histogramOpts("inference_latency_milliseconds", "Per-model inference latency in milliseconds", m.latencyBuckets), []string{"model"})
	m.inferenceErrors = auto.NewCounterVec(m.counterOpts("inference_errors_total", "Per-model inference failures"), []string{"model", "reason"})

	m.activeConfigVersion = auto.NewGauge(m.gaugeOpts("active_config_version", "Version of the model configuration used by the latest decision"))
	m.configActivations = auto.NewCounter(m.counterOpts("config_activations_total", "Model configuration activations"))
	m.configBootstraps = auto.NewCounter(m.counterOpts("config_bootstraps_total", "Default model configuration bootstraps"))
	m.configRejections = auto.NewCounter(m.counterOpts("config_rejections_total", "Model configurations rejected by validation"))

	m.auditWriteLatency = auto.NewHistogram(m.histogramOpts("audit_write_latency_milliseconds", "Audit sink write latency in milliseconds", m.latencyBuckets))
	m.auditWriteErrors = auto.NewCounter(m.counterOpts("audit_write_errors_total", "Audit records that could not be persisted after retries"))
	m.auditRetries = auto.NewCounter(m.counterOpts("audit_write_retries_total", "Audit sink write retries"))

	m.eventsAccepted = auto.NewCounter(m.counterOpts("events_accepted_total", "Boarding events accepted for asynchronous verification"))
	m.eventsDuplicate = auto.NewCounter(m.counterOpts("events_duplicate_total", "Boarding events dropped as duplicates"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the boarding event queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum boarding event queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue utilization ratio (size / capacity)"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Boarding events enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Boarding events dequeued"))
	m.queueEnqueueErrors = auto.NewCounterVec(m.counterOpts("queue_enqueue_errors_total", "Rejected enqueue attempts by reason"), []string{"reason"})

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Number of verification workers"))
	m.workerMessagesPerSecond = auto.NewGauge(m.gaugeOpts("worker_messages_per_second", "Boarding events verified per second"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds", m.latencyBuckets))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Worker processing errors"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.latencyBuckets), []string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "HTTP errors by endpoint"), []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100}))
}

// RecordDecision counts a rendered decision and observes its combined score.
func RecordDecision(status, confidence string, combinedScore float64) {
	globalManager.decisions.WithLabelValues(status, confidence).Inc()
	globalManager.combinedScore.Observe(combinedScore)
}

// RecordFastPath counts a boarding event resolved by the fast model alone.
func RecordFastPath() {
	globalManager.cascadeOutcomes.WithLabelValues("fast_path").Inc()
}

// RecordEscalation counts a boarding event escalated to the full ensemble.
func RecordEscalation() {
	globalManager.cascadeOutcomes.WithLabelValues("escalated").Inc()
}

// RecordInsufficientData counts a boarding event left without usable reports.
func RecordInsufficientData() {
	globalManager.insufficientData.Inc()
}

// RecordVerificationLatency records end-to-end verification latency.
func RecordVerificationLatency(latencyMs float64) {
	globalManager.verificationTiming.Observe(latencyMs)
}

// RecordCalibrationClamp counts an out-of-range raw score from model.
func RecordCalibrationClamp(model string) {
	globalManager.calibrationClamps.WithLabelValues(model).Inc()
}

// RecordIgnoredReport counts a report from a model that the config does not count.
func RecordIgnoredReport(model string) {
	globalManager.ignoredReports.WithLabelValues(model).Inc()
}

// RecordInferenceLatency records a model's inference latency.
func RecordInferenceLatency(model string, latencyMs float64) {
	globalManager.inferenceLatency.WithLabelValues(model).Observe(latencyMs)
}

// RecordInferenceError counts a model inference failure.
func RecordInferenceError(model, reason string) {
	globalManager.inferenceErrors.WithLabelValues(model, reason).Inc()
}

// UpdateActiveConfigVersion publishes the config version used by the latest decision.
func UpdateActiveConfigVersion(version int) {
	globalManager.activeConfigVersion.Set(float64(version))
}

// RecordConfigActivation counts a config activation.
func RecordConfigActivation() {
	globalManager.configActivations.Inc()
}

// RecordConfigBootstrap counts a default config bootstrap.
func RecordConfigBootstrap() {
	globalManager.configBootstraps.Inc()
}

// RecordConfigRejection counts a config rejected by validation.
func RecordConfigRejection() {
	globalManager.configRejections.Inc()
}

// RecordAuditWriteLatency records audit sink write latency.
func RecordAuditWriteLatency(latencyMs float64) {
	globalManager.auditWriteLatency.Observe(latencyMs)
}

// RecordAuditWriteError counts an audit record lost after retries.
func RecordAuditWriteError() {
	globalManager.auditWriteErrors.Inc()
}

// RecordAuditRetry counts an audit write retry.
func RecordAuditRetry() {
	globalManager.auditRetries.Inc()
}

// RecordEventAccepted counts a boarding event accepted for async processing.
func RecordEventAccepted() {
	globalManager.eventsAccepted.Inc()
}

// RecordEventDuplicate counts a duplicate boarding event.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(ratio float64) {
	globalManager.queueUtilization.Set(ratio)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the worker throughput.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByEndpoint records an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap bytes allocated.
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
