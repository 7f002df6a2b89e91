package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	httpRequestsTotal    *prometheus.CounterVec
	httpLatencySeconds   *prometheus.HistogramVec
	httpErrorsTotal      *prometheus.CounterVec
	transitionsTotal     *prometheus.CounterVec
	rejectedFilesTotal   *prometheus.CounterVec
	storageOperations    *prometheus.CounterVec
	lockWaitSeconds      prometheus.Histogram
	eventPublishFailures prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors of the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tugas_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tugas_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tugas_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tugas_submission_transitions_total",
			Help: "Submission operations by outcome (ok or the failure kind).",
		}, []string{"operation", "outcome"})

		rejectedFilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tugas_rejected_files_total",
			Help: "Files excluded from a submission.",
		}, []string{"reason"})

		storageOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tugas_storage_operations_total",
			Help: "File storage calls by operation and result.",
		}, []string{"operation", "result"})

		lockWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tugas_submission_lock_wait_seconds",
			Help:    "Time spent waiting for the per-submission lock.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		})

		eventPublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tugas_event_publish_failures_total",
			Help: "Submission events that could not be published.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			transitionsTotal,
			rejectedFilesTotal,
			storageOperations,
			lockWaitSeconds,
			eventPublishFailures,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// SubmissionTransitions counts lifecycle operations by outcome.
func SubmissionTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return transitionsTotal
}

// RejectedFiles counts files excluded by reconciliation.
func RejectedFiles() *prometheus.CounterVec {
	RegisterMetrics()
	return rejectedFilesTotal
}

// StorageOperations counts uploads and deletions.
func StorageOperations() *prometheus.CounterVec {
	RegisterMetrics()
	return storageOperations
}

// LockWait observes how long operations waited for the submission lock.
func LockWait() prometheus.Histogram {
	RegisterMetrics()
	return lockWaitSeconds
}

// EventPublishFailures counts events dropped after a transition committed.
func EventPublishFailures() prometheus.Counter {
	RegisterMetrics()
	return eventPublishFailures
}
