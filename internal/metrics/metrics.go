package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request latency (seconds)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kart_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"method", "path", "status"},
	)

	// Inference backend latency (seconds)
	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kart_inference_duration_seconds",
			Help:    "Inference backend call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"backend", "outcome"}, // outcome: success, error, timeout
	)

	PredictionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kart_predictions_total",
			Help: "Total number of classifications by top label",
		},
		[]string{"label"},
	)

	ArchiveUploadCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kart_archive_uploads_total",
			Help: "Total number of archived uploads",
		},
		[]string{"status"}, // status: success, failed, dropped
	)
)

// RecordHTTPRequestDuration records one HTTP request
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordInference records one backend call
func RecordInference(backend, outcome string, duration time.Duration) {
	InferenceDuration.WithLabelValues(backend, outcome).Observe(duration.Seconds())
}

// IncrementPrediction counts a classification by its top label
func IncrementPrediction(label string) {
	PredictionCount.WithLabelValues(label).Inc()
}

// IncrementArchiveUpload counts an archive attempt by status
func IncrementArchiveUpload(status string) {
	ArchiveUploadCount.WithLabelValues(status).Inc()
}
