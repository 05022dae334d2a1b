// Package metrics provides Prometheus metrics for the listing sync service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal tracks finished sync runs by kind and status
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mlssync",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of finished sync runs by kind and status",
		},
		[]string{"kind", "status"},
	)

	// SyncRunDuration tracks sync run duration in seconds
	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mlssync",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of sync runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"kind"},
	)

	// SyncRecordsTotal tracks processed records by outcome
	SyncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mlssync",
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Total number of listing records processed by outcome",
		},
		[]string{"outcome"},
	)

	// SyncConflictsTotal tracks triggers rejected because a run was in progress
	SyncConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mlssync",
			Subsystem: "sync",
			Name:      "conflicts_total",
			Help:      "Total number of sync triggers rejected because a run was in progress",
		},
	)

	// SyncInProgress is 1 while a run is executing in this process
	SyncInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mlssync",
			Subsystem: "sync",
			Name:      "in_progress",
			Help:      "Whether a sync run is executing in this process",
		},
	)

	// UpstreamRequestsTotal tracks outbound MLS API requests
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mlssync",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total number of outbound MLS API requests",
		},
		[]string{"endpoint", "status_code"},
	)

	// UpstreamRequestDuration tracks outbound MLS API request duration
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mlssync",
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound MLS API requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	// KafkaMessagesPublished tracks listing events published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mlssync",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of listing events published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mlssync",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)
)

// RecordSyncRun records a finished sync run
func RecordSyncRun(kind, status string, durationSeconds float64) {
	SyncRunsTotal.WithLabelValues(kind, status).Inc()
	SyncRunDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordRecord records the outcome of one listing record: created, updated or failed
func RecordRecord(outcome string) {
	SyncRecordsTotal.WithLabelValues(outcome).Inc()
}

// RecordUpstreamRequest records an outbound MLS API request
func RecordUpstreamRequest(endpoint, statusCode string, durationSeconds float64) {
	UpstreamRequestsTotal.WithLabelValues(endpoint, statusCode).Inc()
	UpstreamRequestDuration.WithLabelValues(endpoint).Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
