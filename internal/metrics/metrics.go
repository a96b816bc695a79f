// Package metrics provides Prometheus collectors for the retrieval service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "retriever"

var (
	// RequestsTotal counts API requests.
	// Labels: operation (ingest, query, delete), status (HTTP status code)
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	// OperationDuration tracks end-to-end latency of engine operations.
	// Labels: operation (ingest, query, delete)
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Duration of ingest, query and delete operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Rejections counts requests refused by the governor.
	// Labels: reason (rate_limited, quota_exceeded)
	Rejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "governor",
			Name:      "rejections_total",
			Help:      "Total number of requests rejected by rate or capacity limits",
		},
		[]string{"reason"},
	)

	// EmbeddingRetries counts retried embedding calls.
	EmbeddingRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "retries_total",
			Help:      "Total number of embedding calls retried after a transient failure",
		},
	)

	// EmbeddingFailures counts embedding calls that exhausted their retries.
	EmbeddingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "failures_total",
			Help:      "Total number of embedding calls that failed after all retries",
		},
	)

	// EmbeddingCacheHits counts embedding cache lookups.
	// Labels: result (hit, miss)
	EmbeddingCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "cache_lookups_total",
			Help:      "Total number of embedding cache lookups by result",
		},
		[]string{"result"},
	)

	// IngestRollbacks counts ingests undone after a partial write.
	IngestRollbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ingest_rollbacks_total",
			Help:      "Total number of ingests rolled back after a failure",
		},
	)

	// CompactionPurged counts tombstoned vectors physically removed.
	CompactionPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vector",
			Name:      "compaction_purged_total",
			Help:      "Total number of tombstoned vectors purged by compaction",
		},
	)

	// Documents tracks stored documents per project.
	// Labels: project
	Documents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "documents",
			Help:      "Number of committed documents per project",
		},
		[]string{"project"},
	)
)
