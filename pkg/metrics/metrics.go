// Package metrics exposes Prometheus instrumentation for transfer runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coursevault"

var (
	// ChunksSent counts chunks acknowledged by the vault.
	ChunksSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_sent_total",
		Help:      "Chunks successfully delivered to the vault.",
	})

	// ChunksFailed counts chunk uploads that did not result in delivery.
	ChunksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_failed_total",
		Help:      "Chunk uploads that failed or were rejected.",
	})

	// BytesSent counts original (pre-encoding) bytes delivered.
	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_sent_total",
		Help:      "Original archive bytes delivered to the vault.",
	})

	// TransfersCompleted counts archives fully transferred and confirmed.
	TransfersCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_completed_total",
		Help:      "Archives fully transferred and confirmed complete.",
	})

	// TransfersErrored counts archives that entered the error state.
	TransfersErrored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_errored_total",
		Help:      "Archives that entered the error state during a run.",
	})

	// RunDuration observes wall-clock duration of whole runs.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of transfer runs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	})
)
