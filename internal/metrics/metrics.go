// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "localrag"

// Generation metrics.
var (
	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Generation requests served by the model worker",
		},
		[]string{"purpose", "status"}, // status: ok / error / skipped
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Backend generation time in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"purpose"},
	)

	GenerationQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generation_queue_depth",
			Help:      "Generation requests waiting for the model worker",
		},
	)
)

// Agent and retrieval metrics.
var (
	AgentRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_runs_total",
			Help:      "Agent runs by how they ended",
		},
		[]string{"outcome"}, // respond / direct / exhausted / error
	)

	AgentStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_steps_total",
			Help:      "Executed agent steps by tool and command origin",
		},
		[]string{"tool", "origin"},
	)

	MapVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "map_verdicts_total",
			Help:      "Per-chunk map stage verdicts",
		},
		[]string{"verdict"}, // relevant / irrelevant / malformed
	)

	FallbackActivationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filename_fallback_total",
			Help:      "Retrievals that fell back to filename matching",
		},
	)

	LowConfidenceTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "low_confidence_answers_total",
			Help:      "Answers annotated with the low confidence caveat",
		},
	)
)

// Indexing metrics.
var (
	IndexedDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_documents_total",
			Help:      "Documents processed by the indexer",
		},
		[]string{"status"}, // ok / error
	)

	IndexedChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_chunks_total",
			Help:      "Chunks written to the vector store",
		},
	)
)

// Protocol metrics.
var (
	ProtocolRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_requests_total",
			Help:      "NDJSON protocol requests by method and result",
		},
		[]string{"method", "status"}, // status: ok / error / panic
	)
)

var registerOnce sync.Once

// Register registers every collector of this package with the default
// registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			GenerationRequestsTotal,
			GenerationDuration,
			GenerationQueueDepth,
			AgentRunsTotal,
			AgentStepsTotal,
			MapVerdictsTotal,
			FallbackActivationsTotal,
			LowConfidenceTotal,
			IndexedDocumentsTotal,
			IndexedChunksTotal,
			ProtocolRequestsTotal,
			httpRequestDuration,
			httpRequestsTotal,
		)
	})
}
