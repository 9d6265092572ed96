// Package metrics exposes Prometheus collectors for index operations
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "docsentry"

	IndexKnowledge    = "knowledge"
	IndexAuthenticity = "authenticity"
)

var (
	IndexVectors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "vectors",
			Help:      "Number of vectors currently held by an index",
		},
		[]string{"index"},
	)

	IndexSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "search_seconds",
			Help:      "Exact nearest-neighbour search duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"index"},
	)

	// outcome: embedded | failed
	KnowledgeChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "knowledge",
			Name:      "chunks_total",
			Help:      "Document chunks processed during ingestion",
		},
		[]string{"outcome"},
	)

	// outcome: answered | empty_index | no_context | error
	KnowledgeQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "knowledge",
			Name:      "queries_total",
			Help:      "Questions answered against the knowledge base",
		},
		[]string{"outcome"},
	)

	// outcome: trained | failed
	AuthenticityTrainings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authenticity",
			Name:      "trainings_total",
			Help:      "Authentic exemplar training attempts",
		},
		[]string{"outcome"},
	)

	// verdict: authentic | suspect | untrained | unreadable
	AuthenticityVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authenticity",
			Name:      "verifications_total",
			Help:      "Document authenticity verifications by verdict",
		},
		[]string{"verdict"},
	)
)

// WriteTextfile dumps the default registry in the node-exporter textfile format
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
