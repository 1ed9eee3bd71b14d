// Package metrics holds the Prometheus instruments shared by the
// dispatch and HTTP layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts handled chat turns by outcome: ok, fallback,
	// round_limit, oracle_unavailable, store_unavailable.
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsgraph",
		Subsystem: "chat",
		Name:      "turns_total",
		Help:      "Chat turns handled, by outcome.",
	}, []string{"outcome"})

	// ToolCallsTotal counts executed catalog functions by name and
	// status (ok, validation_error, not_found, error).
	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsgraph",
		Subsystem: "chat",
		Name:      "tool_calls_total",
		Help:      "Catalog function executions, by function and status.",
	}, []string{"function", "status"})

	// OracleRounds observes how many oracle round trips a turn took.
	OracleRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "opsgraph",
		Subsystem: "chat",
		Name:      "oracle_rounds",
		Help:      "Oracle call/response rounds per turn.",
		Buckets:   []float64{1, 2, 3, 4, 5},
	})

	// IngestedTotal counts nodes and edges written by connector runs.
	IngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsgraph",
		Subsystem: "ingest",
		Name:      "entities_total",
		Help:      "Entities upserted during ingestion, by connector and kind.",
	}, []string{"connector", "kind"})
)
