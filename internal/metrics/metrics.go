// Package metrics provides Prometheus metrics for the enrichment pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Catalog cache metrics
	CacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bom_catalog_cache_events_total",
			Help: "Catalog cache lookups by result (hit, miss, corrupt, error, write_error)",
		},
		[]string{"result"},
	)

	// Directory call metrics
	CatalogLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bom_catalog_lookups_total",
			Help: "Catalog lookups by outcome",
		},
		[]string{"outcome"},
	)

	CatalogInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bom_catalog_calls_in_flight",
			Help: "Outbound directory calls currently holding a limiter slot",
		},
	)

	CatalogCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bom_catalog_call_duration_seconds",
			Help:    "Duration of outbound directory calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Inference metrics
	InferenceCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bom_inference_calls_total",
			Help: "Structured inference calls by task and status",
		},
		[]string{"task", "status"},
	)

	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bom_inference_duration_seconds",
			Help:    "Duration of structured inference calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"task"},
	)

	// Batch metrics
	RowResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bom_row_results_total",
			Help: "Row results by kind (enriched, parsed, error)",
		},
		[]string{"kind"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bom_batch_duration_seconds",
			Help:    "Wall time of a batch run",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	// Evaluation metrics
	Evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bom_evaluations_total",
			Help: "Alternative evaluations by verdict (valid, invalid, not_found, error)",
		},
		[]string{"verdict"},
	)
)
