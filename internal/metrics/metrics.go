package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchOutcomes counts remote fetches by outcome kind
	FetchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgg_enrich_fetch_outcomes_total",
			Help: "Total number of BGG fetches by outcome",
		},
		[]string{"outcome"},
	)

	// FetchDuration tracks remote fetch latency
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bgg_enrich_fetch_duration_seconds",
			Help:    "BGG fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RowsEmitted counts accumulated output rows by where their payload came from
	RowsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgg_enrich_rows_total",
			Help: "Total number of output rows emitted",
		},
		[]string{"source"},
	)

	// ConsecutiveFailures is the current failure streak of the enrichment driver
	ConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bgg_enrich_consecutive_failures",
			Help: "Current number of consecutive failed fetches",
		},
	)

	// Flushes counts output snapshots written
	Flushes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bgg_enrich_flushes_total",
			Help: "Total number of output snapshots written",
		},
	)

	// LoadedRows counts rows handled by the database loader
	LoadedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgg_load_rows_total",
			Help: "Total number of dataset rows handled by the loader",
		},
		[]string{"result"},
	)
)
