package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Walker metrics
var (
	EntriesDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galactic_entries_discovered_total",
			Help: "Total number of filesystem entries emitted by the walker",
		},
		[]string{"kind"},
	)

	EntriesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galactic_entries_skipped_total",
			Help: "Total number of filesystem entries skipped by the walker",
		},
		[]string{"reason"}, // "excluded", "symlink", "other", "xdev"
	)

	TraversalErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galactic_traversal_errors_total",
			Help: "Total number of directory enumeration and stat failures",
		},
		[]string{"stage"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "galactic_queue_depth",
			Help: "Number of entries waiting in the walker-to-pool queue",
		},
	)
)

// Reconciliation metrics
var (
	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galactic_reconciliations_total",
			Help: "Total number of reconciliations by entry kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: "written", "unchanged", "failed"
	)

	ReconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "galactic_reconcile_duration_seconds",
			Help:    "Reconciliation duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		},
		[]string{"kind"},
	)

	ReconcilesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "galactic_reconciles_in_flight",
			Help: "Number of reconciliations currently admitted by the pool",
		},
	)
)

// Run metrics
var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galactic_runs_total",
			Help: "Total number of indexing runs by final status",
		},
		[]string{"status"},
	)

	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "galactic_last_run_timestamp",
			Help: "Unix timestamp of the last finished run",
		},
	)

	LastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "galactic_last_run_duration_seconds",
			Help: "Duration of the last finished run in seconds",
		},
	)

	RunInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "galactic_run_in_progress",
			Help: "Whether a run is currently in progress (1 = running, 0 = idle)",
		},
	)
)
