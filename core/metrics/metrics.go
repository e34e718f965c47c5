// Package metrics exposes Prometheus counters for reconciliation runs.
package metrics

import (
	"record-sync/core/reconcile"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "record_sync_runs_total",
		Help: "Reconciliation runs by outcome",
	}, []string{"source", "outcome", "dry_run"})

	recordsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "record_sync_records_written_total",
		Help: "Records copied between stores by direction",
	}, []string{"source", "direction"})

	conflictsResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "record_sync_conflicts_resolved_total",
		Help: "Identities whose conflict resolution changed a store",
	}, []string{"source"})

	skippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "record_sync_skipped_total",
		Help: "Identities skipped by phase",
	}, []string{"source", "phase"})

	runDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "record_sync_run_duration_seconds",
		Help:    "Wall time of reconciliation runs",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
	}, []string{"source"})

	lastRunTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "record_sync_last_run_timestamp_seconds",
		Help: "Unix time of the last finished run",
	}, []string{"source", "outcome"})
)

// Observe records a finished run. Dry-run writes are projections and are not
// counted as written.
func Observe(report *reconcile.Report) {
	if report == nil {
		return
	}
	source := report.Source
	dryRun := "false"
	if report.DryRun {
		dryRun = "true"
	}

	runsTotal.WithLabelValues(source, string(report.Outcome), dryRun).Inc()
	runDurationHistogram.WithLabelValues(source).Observe(report.ElapsedSeconds)
	lastRunTimestamp.WithLabelValues(source, string(report.Outcome)).Set(float64(report.Timestamp.Unix()))

	if !report.DryRun {
		recordsWrittenTotal.WithLabelValues(source, "to_right").Add(float64(report.Writes.ToRight))
		recordsWrittenTotal.WithLabelValues(source, "to_left").Add(float64(report.Writes.ToLeft))
		conflictsResolvedTotal.WithLabelValues(source).Add(float64(report.ConflictsResolved))
	}
	for _, s := range report.SkippedIdentities {
		skippedTotal.WithLabelValues(source, string(s.Phase)).Inc()
	}
}
