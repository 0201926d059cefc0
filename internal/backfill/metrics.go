package backfill

import (
	"github.com/prometheus/client_golang/prometheus"

	"example.com/training/internal/observability"
	"example.com/training/internal/scoring"
	"example.com/training/pkg/platform/events"
)

const (
	outcomeSucceeded = "succeeded"
	outcomePartial   = "partial"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
)

var (
	recordsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "training_service",
		Subsystem: "backfill",
		Name:      "records_failed_total",
		Help:      "Workouts whose score could not be saved.",
	})

	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "training_service",
		Subsystem: "backfill",
		Name:      "runs_total",
		Help:      "Backfill runs by outcome.",
	}, []string{"outcome"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "training_service",
		Subsystem: "backfill",
		Name:      "run_duration_seconds",
		Help:      "Wall time of a backfill run.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(recordsFailed, runsTotal, runDuration)
}

func recordUpdated(result scoring.Result) {
	observability.RecordScored(string(result.Category), result.Points, events.ScoredOnBackfill)
}
