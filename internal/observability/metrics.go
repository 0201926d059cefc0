// Package observability holds the service-wide prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "training_service"

var (
	workoutPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "last_workout_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent workout persisted.",
	})

	workoutsScored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scoring",
		Name:      "workouts_scored_total",
		Help:      "Workouts scored, labeled by category and by how they were scored (created or backfill).",
	}, []string{"category", "reason"})

	pointsAwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scoring",
		Name:      "points_awarded_total",
		Help:      "Sum of points awarded, labeled by category.",
	}, []string{"category"})
)

func init() {
	prometheus.MustRegister(workoutPersistGauge, workoutsScored, pointsAwarded)
}

// RecordWorkoutPersisted updates the persistence watermark gauge.
func RecordWorkoutPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	workoutPersistGauge.Set(float64(ts.Unix()))
}

// RecordScored counts a scored workout.
func RecordScored(category string, points float64, reason string) {
	workoutsScored.WithLabelValues(category, reason).Inc()
	pointsAwarded.WithLabelValues(category).Add(points)
}
