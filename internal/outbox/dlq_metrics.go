package outbox

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// DLQ metrics are keyed by event type and failed stage; topic follows from event type.
var dlqLabels = []string{"event_type", "failure_stage"}

var (
	dlqRequeuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "training_service",
		Subsystem: "dlq",
		Name:      "workout_events_requeued_total",
		Help:      "Workout events moved from the DLQ back into the outbox for replay.",
	}, dlqLabels)

	dlqQuarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "training_service",
		Subsystem: "dlq",
		Name:      "workout_events_quarantined_total",
		Help:      "Workout events quarantined after exhausting retries.",
	}, dlqLabels)

	dlqRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "training_service",
		Subsystem: "dlq",
		Name:      "workout_events_retry_scheduled_total",
		Help:      "Replays that failed and were rescheduled with backoff.",
	}, dlqLabels)

	dlqBacklogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "training_service",
		Subsystem: "dlq",
		Name:      "workout_events_pending",
		Help:      "Workout events waiting in the DLQ for replay, by failed stage.",
	}, []string{"failure_stage"})
)

func init() {
	prometheus.MustRegister(dlqRequeuedCounter, dlqQuarantinedCounter, dlqRetryCounter, dlqBacklogGauge)
}

func recordDLQRequeued(entry dlqEntry) {
	dlqRequeuedCounter.WithLabelValues(entry.EventType, string(entry.FailureStage)).Inc()
}

func recordDLQQuarantined(entry dlqEntry) {
	dlqQuarantinedCounter.WithLabelValues(entry.EventType, string(entry.FailureStage)).Inc()
}

func recordDLQRetry(entry dlqEntry) {
	dlqRetryCounter.WithLabelValues(entry.EventType, string(entry.FailureStage)).Inc()
}

// updateBacklogGauge replaces the per-stage backlog with fresh counts. Stages with no
// pending rows read zero.
func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx, `SELECT failure_stage, COUNT(*)
        FROM outbox_dlq
        WHERE quarantined_at IS NULL
        GROUP BY failure_stage`)
	if err != nil {
		log.Printf("dlq: backlog query: %v", err)
		return
	}
	defer rows.Close()

	counts := map[string]float64{
		string(StageCatalog):        0,
		string(StageSchemaRegistry): 0,
		string(StagePublish):        0,
	}
	for rows.Next() {
		var stage string
		var count int64
		if err := rows.Scan(&stage, &count); err != nil {
			log.Printf("dlq: backlog scan: %v", err)
			return
		}
		counts[stage] = float64(count)
	}
	if err := rows.Err(); err != nil {
		log.Printf("dlq: backlog rows: %v", err)
		return
	}

	for stage, count := range counts {
		dlqBacklogGauge.WithLabelValues(stage).Set(count)
	}
}
