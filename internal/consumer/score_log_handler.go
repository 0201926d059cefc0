package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"example.com/training/internal/cache"
	"example.com/training/internal/scoring"
	"example.com/training/pkg/platform/events"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ScoreLogHandler projects workout.scored events into workout_score_log and invalidates the
// cached weekly and monthly leaderboards the workout falls into. Redelivered records are ignored.
type ScoreLogHandler struct {
	db          execer
	invalidator cache.Invalidator
	loc         *time.Location
	logger      *log.Logger
}

// NewScoreLogHandler constructs a handler. A nil invalidator disables cache invalidation.
func NewScoreLogHandler(db execer, invalidator cache.Invalidator, loc *time.Location, logger *log.Logger) *ScoreLogHandler {
	if invalidator == nil {
		invalidator = cache.NoopInvalidator{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[score-log] ", log.LstdFlags)
	}
	return &ScoreLogHandler{db: db, invalidator: invalidator, loc: loc, logger: logger}
}

// Handle stores the score. Events other than workout.scored are skipped.
func (h *ScoreLogHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeWorkoutScored {
		return nil
	}

	var payload events.WorkoutScored
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode %s: %w", msg.EventType, err)
	}
	category := scoring.Category(payload.Category)
	if payload.WorkoutID == "" || !category.Valid() {
		return fmt.Errorf("invalid %s payload for workout %q (category %q)", msg.EventType, payload.WorkoutID, payload.Category)
	}
	tenantID := payload.TenantID
	if tenantID == "" {
		tenantID = msg.TenantID
	}

	tag, err := h.db.Exec(ctx,
		`INSERT INTO workout_score_log (topic, partition, record_offset, tenant_id, workout_id, user_id, team_id, points, category, reason, started_at, scored_at, schema_id)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		tenantID,
		payload.WorkoutID,
		payload.UserID,
		nullIfEmpty(payload.TeamID),
		payload.Points,
		payload.Category,
		payload.Reason,
		payload.StartedAt,
		payload.ScoredAt,
		msg.SchemaID,
	)
	if err != nil {
		return fmt.Errorf("insert score log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	for _, period := range []scoring.Period{
		scoring.WeekPeriod(payload.StartedAt, h.loc),
		scoring.MonthPeriod(payload.StartedAt, h.loc),
	} {
		key := LeaderboardKey(tenantID, period)
		if err := h.invalidator.Invalidate(ctx, key); err != nil {
			invalidationErrorCounter.Inc()
			h.logger.Printf("invalidate %s: %v", key, err)
		}
	}
	return nil
}

// LeaderboardKey names the cached leaderboard of a tenant for one period.
func LeaderboardKey(tenantID string, period scoring.Period) string {
	return fmt.Sprintf("leaderboard/%s/%s", tenantID, period.Label)
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
