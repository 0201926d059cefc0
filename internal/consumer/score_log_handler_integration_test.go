//go:build integration
// +build integration

package consumer

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/training/internal/testsupport"
	"example.com/training/pkg/platform/events"
)

func TestScoreLogHandlerStoresEventOnce(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)

	invalidator := &recordingInvalidator{}
	handler := NewScoreLogHandler(pool, invalidator, time.UTC, log.New(io.Discard, "", 0))

	payload, err := json.Marshal(events.WorkoutScored{
		WorkoutID: "w-1",
		TenantID:  "tenant-123",
		UserID:    "ana",
		StartedAt: time.Date(2026, time.October, 14, 18, 0, 0, 0, time.UTC),
		Points:    2.5,
		Category:  "team",
		Reason:    events.ScoredOnBackfill,
		ScoredAt:  time.Date(2026, time.October, 15, 3, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	msg := Message{
		EventType:     events.TypeWorkoutScored,
		TenantID:      "tenant-123",
		SchemaID:      42,
		SchemaSubject: "workout_scored-value",
		Topic:         "workout_scored",
		Partition:     0,
		Offset:        5,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}

	require.NoError(t, handler.Handle(ctx, msg))
	require.NoError(t, handler.Handle(ctx, msg))

	var (
		count  int
		points float64
		reason string
	)
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*), MAX(points), MAX(reason) FROM workout_score_log`).Scan(&count, &points, &reason))
	require.Equal(t, 1, count)
	require.Equal(t, 2.5, points)
	require.Equal(t, events.ScoredOnBackfill, reason)
	require.Equal(t, []string{"leaderboard/tenant-123/2026-W42", "leaderboard/tenant-123/2026-10"}, invalidator.keys)
}
