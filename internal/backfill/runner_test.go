package backfill_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/training/internal/backfill"
	"example.com/training/internal/domain"
	"example.com/training/internal/persistence/memory"
	"example.com/training/internal/scoring"
)

var quiet = log.New(io.Discard, "", 0)

func intPtr(v int) *int { return &v }

func unscored(id string, created time.Time, source scoring.Source, duration *int) domain.WorkoutAggregate {
	return domain.WorkoutAggregate{
		ID:          id,
		TenantID:    "tenant-a",
		UserID:      "user-" + id,
		WorkoutType: "strength",
		StartedAt:   created,
		DurationMin: duration,
		Source:      source,
		Entries:     []scoring.Entry{},
		Version:     "v1",
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func seededRepository(t *testing.T) *memory.Repository {
	t.Helper()
	base := time.Date(2026, time.September, 1, 8, 0, 0, 0, time.UTC)

	alreadyScored := unscored("w-0", base, scoring.SourcePlayer, intPtr(5))
	alreadyScored.ApplyScore(scoring.Result{Points: 1, Category: scoring.CategoryLight}, base)

	// a row with only one of the two score fields still counts as unscored
	halfScored := unscored("w-4", base.Add(4*time.Hour), scoring.SourcePlayer, nil)
	points := 99.0
	halfScored.Points = &points

	repo := memory.NewRepository()
	repo.Seed(
		alreadyScored,
		unscored("w-1", base.Add(time.Hour), scoring.SourceTeam, intPtr(90)),
		unscored("w-2", base.Add(2*time.Hour), scoring.SourcePlayer, intPtr(75)),
		unscored("w-3", base.Add(3*time.Hour), scoring.SourceCoach, intPtr(35)),
		halfScored,
	)
	return repo
}

func snapshot(t *testing.T, repo *memory.Repository, ids ...string) map[string]domain.WorkoutAggregate {
	t.Helper()
	out := make(map[string]domain.WorkoutAggregate, len(ids))
	for _, id := range ids {
		w, err := repo.Get(context.Background(), "tenant-a", id)
		require.NoError(t, err)
		require.NotNil(t, w)
		out[id] = *w
	}
	return out
}

func TestRunScoresEveryUnscoredWorkout(t *testing.T) {
	repo := seededRepository(t)
	runner := backfill.NewRunner(repo, backfill.WithLogger(quiet))

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, report.Found)
	require.Equal(t, 4, report.Updated)
	require.Zero(t, report.Errors)
	require.Empty(t, report.FailedIDs)

	require.Equal(t, []scoring.CategoryTotal{
		{Category: scoring.CategoryLight, Count: 2, Points: 2},
		{Category: scoring.CategoryModerate, Count: 1, Points: 2},
		{Category: scoring.CategoryTeam, Count: 1, Points: 2.5},
		{Category: scoring.CategoryIntensive, Count: 1, Points: 3},
	}, report.Summary)

	w, err := repo.Get(context.Background(), "tenant-a", "w-4")
	require.NoError(t, err)
	require.Equal(t, 1.0, *w.Points)
	require.Equal(t, scoring.CategoryLight, *w.Category)
}

func TestRunIsIdempotent(t *testing.T) {
	repo := seededRepository(t)
	runner := backfill.NewRunner(repo, backfill.WithLogger(quiet))

	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	before := snapshot(t, repo, "w-0", "w-1", "w-2", "w-3", "w-4")
	eventsBefore := repo.Events()

	second, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, second.Found)
	require.Zero(t, second.Updated)
	require.Zero(t, second.Errors)

	require.Equal(t, before, snapshot(t, repo, "w-0", "w-1", "w-2", "w-3", "w-4"))
	require.Equal(t, eventsBefore, repo.Events())
}

func TestRunIsolatesPerRecordFailures(t *testing.T) {
	repo := seededRepository(t)
	repo.FailSaveWhen(func(c backfill.Candidate) error {
		if c.ID == "w-2" {
			return errors.New("connection reset")
		}
		return nil
	})

	var logs bytes.Buffer
	runner := backfill.NewRunner(repo, backfill.WithLogger(log.New(&logs, "", 0)))

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, report.Found)
	require.Equal(t, 3, report.Updated)
	require.Equal(t, 1, report.Errors)
	require.Equal(t, []string{"w-2"}, report.FailedIDs)
	require.Contains(t, logs.String(), "workout w-2 (tenant=tenant-a): connection reset")

	w, err := repo.Get(context.Background(), "tenant-a", "w-2")
	require.NoError(t, err)
	require.False(t, w.Scored())

	// rerunning is the retry mechanism
	repo.FailSaveWhen(nil)
	retry, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, retry.Found)
	require.Equal(t, 1, retry.Updated)
}

func TestRunDryRunLeavesStoreUntouched(t *testing.T) {
	repo := seededRepository(t)
	runner := backfill.NewRunner(repo, backfill.WithLogger(quiet), backfill.WithDryRun(true))

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, report.Found)
	require.Zero(t, report.Updated)
	require.Equal(t, 4, report.Skipped)
	require.True(t, report.DryRun)
	require.Equal(t, []scoring.CategoryTotal{
		{Category: scoring.CategoryLight, Count: 1, Points: 1},
		{Category: scoring.CategoryModerate, Count: 1, Points: 2},
		{Category: scoring.CategoryTeam, Count: 1, Points: 2.5},
		{Category: scoring.CategoryIntensive, Count: 1, Points: 3},
	}, report.Summary)

	remaining, err := repo.ListUnscored(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, remaining, 4)
}

func TestRunHonoursLimit(t *testing.T) {
	repo := seededRepository(t)
	runner := backfill.NewRunner(repo, backfill.WithLogger(quiet), backfill.WithLimit(2))

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Found)
	require.Equal(t, 2, report.Updated)

	remaining, err := repo.ListUnscored(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	require.Equal(t, "w-3", remaining[0].ID)
}

func TestRunWithWorkerPool(t *testing.T) {
	repo := memory.NewRepository()
	base := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		repo.Seed(unscored(fmt.Sprintf("w-%03d", i), base.Add(time.Duration(i)*time.Minute), scoring.SourcePlayer, intPtr(i%90)))
	}
	repo.FailSaveWhen(func(c backfill.Candidate) error {
		if c.ID == "w-013" || c.ID == "w-150" {
			return errors.New("deadlock detected")
		}
		return nil
	})

	runner := backfill.NewRunner(repo, backfill.WithLogger(quiet), backfill.WithWorkers(8))
	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 200, report.Found)
	require.Equal(t, 198, report.Updated)
	require.Equal(t, 2, report.Errors)
	require.ElementsMatch(t, []string{"w-013", "w-150"}, report.FailedIDs)

	var counted int
	for _, total := range report.Summary {
		counted += total.Count
	}
	require.Equal(t, 198, counted)
}

type failingStore struct {
	backfill.Store
	err error
}

func (s failingStore) ListUnscored(context.Context, int) ([]backfill.Candidate, error) {
	return nil, s.err
}

func TestRunFailsWhenListingFails(t *testing.T) {
	cause := errors.New("relation \"workouts\" does not exist")
	runner := backfill.NewRunner(failingStore{err: cause}, backfill.WithLogger(quiet))

	_, err := runner.Run(context.Background())
	require.ErrorIs(t, err, cause)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := seededRepository(t)
	_, err := backfill.NewRunner(repo, backfill.WithLogger(quiet)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	remaining, err := repo.ListUnscored(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, remaining, 4)
}

func TestRunCancelledMidwayReportsNoFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := seededRepository(t)
	repo.FailSaveWhen(func(c backfill.Candidate) error {
		if c.ID == "w-2" {
			cancel()
		}
		return nil
	})

	report, err := backfill.NewRunner(repo, backfill.WithLogger(quiet)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 4, report.Found)
	require.Equal(t, 2, report.Updated)
	require.Zero(t, report.Errors)
	require.Empty(t, report.FailedIDs)

	remaining, err := repo.ListUnscored(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)

	resumed, err := backfill.NewRunner(repo, backfill.WithLogger(quiet)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, resumed.Found)
	require.Equal(t, 2, resumed.Updated)
	require.Zero(t, resumed.Errors)
}

func TestRunSkipsWorkoutsScoredConcurrently(t *testing.T) {
	repo := seededRepository(t)
	repo.FailSaveWhen(func(c backfill.Candidate) error {
		if c.ID == "w-1" {
			return backfill.ErrAlreadyScored
		}
		return nil
	})

	report, err := backfill.NewRunner(repo, backfill.WithLogger(quiet)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, report.Updated)
	require.Equal(t, 1, report.Skipped)
	require.Zero(t, report.Errors)
}
