package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/training/internal/backfill"
	"example.com/training/internal/domain"
	"example.com/training/internal/persistence"
	"example.com/training/internal/scoring"
	"example.com/training/pkg/platform/events"
)

// ListUnscored returns workouts of every tenant whose points or category is missing, oldest first.
func (r *Repository) ListUnscored(ctx context.Context, limit int) ([]backfill.Candidate, error) {
	query := `SELECT workout_id, tenant_id, duration_min, source, entries
        FROM workouts
        WHERE points IS NULL OR category IS NULL
        ORDER BY created_at, workout_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	var candidates []backfill.Candidate
	err := r.inTenant(ctx, "", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		candidates, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (backfill.Candidate, error) {
			var (
				c       backfill.Candidate
				source  string
				entries []byte
			)
			if err := row.Scan(&c.ID, &c.TenantID, &c.Workout.DurationMinutes, &source, &entries); err != nil {
				return c, err
			}
			c.Workout.Source = scoring.Source(source)
			c.Workout.Entries = persistence.DecodeEntries(entries)
			return c, nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// SaveScore writes both score fields and enqueues a workout.scored event in one transaction.
// The update only applies while the workout is still unscored, so a concurrent create or a
// second backfill never overwrites an existing score.
func (r *Repository) SaveScore(ctx context.Context, c backfill.Candidate, result scoring.Result) error {
	now := r.now().UTC()

	return r.inTenant(ctx, c.TenantID, func(tx pgx.Tx) error {
		const update = `UPDATE workouts
            SET points = $1, category = $2, scored_at = $3, updated_at = $3
            WHERE workout_id = $4 AND tenant_id = $5 AND (points IS NULL OR category IS NULL)
            RETURNING user_id, COALESCE(team_id, ''), started_at`

		agg := domain.WorkoutAggregate{ID: c.ID, TenantID: c.TenantID, UpdatedAt: now}
		err := tx.QueryRow(ctx, update, result.Points, string(result.Category), now, c.ID, c.TenantID).
			Scan(&agg.UserID, &agg.TeamID, &agg.StartedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missingScoreTarget(ctx, tx, c)
		}
		if err != nil {
			return err
		}

		agg.ApplyScore(result, now)
		return enqueueScored(ctx, tx, agg, events.ScoredOnBackfill)
	})
}

func (r *Repository) missingScoreTarget(ctx context.Context, tx pgx.Tx, c backfill.Candidate) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM workouts WHERE workout_id = $1 AND tenant_id = $2)`, c.ID, c.TenantID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return backfill.ErrAlreadyScored
	}
	return fmt.Errorf("%w: %s", domain.ErrWorkoutNotFound, c.ID)
}

// SummarizeByCategory totals every scored workout per category across tenants.
func (r *Repository) SummarizeByCategory(ctx context.Context) ([]scoring.CategoryTotal, error) {
	const query = `SELECT category, COUNT(*), SUM(points)
        FROM workouts
        WHERE points IS NOT NULL AND category IS NOT NULL
        GROUP BY category`

	byCategory := make(map[scoring.Category]scoring.CategoryTotal)
	err := r.inTenant(ctx, "", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				category string
				total    scoring.CategoryTotal
			)
			if err := rows.Scan(&category, &total.Count, &total.Points); err != nil {
				return err
			}
			total.Category = scoring.Category(category)
			byCategory[total.Category] = total
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	out := make([]scoring.CategoryTotal, 0, len(byCategory))
	for _, c := range scoring.Categories() {
		if total, ok := byCategory[c]; ok {
			out = append(out, total)
		}
	}
	return out, nil
}

var _ backfill.Store = (*Repository)(nil)
