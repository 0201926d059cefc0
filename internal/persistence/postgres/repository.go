// Package postgres stores workouts and their outbox events in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/training/internal/domain"
	"example.com/training/internal/observability"
	"example.com/training/internal/outbox"
	"example.com/training/internal/persistence"
	"example.com/training/internal/scoring"
	"example.com/training/pkg/platform/events"
)

const uniqueViolation = "23505"

const workoutColumns = `workout_id, tenant_id, user_id, COALESCE(team_id, ''), workout_type, started_at, duration_min, source, entries, points, category, version, scored_at, created_at, updated_at`

// Repository provides Postgres-backed persistence for workouts and outbox events.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

// inTenant runs fn in a transaction scoped to tenantID. An empty tenantID leaves the
// scope unset, which row-level security treats as the maintenance path.
func (r *Repository) inTenant(ctx context.Context, tenantID string, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if tenantID != "" {
		if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
			return err
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FindByIdempotency checks if a workout already exists for the supplied idempotency key.
func (r *Repository) FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*domain.WorkoutAggregate, error) {
	if idempotencyKey == "" {
		return nil, nil
	}

	query := `SELECT ` + workoutColumns + ` FROM workouts WHERE tenant_id=$1 AND user_id=$2 AND idempotency_key=$3`

	var found *domain.WorkoutAggregate
	err := r.inTenant(ctx, tenantID, func(tx pgx.Tx) error {
		agg, err := scanWorkout(tx.QueryRow(ctx, query, tenantID, userID, idempotencyKey))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		found = agg
		return err
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Create persists the workout and records its outbox events inside a single transaction.
func (r *Repository) Create(ctx context.Context, aggregate domain.WorkoutAggregate, idempotencyKey string) error {
	entries, err := persistence.EncodeEntries(aggregate.Entries)
	if err != nil {
		return fmt.Errorf("encode entries: %w", err)
	}

	err = r.inTenant(ctx, aggregate.TenantID, func(tx pgx.Tx) error {
		const insertWorkout = `INSERT INTO workouts (workout_id, tenant_id, user_id, team_id, workout_type, started_at, duration_min, source, entries, points, category, idempotency_key, version, scored_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

		if _, err := tx.Exec(ctx, insertWorkout,
			aggregate.ID,
			aggregate.TenantID,
			aggregate.UserID,
			nullIfEmpty(aggregate.TeamID),
			aggregate.WorkoutType,
			aggregate.StartedAt,
			aggregate.DurationMin,
			string(aggregate.Source),
			entries,
			aggregate.Points,
			categoryValue(aggregate.Category),
			nullIfEmpty(idempotencyKey),
			aggregate.Version,
			aggregate.ScoredAt,
			aggregate.CreatedAt,
			aggregate.UpdatedAt,
		); err != nil {
			return err
		}

		volume, sets := scoring.Totals(aggregate.Entries)
		if err := outbox.Enqueue(ctx, tx, outbox.Event{
			TenantID:      aggregate.TenantID,
			AggregateType: "workout",
			AggregateID:   aggregate.ID,
			EventType:     events.TypeWorkoutLogged,
			PartitionKey:  partitionKey(aggregate.TenantID, aggregate.UserID),
			Payload: events.WorkoutLogged{
				WorkoutID:   aggregate.ID,
				TenantID:    aggregate.TenantID,
				UserID:      aggregate.UserID,
				TeamID:      aggregate.TeamID,
				WorkoutType: aggregate.WorkoutType,
				StartedAt:   aggregate.StartedAt,
				DurationMin: aggregate.DurationMin,
				Source:      string(aggregate.Source),
				Entries:     len(aggregate.Entries),
				Sets:        sets,
				Volume:      volume,
				Version:     aggregate.Version,
			},
		}); err != nil {
			return err
		}

		if !aggregate.Scored() {
			return nil
		}
		return enqueueScored(ctx, tx, aggregate, events.ScoredOnCreate)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "workouts_idempotency_idx" {
			return domain.ErrIdempotencyConflict
		}
		return err
	}

	observability.RecordWorkoutPersisted(aggregate.UpdatedAt)
	return nil
}

func enqueueScored(ctx context.Context, tx pgx.Tx, aggregate domain.WorkoutAggregate, reason string) error {
	scoredAt := aggregate.UpdatedAt
	if aggregate.ScoredAt != nil {
		scoredAt = *aggregate.ScoredAt
	}
	return outbox.Enqueue(ctx, tx, outbox.Event{
		TenantID:      aggregate.TenantID,
		AggregateType: "workout",
		AggregateID:   aggregate.ID,
		EventType:     events.TypeWorkoutScored,
		PartitionKey:  partitionKey(aggregate.TenantID, aggregate.UserID),
		Payload: events.WorkoutScored{
			WorkoutID: aggregate.ID,
			TenantID:  aggregate.TenantID,
			UserID:    aggregate.UserID,
			TeamID:    aggregate.TeamID,
			StartedAt: aggregate.StartedAt,
			Points:    *aggregate.Points,
			Category:  string(*aggregate.Category),
			Reason:    reason,
			ScoredAt:  scoredAt,
		},
	})
}

// Get retrieves a workout by ID. It returns nil when the workout does not exist.
func (r *Repository) Get(ctx context.Context, tenantID, workoutID string) (*domain.WorkoutAggregate, error) {
	query := `SELECT ` + workoutColumns + ` FROM workouts WHERE tenant_id=$1 AND workout_id=$2`

	var found *domain.WorkoutAggregate
	err := r.inTenant(ctx, tenantID, func(tx pgx.Tx) error {
		agg, err := scanWorkout(tx.QueryRow(ctx, query, tenantID, workoutID))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		found = agg
		return err
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// ListByUser returns workouts for a user newest first.
func (r *Repository) ListByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.WorkoutAggregate, *domain.Cursor, error) {
	args := []any{tenantID, userID, limit}
	query := `SELECT ` + workoutColumns + ` FROM workouts WHERE tenant_id=$1 AND user_id=$2`
	if cursor != nil {
		query += ` AND (started_at, workout_id) < ($4, $5)`
		args = append(args, cursor.StartedAt, cursor.ID)
	}
	query += ` ORDER BY started_at DESC, workout_id DESC LIMIT $3`

	var results []domain.WorkoutAggregate
	err := r.inTenant(ctx, tenantID, func(tx pgx.Tx) error {
		var err error
		results, err = queryWorkouts(ctx, tx, query, args...)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return results, next, nil
}

// ListByUserBetween returns a user's workouts started in [from, to), oldest first.
func (r *Repository) ListByUserBetween(ctx context.Context, tenantID, userID string, from, to time.Time) ([]domain.WorkoutAggregate, error) {
	query := `SELECT ` + workoutColumns + ` FROM workouts
        WHERE tenant_id=$1 AND user_id=$2 AND started_at >= $3 AND started_at < $4
        ORDER BY started_at, workout_id`

	var results []domain.WorkoutAggregate
	err := r.inTenant(ctx, tenantID, func(tx pgx.Tx) error {
		var err error
		results, err = queryWorkouts(ctx, tx, query, tenantID, userID, from, to)
		return err
	})
	return results, err
}

// TotalsByUser sums scored workouts per user in [from, to).
func (r *Repository) TotalsByUser(ctx context.Context, tenantID, teamID string, from, to time.Time) ([]scoring.UserTotal, error) {
	const query = `SELECT user_id, SUM(points), COUNT(*)
        FROM workouts
        WHERE tenant_id=$1 AND started_at >= $2 AND started_at < $3
          AND points IS NOT NULL AND category IS NOT NULL
          AND ($4::text = '' OR team_id = $4::text)
        GROUP BY user_id
        ORDER BY user_id`

	var totals []scoring.UserTotal
	err := r.inTenant(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, tenantID, from, to, teamID)
		if err != nil {
			return err
		}
		totals, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (scoring.UserTotal, error) {
			var total scoring.UserTotal
			err := row.Scan(&total.UserID, &total.Points, &total.Workouts)
			return total, err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func queryWorkouts(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]domain.WorkoutAggregate, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.WorkoutAggregate, 0)
	for rows.Next() {
		agg, err := scanWorkout(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *agg)
	}
	return results, rows.Err()
}

func scanWorkout(row pgx.Row) (*domain.WorkoutAggregate, error) {
	var (
		agg      domain.WorkoutAggregate
		source   string
		entries  []byte
		category *string
	)
	if err := row.Scan(&agg.ID, &agg.TenantID, &agg.UserID, &agg.TeamID, &agg.WorkoutType, &agg.StartedAt, &agg.DurationMin, &source, &entries, &agg.Points, &category, &agg.Version, &agg.ScoredAt, &agg.CreatedAt, &agg.UpdatedAt); err != nil {
		return nil, err
	}
	agg.Source = scoring.Source(source)
	agg.Entries = persistence.DecodeEntries(entries)
	if category != nil {
		c := scoring.Category(*category)
		agg.Category = &c
	}
	return &agg, nil
}

func partitionKey(tenantID, userID string) string {
	return fmt.Sprintf("%s:%s", tenantID, userID)
}

func categoryValue(c *scoring.Category) any {
	if c == nil {
		return nil
	}
	return string(*c)
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

var _ domain.WorkoutRepository = (*Repository)(nil)
