// Package domain defines the workout business logic of the training service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/training/internal/observability"
	"example.com/training/internal/scoring"
	"example.com/training/pkg/platform/events"
)

var (
	// ErrWorkoutNotFound is returned when a workout cannot be located.
	ErrWorkoutNotFound = errors.New("workout not found")
	// ErrIdempotencyConflict is returned by repositories when a concurrent request
	// already stored a workout under the same idempotency key.
	ErrIdempotencyConflict = errors.New("workout already exists for idempotency key")
	// ErrUnknownPeriod is returned for reporting periods other than week and month.
	ErrUnknownPeriod = errors.New("unknown period")
)

// WorkoutRepository captures persistence operations.
type WorkoutRepository interface {
	FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*WorkoutAggregate, error)
	Create(ctx context.Context, aggregate WorkoutAggregate, idempotencyKey string) error
	Get(ctx context.Context, tenantID, workoutID string) (*WorkoutAggregate, error)
	ListByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]WorkoutAggregate, *Cursor, error)
	ListByUserBetween(ctx context.Context, tenantID, userID string, from, to time.Time) ([]WorkoutAggregate, error)
	// TotalsByUser sums scored workouts per user in [from, to). An empty teamID covers the whole tenant.
	TotalsByUser(ctx context.Context, tenantID, teamID string, from, to time.Time) ([]scoring.UserTotal, error)
}

// Cursor models the pagination token.
type Cursor struct {
	StartedAt time.Time
	ID        string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLocation sets the time zone used to cut reporting periods into days and weeks.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// Service orchestrates workout workflows.
type Service struct {
	repo WorkoutRepository
	now  func() time.Time
	loc  *time.Location
}

// NewService constructs a Service.
func NewService(repo WorkoutRepository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the reporting time zone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// CreateWorkoutInput captures the validated payload from the API layer.
type CreateWorkoutInput struct {
	TenantID       string
	UserID         string
	TeamID         string
	WorkoutType    string
	StartedAt      time.Time
	DurationMin    *int
	Source         scoring.Source
	Entries        []scoring.Entry
	IdempotencyKey string
}

// CreateWorkout scores and stores a new workout. A repeated idempotency key returns the
// original workout with replay set.
func (s *Service) CreateWorkout(ctx context.Context, input CreateWorkoutInput) (*WorkoutAggregate, bool, error) {
	if existing, err := s.findReplay(ctx, input); err != nil || existing != nil {
		return existing, existing != nil, err
	}

	now := s.now().UTC()
	aggregate := WorkoutAggregate{
		ID:          uuid.NewString(),
		TenantID:    input.TenantID,
		UserID:      input.UserID,
		TeamID:      input.TeamID,
		WorkoutType: input.WorkoutType,
		StartedAt:   input.StartedAt.UTC(),
		DurationMin: input.DurationMin,
		Source:      input.Source,
		Entries:     input.Entries,
		Version:     "v1",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if aggregate.Entries == nil {
		aggregate.Entries = []scoring.Entry{}
	}

	result := scoring.Calculate(aggregate.ScoringInput())
	aggregate.ApplyScore(result, now)

	if err := s.repo.Create(ctx, aggregate, input.IdempotencyKey); err != nil {
		if errors.Is(err, ErrIdempotencyConflict) {
			existing, findErr := s.findReplay(ctx, input)
			if findErr == nil && existing != nil {
				return existing, true, nil
			}
		}
		return nil, false, fmt.Errorf("create workout: %w", err)
	}

	observability.RecordScored(string(result.Category), result.Points, events.ScoredOnCreate)
	return &aggregate, false, nil
}

func (s *Service) findReplay(ctx context.Context, input CreateWorkoutInput) (*WorkoutAggregate, error) {
	if input.IdempotencyKey == "" {
		return nil, nil
	}
	existing, err := s.repo.FindByIdempotency(ctx, input.TenantID, input.UserID, input.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	return existing, nil
}

// GetWorkout fetches by ID.
func (s *Service) GetWorkout(ctx context.Context, tenantID, workoutID string) (*WorkoutAggregate, error) {
	agg, err := s.repo.Get(ctx, tenantID, workoutID)
	if err != nil {
		return nil, err
	}
	if agg == nil {
		return nil, ErrWorkoutNotFound
	}
	return agg, nil
}

// ListWorkoutsByUser fetches workouts newest first with cursor pagination.
func (s *Service) ListWorkoutsByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]WorkoutAggregate, *Cursor, error) {
	return s.repo.ListByUser(ctx, tenantID, userID, cursor, limit)
}

// CurrentWeek returns the ISO week containing now in the reporting time zone.
func (s *Service) CurrentWeek() scoring.Period {
	return scoring.WeekPeriod(s.now(), s.loc)
}

// WeeklySummary rolls up the persisted scores of a user's workouts in period.
// Scores are read as stored; nothing is rescored here.
func (s *Service) WeeklySummary(ctx context.Context, tenantID, userID string, period scoring.Period) (scoring.PeriodSummary, error) {
	workouts, err := s.repo.ListByUserBetween(ctx, tenantID, userID, period.Start, period.End)
	if err != nil {
		return scoring.PeriodSummary{}, fmt.Errorf("list workouts for %s: %w", period.Label, err)
	}

	records := make([]scoring.ScoredRecord, 0, len(workouts))
	for _, w := range workouts {
		records = append(records, w.Record())
	}
	return scoring.SummarizePeriod(records, period, s.loc), nil
}

// Leaderboard ranks users of a tenant (or of one team) by points earned in period.
type Leaderboard struct {
	Period  scoring.Period
	TeamID  string
	Entries []scoring.LeaderboardEntry
}

// Leaderboard builds the ranking for period. limit <= 0 returns every user.
func (s *Service) Leaderboard(ctx context.Context, tenantID, teamID string, period scoring.Period, limit int) (Leaderboard, error) {
	totals, err := s.repo.TotalsByUser(ctx, tenantID, teamID, period.Start, period.End)
	if err != nil {
		return Leaderboard{}, fmt.Errorf("totals for %s: %w", period.Label, err)
	}
	return Leaderboard{
		Period:  period,
		TeamID:  teamID,
		Entries: scoring.RankLeaderboard(totals, limit),
	}, nil
}

// PeriodFor resolves "week" or "month" around at in the reporting time zone.
func (s *Service) PeriodFor(kind string, at time.Time) (scoring.Period, error) {
	if at.IsZero() {
		at = s.now()
	}
	switch kind {
	case "", "week":
		return scoring.WeekPeriod(at, s.loc), nil
	case "month":
		return scoring.MonthPeriod(at, s.loc), nil
	default:
		return scoring.Period{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, kind)
	}
}
