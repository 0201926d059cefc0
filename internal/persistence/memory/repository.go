// Package memory provides an in-process workout store for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/training/internal/backfill"
	"example.com/training/internal/domain"
	"example.com/training/internal/observability"
	"example.com/training/internal/scoring"
	"example.com/training/pkg/platform/events"
)

type idempotencyKey struct {
	tenantID string
	userID   string
	key      string
}

// Repository is a mutex-guarded map implementation of domain.WorkoutRepository and backfill.Store.
type Repository struct {
	mu          sync.RWMutex
	workouts    map[string]domain.WorkoutAggregate
	idempotency map[idempotencyKey]string
	events      []string
	saveHook    func(backfill.Candidate) error
	now         func() time.Time
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		workouts:    make(map[string]domain.WorkoutAggregate),
		idempotency: make(map[idempotencyKey]string),
		now:         time.Now,
	}
}

// Seed stores workouts as-is, scored or not. It emits no events.
func (r *Repository) Seed(workouts ...domain.WorkoutAggregate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range workouts {
		r.workouts[w.ID] = w
	}
}

// FailSaveWhen installs a hook consulted before every SaveScore; a non-nil error aborts the save.
func (r *Repository) FailSaveWhen(hook func(backfill.Candidate) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveHook = hook
}

// Events lists the outbox events recorded so far as "type:workout_id".
func (r *Repository) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.events...)
}

// FindByIdempotency returns the workout stored under the key, or nil.
func (r *Repository) FindByIdempotency(_ context.Context, tenantID, userID, key string) (*domain.WorkoutAggregate, error) {
	if key == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.idempotency[idempotencyKey{tenantID, userID, key}]
	if !ok {
		return nil, nil
	}
	w := r.workouts[id]
	return &w, nil
}

// Create stores the workout and records its logged and scored events.
func (r *Repository) Create(_ context.Context, aggregate domain.WorkoutAggregate, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if key != "" {
		k := idempotencyKey{aggregate.TenantID, aggregate.UserID, key}
		if _, exists := r.idempotency[k]; exists {
			return domain.ErrIdempotencyConflict
		}
		r.idempotency[k] = aggregate.ID
	}
	r.workouts[aggregate.ID] = aggregate
	r.events = append(r.events, events.TypeWorkoutLogged+":"+aggregate.ID)
	if aggregate.Scored() {
		r.events = append(r.events, events.TypeWorkoutScored+":"+aggregate.ID)
	}
	observability.RecordWorkoutPersisted(aggregate.UpdatedAt)
	return nil
}

// Get returns the workout, or nil when it does not exist in the tenant.
func (r *Repository) Get(_ context.Context, tenantID, workoutID string) (*domain.WorkoutAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workouts[workoutID]
	if !ok || w.TenantID != tenantID {
		return nil, nil
	}
	return &w, nil
}

// ListByUser pages through a user's workouts newest first.
func (r *Repository) ListByUser(_ context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.WorkoutAggregate, *domain.Cursor, error) {
	r.mu.RLock()
	matches := r.filter(func(w domain.WorkoutAggregate) bool {
		if w.TenantID != tenantID || w.UserID != userID {
			return false
		}
		return cursor == nil || before(w, *cursor)
	})
	r.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.After(b.StartedAt)
		}
		return a.ID > b.ID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	var next *domain.Cursor
	if limit > 0 && len(matches) == limit {
		last := matches[len(matches)-1]
		next = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return matches, next, nil
}

func before(w domain.WorkoutAggregate, c domain.Cursor) bool {
	if w.StartedAt.Equal(c.StartedAt) {
		return w.ID < c.ID
	}
	return w.StartedAt.Before(c.StartedAt)
}

// ListByUserBetween returns a user's workouts started in [from, to), oldest first.
func (r *Repository) ListByUserBetween(_ context.Context, tenantID, userID string, from, to time.Time) ([]domain.WorkoutAggregate, error) {
	r.mu.RLock()
	matches := r.filter(func(w domain.WorkoutAggregate) bool {
		return w.TenantID == tenantID && w.UserID == userID && inRange(w.StartedAt, from, to)
	})
	r.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].StartedAt.Before(matches[j].StartedAt) })
	return matches, nil
}

// TotalsByUser sums scored workouts per user in [from, to).
func (r *Repository) TotalsByUser(_ context.Context, tenantID, teamID string, from, to time.Time) ([]scoring.UserTotal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byUser := make(map[string]*scoring.UserTotal)
	for _, w := range r.workouts {
		if w.TenantID != tenantID || !w.Scored() || !inRange(w.StartedAt, from, to) {
			continue
		}
		if teamID != "" && w.TeamID != teamID {
			continue
		}
		total, ok := byUser[w.UserID]
		if !ok {
			total = &scoring.UserTotal{UserID: w.UserID}
			byUser[w.UserID] = total
		}
		total.Points += *w.Points
		total.Workouts++
	}

	out := make([]scoring.UserTotal, 0, len(byUser))
	for _, total := range byUser {
		out = append(out, *total)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// ListUnscored returns workouts missing points or category, oldest first.
func (r *Repository) ListUnscored(_ context.Context, limit int) ([]backfill.Candidate, error) {
	r.mu.RLock()
	matches := r.filter(func(w domain.WorkoutAggregate) bool { return !w.Scored() })
	r.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]backfill.Candidate, 0, len(matches))
	for _, w := range matches {
		out = append(out, backfill.Candidate{ID: w.ID, TenantID: w.TenantID, Workout: w.ScoringInput()})
	}
	return out, nil
}

// SaveScore stores the result if the workout is still unscored.
func (r *Repository) SaveScore(_ context.Context, c backfill.Candidate, result scoring.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveHook != nil {
		if err := r.saveHook(c); err != nil {
			return err
		}
	}

	w, ok := r.workouts[c.ID]
	if !ok || w.TenantID != c.TenantID {
		return domain.ErrWorkoutNotFound
	}
	if w.Scored() {
		return backfill.ErrAlreadyScored
	}

	now := r.now().UTC()
	w.ApplyScore(result, now)
	w.UpdatedAt = now
	r.workouts[c.ID] = w
	r.events = append(r.events, events.TypeWorkoutScored+":"+w.ID)
	return nil
}

// SummarizeByCategory totals scored workouts per category across all tenants.
func (r *Repository) SummarizeByCategory(_ context.Context) ([]scoring.CategoryTotal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byCategory := make(map[scoring.Category]*scoring.CategoryTotal)
	for _, w := range r.workouts {
		if !w.Scored() {
			continue
		}
		total, ok := byCategory[*w.Category]
		if !ok {
			total = &scoring.CategoryTotal{Category: *w.Category}
			byCategory[*w.Category] = total
		}
		total.Count++
		total.Points += *w.Points
	}

	out := make([]scoring.CategoryTotal, 0, len(byCategory))
	for _, c := range scoring.Categories() {
		if total, ok := byCategory[c]; ok {
			out = append(out, *total)
		}
	}
	return out, nil
}

// filter must be called with the read lock held.
func (r *Repository) filter(keep func(domain.WorkoutAggregate) bool) []domain.WorkoutAggregate {
	out := make([]domain.WorkoutAggregate, 0)
	for _, w := range r.workouts {
		if keep(w) {
			out = append(out, w)
		}
	}
	return out
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

var (
	_ domain.WorkoutRepository = (*Repository)(nil)
	_ backfill.Store           = (*Repository)(nil)
)
