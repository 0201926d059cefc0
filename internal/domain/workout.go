package domain

import (
	"time"

	"example.com/training/internal/scoring"
)

// WorkoutAggregate is the workout record stored in PostgreSQL and replayed to downstream consumers.
// Points and Category stay nil until the record has been scored.
type WorkoutAggregate struct {
	ID          string
	TenantID    string
	UserID      string
	TeamID      string
	WorkoutType string
	StartedAt   time.Time
	DurationMin *int
	Source      scoring.Source
	Entries     []scoring.Entry
	Points      *float64
	Category    *scoring.Category
	Version     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ScoredAt    *time.Time
}

// Scored reports whether both score fields are present.
func (w WorkoutAggregate) Scored() bool {
	return w.Points != nil && w.Category != nil
}

// ScoringInput returns the fields that determine the workout's score.
func (w WorkoutAggregate) ScoringInput() scoring.Workout {
	return scoring.Workout{
		DurationMinutes: w.DurationMin,
		Source:          w.Source,
		Entries:         w.Entries,
	}
}

// ApplyScore stores result on the aggregate.
func (w *WorkoutAggregate) ApplyScore(result scoring.Result, at time.Time) {
	points := result.Points
	category := result.Category
	w.Points = &points
	w.Category = &category
	w.ScoredAt = &at
}

// Record projects the aggregate for reporting.
func (w WorkoutAggregate) Record() scoring.ScoredRecord {
	return scoring.ScoredRecord{
		WorkoutID: w.ID,
		Date:      w.StartedAt,
		Source:    w.Source,
		Points:    w.Points,
		Category:  w.Category,
	}
}
