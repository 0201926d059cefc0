// Package events defines the payloads published on the workout topics.
package events

import "time"

// Event types.
const (
	TypeWorkoutLogged = "workout.logged"
	TypeWorkoutScored = "workout.scored"
)

// Scoring reasons carried by WorkoutScored.
const (
	ScoredOnCreate   = "created"
	ScoredOnBackfill = "backfill"
)

// WorkoutLogged is emitted when a workout is accepted.
type WorkoutLogged struct {
	WorkoutID   string    `json:"workout_id"`
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id"`
	TeamID      string    `json:"team_id,omitempty"`
	WorkoutType string    `json:"workout_type"`
	StartedAt   time.Time `json:"started_at"`
	DurationMin *int      `json:"duration_min,omitempty"`
	Source      string    `json:"source"`
	Entries     int       `json:"entries"`
	Sets        int       `json:"sets"`
	Volume      float64   `json:"volume"`
	Version     string    `json:"version"`
}

// WorkoutScored is emitted whenever a workout receives its points, at creation or by backfill.
type WorkoutScored struct {
	WorkoutID string    `json:"workout_id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	TeamID    string    `json:"team_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Points    float64   `json:"points"`
	Category  string    `json:"category"`
	Reason    string    `json:"reason"`
	ScoredAt  time.Time `json:"scored_at"`
}
