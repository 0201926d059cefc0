package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"example.com/training/internal/scoring"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// CreateWorkoutRequest is the payload for POST /v1/workouts.
type CreateWorkoutRequest struct {
	UserID      string         `json:"user_id" validate:"notblank"`
	TeamID      string         `json:"team_id"`
	WorkoutType string         `json:"workout_type" validate:"notblank"`
	StartedAt   time.Time      `json:"started_at" validate:"required"`
	DurationMin *int           `json:"duration_min" validate:"omitempty,gte=0"`
	Source      string         `json:"source" validate:"required,oneof=player coach team"`
	Entries     []EntryRequest `json:"entries" validate:"omitempty,dive"`
}

// EntryRequest is one exercise in a workout payload.
type EntryRequest struct {
	Exercise string       `json:"exercise"`
	Sets     []SetRequest `json:"sets" validate:"omitempty,dive"`
}

// SetRequest is one set of an exercise. Both fields are optional.
type SetRequest struct {
	Reps   *int     `json:"reps" validate:"omitempty,gte=0"`
	Weight *float64 `json:"weight" validate:"omitempty,gte=0"`
}

// Validate ensures request correctness.
func (r CreateWorkoutRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return validationError(fieldErrs)
		}
		return err
	}
	return nil
}

func validationError(errs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required", "notblank":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// fieldPath drops the struct name from the namespace, e.g. "entries[0].sets[1].reps".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func (r CreateWorkoutRequest) entries() []scoring.Entry {
	out := make([]scoring.Entry, 0, len(r.Entries))
	for _, e := range r.Entries {
		entry := scoring.Entry{Exercise: e.Exercise, Sets: make([]scoring.Set, 0, len(e.Sets))}
		for _, s := range e.Sets {
			entry.Sets = append(entry.Sets, scoring.Set{Reps: s.Reps, Weight: s.Weight})
		}
		out = append(out, entry)
	}
	return out
}

// CreateWorkoutResponse describes the response body for create.
type CreateWorkoutResponse struct {
	WorkoutID string  `json:"workout_id"`
	Points    float64 `json:"points"`
	Category  string  `json:"category"`
	Replay    bool    `json:"idempotent_replay"`
}

// WorkoutView exposes full details about a workout.
type WorkoutView struct {
	WorkoutID   string         `json:"workout_id"`
	TenantID    string         `json:"tenant_id"`
	UserID      string         `json:"user_id"`
	TeamID      string         `json:"team_id,omitempty"`
	WorkoutType string         `json:"workout_type"`
	StartedAt   time.Time      `json:"started_at"`
	DurationMin *int           `json:"duration_min,omitempty"`
	Source      string         `json:"source"`
	Entries     []EntryRequest `json:"entries"`
	Points      *float64       `json:"points"`
	Category    *string        `json:"category"`
	Version     string         `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ScoredAt    *time.Time     `json:"scored_at,omitempty"`
}

// ListWorkoutsResponse packages list results.
type ListWorkoutsResponse struct {
	Items      []WorkoutView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// CategoryView is one row of a per-category breakdown.
type CategoryView struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Points   float64 `json:"points"`
}

// DayView is one active day in a weekly summary.
type DayView struct {
	Date     string  `json:"date"`
	Points   float64 `json:"points"`
	Workouts int     `json:"workouts"`
	Team     bool    `json:"team"`
}

// WeeklyPointsResponse is the body of GET /v1/points/weekly.
type WeeklyPointsResponse struct {
	UserID         string         `json:"user_id"`
	Week           string         `json:"week"`
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	TotalPoints    float64        `json:"total_points"`
	Workouts       int            `json:"workouts"`
	Unscored       int            `json:"unscored"`
	ActiveDays     int            `json:"active_days"`
	TeamDays       int            `json:"team_days"`
	IndividualDays int            `json:"individual_days"`
	Categories     []CategoryView `json:"categories"`
	Days           []DayView      `json:"days"`
}

// LeaderboardEntryView is one ranked user.
type LeaderboardEntryView struct {
	Rank     int     `json:"rank"`
	UserID   string  `json:"user_id"`
	Points   float64 `json:"points"`
	Workouts int     `json:"workouts"`
}

// LeaderboardResponse is the body of GET /v1/points/leaderboard.
type LeaderboardResponse struct {
	Period  string                 `json:"period"`
	Start   time.Time              `json:"start"`
	End     time.Time              `json:"end"`
	TeamID  string                 `json:"team_id,omitempty"`
	Entries []LeaderboardEntryView `json:"entries"`
}

// PointTableResponse publishes the fixed point values and thresholds.
type PointTableResponse struct {
	Points     map[string]float64 `json:"points"`
	Thresholds ThresholdsView     `json:"thresholds"`
}

// ThresholdsView lists the classification thresholds.
type ThresholdsView struct {
	IntensiveMinDuration int     `json:"intensive_min_duration_min"`
	IntensiveMinVolume   float64 `json:"intensive_min_volume_exclusive"`
	ModerateMinDuration  int     `json:"moderate_min_duration_min"`
	ModerateMinSets      int     `json:"moderate_min_sets"`
	ModerateMinVolume    float64 `json:"moderate_min_volume_exclusive"`
}
