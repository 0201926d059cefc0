// Package scoring classifies workouts into intensity categories and assigns their point values.
//
// Everything in this package is pure: no I/O, no shared state, safe for concurrent use.
package scoring

import "math"

// Source identifies who logged a workout.
type Source string

const (
	SourcePlayer Source = "player"
	SourceCoach  Source = "coach"
	SourceTeam   Source = "team"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourcePlayer, SourceCoach, SourceTeam:
		return true
	}
	return false
}

// Category is the intensity label that drives the point value of a workout.
type Category string

const (
	CategoryLight     Category = "light"
	CategoryModerate  Category = "moderate"
	CategoryTeam      Category = "team"
	CategoryIntensive Category = "intensive"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryLight, CategoryModerate, CategoryTeam, CategoryIntensive:
		return true
	}
	return false
}

// Categories returns every category in display order.
func Categories() []Category {
	return []Category{CategoryLight, CategoryModerate, CategoryTeam, CategoryIntensive}
}

// Fixed point table.
const (
	LightPoints     = 1.0
	ModeratePoints  = 2.0
	TeamPoints      = 2.5
	IntensivePoints = 3.0
)

// Classification thresholds. Duration thresholds are inclusive, volume thresholds exclusive.
const (
	IntensiveMinDuration = 60
	IntensiveMinVolume   = 5000.0
	ModerateMinDuration  = 30
	ModerateMinSets      = 8
	ModerateMinVolume    = 1000.0
)

// Set is one logged repetition group. Either field may be absent.
type Set struct {
	Reps   *int
	Weight *float64
}

// Entry is one exercise within a workout.
type Entry struct {
	Exercise string
	Sets     []Set
}

// Workout is the subset of a workout record that determines its score.
type Workout struct {
	DurationMinutes *int
	Source          Source
	Entries         []Entry
}

// Result is the outcome of scoring a workout.
type Result struct {
	Points   float64
	Category Category
}

// Calculate classifies w and returns its category and points.
// Missing or malformed numbers count as zero; the same input always yields the same result.
func Calculate(w Workout) Result {
	category := classify(duration(w.DurationMinutes), w.Source, w.Entries)
	return Result{Points: PointsForCategory(category), Category: category}
}

// PointsForCategory looks up the fixed point value of c. Unknown categories are worth 0.
func PointsForCategory(c Category) float64 {
	switch c {
	case CategoryLight:
		return LightPoints
	case CategoryModerate:
		return ModeratePoints
	case CategoryTeam:
		return TeamPoints
	case CategoryIntensive:
		return IntensivePoints
	default:
		return 0
	}
}

// Totals returns the summed reps x weight volume and the number of sets across entries.
func Totals(entries []Entry) (volume float64, sets int) {
	for _, entry := range entries {
		for _, set := range entry.Sets {
			sets++
			volume += float64(reps(set.Reps)) * weight(set.Weight)
		}
	}
	return volume, sets
}

// classify applies the rules in order; the first match wins.
func classify(durationMin int, source Source, entries []Entry) Category {
	if source == SourceTeam {
		return CategoryTeam
	}

	volume, sets := Totals(entries)
	switch {
	case durationMin >= IntensiveMinDuration || volume > IntensiveMinVolume:
		return CategoryIntensive
	case durationMin >= ModerateMinDuration || sets >= ModerateMinSets || volume > ModerateMinVolume:
		return CategoryModerate
	default:
		return CategoryLight
	}
}

func duration(v *int) int {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

func reps(v *int) int {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

func weight(v *float64) float64 {
	if v == nil || *v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return *v
}
