package scoring

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ErrInvalidWeek is returned by ParseISOWeek for malformed or out-of-range week tokens.
var ErrInvalidWeek = errors.New("invalid ISO week")

// Period is a half-open reporting window [Start, End).
type Period struct {
	Label string
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// ISOWeekStart returns Monday 00:00 of the ISO week containing t, in loc.
func ISOWeekStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(orUTC(loc))
	offset := (int(local.Weekday()) + 6) % 7
	return time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, local.Location())
}

// WeekPeriod returns the Monday-to-Sunday week containing t.
func WeekPeriod(t time.Time, loc *time.Location) Period {
	start := ISOWeekStart(t, loc)
	year, week := start.ISOWeek()
	return Period{
		Label: fmt.Sprintf("%04d-W%02d", year, week),
		Start: start,
		End:   start.AddDate(0, 0, 7),
	}
}

// MonthPeriod returns the calendar month containing t.
func MonthPeriod(t time.Time, loc *time.Location) Period {
	local := t.In(orUTC(loc))
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, local.Location())
	return Period{
		Label: start.Format("2006-01"),
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}
}

// ParseISOWeek parses a "YYYY-Www" token such as "2026-W42".
func ParseISOWeek(value string, loc *time.Location) (Period, error) {
	if len(value) != len("2006-W01") || value[4] != '-' || value[5] != 'W' ||
		!allDigits(value[:4]) || !allDigits(value[6:]) {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidWeek, value)
	}
	year, yearErr := strconv.Atoi(value[:4])
	week, weekErr := strconv.Atoi(value[6:])
	if yearErr != nil || weekErr != nil || week < 1 || week > 53 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidWeek, value)
	}

	// January 4th always falls in week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, orUTC(loc))
	start := ISOWeekStart(jan4, loc).AddDate(0, 0, 7*(week-1))
	if y, w := start.ISOWeek(); y != year || w != week {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidWeek, value)
	}
	return WeekPeriod(start, loc), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// ScoredRecord is a persisted workout as seen by reporting. Points and Category are nil
// for records that have not been scored yet.
type ScoredRecord struct {
	WorkoutID string
	Date      time.Time
	Source    Source
	Points    *float64
	Category  *Category
}

// CategoryTotal counts records and points for one category.
type CategoryTotal struct {
	Category Category
	Count    int
	Points   float64
}

// DayTotal is the rollup of a single calendar day.
type DayTotal struct {
	Date     string
	Points   float64
	Workouts int
	Team     bool
}

// PeriodSummary is the rollup of a user's workouts over one period.
type PeriodSummary struct {
	Period         Period
	TotalPoints    float64
	Workouts       int
	Unscored       int
	ActiveDays     int
	TeamDays       int
	IndividualDays int
	Categories     []CategoryTotal
	Days           []DayTotal
}

// SummarizePeriod sums points and counts active days for the records inside period.
// A day counts as a team day when any record on it came from a team session.
func SummarizePeriod(records []ScoredRecord, period Period, loc *time.Location) PeriodSummary {
	loc = orUTC(loc)
	summary := PeriodSummary{Period: period}

	byCategory := make(map[Category]*CategoryTotal)
	byDay := make(map[string]*DayTotal)

	for _, rec := range records {
		if !period.Contains(rec.Date) {
			continue
		}
		summary.Workouts++

		key := rec.Date.In(loc).Format(time.DateOnly)
		day, ok := byDay[key]
		if !ok {
			day = &DayTotal{Date: key}
			byDay[key] = day
		}
		day.Workouts++
		if rec.Source == SourceTeam {
			day.Team = true
		}

		if rec.Points == nil || rec.Category == nil {
			summary.Unscored++
			continue
		}
		summary.TotalPoints += *rec.Points
		day.Points += *rec.Points

		total, ok := byCategory[*rec.Category]
		if !ok {
			total = &CategoryTotal{Category: *rec.Category}
			byCategory[*rec.Category] = total
		}
		total.Count++
		total.Points += *rec.Points
	}

	for _, c := range Categories() {
		if total, ok := byCategory[c]; ok {
			summary.Categories = append(summary.Categories, *total)
		} else {
			summary.Categories = append(summary.Categories, CategoryTotal{Category: c})
		}
	}

	summary.Days = make([]DayTotal, 0, len(byDay))
	for _, day := range byDay {
		summary.Days = append(summary.Days, *day)
		if day.Team {
			summary.TeamDays++
		} else {
			summary.IndividualDays++
		}
	}
	sort.Slice(summary.Days, func(i, j int) bool { return summary.Days[i].Date < summary.Days[j].Date })
	summary.ActiveDays = len(summary.Days)

	return summary
}

// UserTotal is one user's aggregate over a period.
type UserTotal struct {
	UserID   string
	Points   float64
	Workouts int
}

// LeaderboardEntry is a ranked UserTotal.
type LeaderboardEntry struct {
	Rank int
	UserTotal
}

// RankLeaderboard orders totals by points, then workouts, then user ID, and assigns
// competition ranks (equal points and workouts share a rank). limit <= 0 returns all entries.
func RankLeaderboard(totals []UserTotal, limit int) []LeaderboardEntry {
	sorted := make([]UserTotal, len(totals))
	copy(sorted, totals)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.Workouts != b.Workouts {
			return a.Workouts > b.Workouts
		}
		return a.UserID < b.UserID
	})

	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}

	out := make([]LeaderboardEntry, 0, len(sorted))
	for i, total := range sorted {
		rank := i + 1
		if i > 0 {
			prev := out[i-1]
			if prev.Points == total.Points && prev.Workouts == total.Workouts {
				rank = prev.Rank
			}
		}
		out = append(out, LeaderboardEntry{Rank: rank, UserTotal: total})
	}
	return out
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
