package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func set(reps int, weight float64) Set {
	return Set{Reps: intPtr(reps), Weight: floatPtr(weight)}
}

func TestCalculateBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		workout  Workout
		expected Category
	}{
		{
			name: "duration 59 with volume exactly 5000 stays moderate",
			workout: Workout{
				DurationMinutes: intPtr(59),
				Source:          SourcePlayer,
				Entries:         []Entry{{Exercise: "squat", Sets: []Set{set(10, 500)}}},
			},
			expected: CategoryModerate,
		},
		{
			name:     "duration 60 without entries is intensive",
			workout:  Workout{DurationMinutes: intPtr(60), Source: SourcePlayer, Entries: []Entry{}},
			expected: CategoryIntensive,
		},
		{
			name: "volume 5001 alone is intensive",
			workout: Workout{
				DurationMinutes: intPtr(0),
				Source:          SourcePlayer,
				Entries:         []Entry{{Sets: []Set{set(1, 5001)}}},
			},
			expected: CategoryIntensive,
		},
		{
			name: "eight sets alone is moderate",
			workout: Workout{
				DurationMinutes: intPtr(29),
				Source:          SourcePlayer,
				Entries: []Entry{
					{Exercise: "plank", Sets: []Set{{}, {}, {}, {}}},
					{Exercise: "hollow hold", Sets: []Set{{}, {}, {}, {}}},
				},
			},
			expected: CategoryModerate,
		},
		{
			name: "seven sets and short duration is light",
			workout: Workout{
				DurationMinutes: intPtr(29),
				Source:          SourcePlayer,
				Entries:         []Entry{{Sets: []Set{{}, {}, {}, {}, {}, {}, {}}}},
			},
			expected: CategoryLight,
		},
		{
			name: "small session is light",
			workout: Workout{
				DurationMinutes: intPtr(10),
				Source:          SourcePlayer,
				Entries:         []Entry{{Sets: []Set{set(1, 10)}}},
			},
			expected: CategoryLight,
		},
		{
			name:     "duration 30 is moderate",
			workout:  Workout{DurationMinutes: intPtr(30), Source: SourceCoach},
			expected: CategoryModerate,
		},
		{
			name: "volume 1000 is not above the moderate threshold",
			workout: Workout{
				Source:  SourcePlayer,
				Entries: []Entry{{Sets: []Set{set(10, 100)}}},
			},
			expected: CategoryLight,
		},
		{
			name: "volume 1001 is moderate",
			workout: Workout{
				Source:  SourcePlayer,
				Entries: []Entry{{Sets: []Set{set(7, 143)}}},
			},
			expected: CategoryModerate,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := Calculate(tc.workout)
			require.Equal(t, tc.expected, result.Category)
			require.Equal(t, PointsForCategory(tc.expected), result.Points)
		})
	}
}

func TestCalculateTeamAlwaysWins(t *testing.T) {
	heavy := []Entry{{Sets: []Set{set(100, 100), set(100, 100)}}}
	cases := []Workout{
		{Source: SourceTeam},
		{Source: SourceTeam, DurationMinutes: intPtr(0), Entries: []Entry{}},
		{Source: SourceTeam, DurationMinutes: intPtr(240)},
		{Source: SourceTeam, DurationMinutes: intPtr(90), Entries: heavy},
	}
	for _, w := range cases {
		result := Calculate(w)
		require.Equal(t, CategoryTeam, result.Category)
		require.Equal(t, 2.5, result.Points)
	}
}

func TestCalculateMissingFieldsScoreLight(t *testing.T) {
	result := Calculate(Workout{Source: SourcePlayer})
	require.Equal(t, Result{Points: 1, Category: CategoryLight}, result)
}

func TestCalculateCoercesMalformedNumbers(t *testing.T) {
	w := Workout{
		DurationMinutes: intPtr(-45),
		Source:          SourcePlayer,
		Entries: []Entry{
			{Sets: []Set{
				{Reps: intPtr(-10), Weight: floatPtr(9000)},
				{Reps: intPtr(10), Weight: floatPtr(math.NaN())},
				{Reps: intPtr(10), Weight: floatPtr(math.Inf(1))},
				{Reps: intPtr(10), Weight: floatPtr(-600)},
				{Reps: intPtr(10)},
				{Weight: floatPtr(1000)},
			}},
			{Sets: nil},
		},
	}

	volume, sets := Totals(w.Entries)
	require.Zero(t, volume)
	require.Equal(t, 6, sets)
	require.Equal(t, CategoryLight, Calculate(w).Category)
}

func TestCalculateIsDeterministic(t *testing.T) {
	w := Workout{
		DurationMinutes: intPtr(42),
		Source:          SourceCoach,
		Entries:         []Entry{{Sets: []Set{set(5, 100), set(5, 105), {}}}},
	}
	first := Calculate(w)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Calculate(w))
	}
}

func TestTotalsSumsAcrossEntries(t *testing.T) {
	volume, sets := Totals([]Entry{
		{Sets: []Set{set(10, 60), set(8, 70)}},
		{Sets: []Set{set(12, 20.5)}},
	})
	assert.InDelta(t, 600+560+246, volume, 1e-9)
	assert.Equal(t, 3, sets)
}

func TestPointsForCategory(t *testing.T) {
	assert.Equal(t, 1.0, PointsForCategory(CategoryLight))
	assert.Equal(t, 2.0, PointsForCategory(CategoryModerate))
	assert.Equal(t, 2.5, PointsForCategory(CategoryTeam))
	assert.Equal(t, 3.0, PointsForCategory(CategoryIntensive))
	assert.Zero(t, PointsForCategory(Category("legendary")))

	for _, c := range Categories() {
		assert.True(t, c.Valid())
		assert.Positive(t, PointsForCategory(c))
	}
}

func TestSourceValid(t *testing.T) {
	assert.True(t, SourcePlayer.Valid())
	assert.True(t, SourceCoach.Valid())
	assert.True(t, SourceTeam.Valid())
	assert.False(t, Source("parent").Valid())
	assert.False(t, Source("").Valid())
}
