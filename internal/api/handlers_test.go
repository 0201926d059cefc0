package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/training/internal/auth"
	"example.com/training/internal/domain"
	"example.com/training/internal/persistence/memory"
	"example.com/training/internal/scoring"
	platformauth "example.com/training/pkg/platform/auth"
)

var (
	testNow     = time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)
	tokenConfig = auth.Config{Secret: "test-secret", Issuer: "test-issuer"}
)

type testServer struct {
	repo    *memory.Repository
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo := memory.NewRepository()
	service := domain.NewService(repo, domain.WithClock(func() time.Time { return testNow }))

	mux := http.NewServeMux()
	NewHandler(service).RegisterRoutes(mux)
	return &testServer{
		repo:    repo,
		handler: auth.NewMiddleware(tokenConfig).Wrap(mux),
	}
}

func token(t *testing.T, tenantID string, scopes ...string) string {
	t.Helper()
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	signed, err := platformauth.Sign(platformauth.Claims{
		Subject:   "coach-1",
		TenantID:  tenantID,
		Scopes:    set,
		ExpiresAt: time.Now().Add(time.Hour),
	}, tokenConfig)
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, method, target, bearer string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func strengthRequest() CreateWorkoutRequest {
	return CreateWorkoutRequest{
		UserID:      "ana",
		WorkoutType: "strength",
		StartedAt:   testNow.Add(-2 * time.Hour),
		DurationMin: intPtr(20),
		Source:      "player",
		Entries: []EntryRequest{{
			Exercise: "squat",
			Sets: []SetRequest{
				{Reps: intPtr(5), Weight: floatPtr(100)},
				{Reps: intPtr(5), Weight: floatPtr(110)},
				{Reps: intPtr(5), Weight: floatPtr(120)},
			},
		}},
	}
}

func TestCreateWorkoutReturnsScore(t *testing.T) {
	srv := newTestServer(t)
	bearer := token(t, "tenant-1", auth.ScopeWorkoutsWrite)

	rr := srv.do(t, http.MethodPost, "/v1/workouts", bearer, strengthRequest(), map[string]string{"Idempotency-Key": "k-1"})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	resp := decode[CreateWorkoutResponse](t, rr)
	require.NotEmpty(t, resp.WorkoutID)
	// volume 1650 > 1000
	assert.Equal(t, 2.0, resp.Points)
	assert.Equal(t, "moderate", resp.Category)
	assert.False(t, resp.Replay)

	rr = srv.do(t, http.MethodPost, "/v1/workouts", bearer, strengthRequest(), map[string]string{"Idempotency-Key": "k-1"})
	require.Equal(t, http.StatusOK, rr.Code)
	replay := decode[CreateWorkoutResponse](t, rr)
	assert.Equal(t, resp.WorkoutID, replay.WorkoutID)
	assert.True(t, replay.Replay)
}

func TestCreateTeamWorkoutScoresTeam(t *testing.T) {
	srv := newTestServer(t)
	req := strengthRequest()
	req.Source = "team"
	req.DurationMin = intPtr(120)

	rr := srv.do(t, http.MethodPost, "/v1/workouts", token(t, "tenant-1", auth.ScopeWorkoutsWrite), req, nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	resp := decode[CreateWorkoutResponse](t, rr)
	assert.Equal(t, 2.5, resp.Points)
	assert.Equal(t, "team", resp.Category)
}

func TestCreateWorkoutValidation(t *testing.T) {
	srv := newTestServer(t)
	bearer := token(t, "tenant-1", auth.ScopeWorkoutsWrite)

	tests := []struct {
		name   string
		mutate func(*CreateWorkoutRequest)
		detail string
	}{
		{"unknown source", func(r *CreateWorkoutRequest) { r.Source = "parent" }, "source must be one of [player coach team]"},
		{"negative duration", func(r *CreateWorkoutRequest) { r.DurationMin = intPtr(-5) }, "duration_min must be >= 0"},
		{"negative reps", func(r *CreateWorkoutRequest) { r.Entries[0].Sets[1].Reps = intPtr(-1) }, "entries[0].sets[1].reps must be >= 0"},
		{"negative weight", func(r *CreateWorkoutRequest) { r.Entries[0].Sets[2].Weight = floatPtr(-20) }, "entries[0].sets[2].weight must be >= 0"},
		{"blank user", func(r *CreateWorkoutRequest) { r.UserID = "  " }, "user_id is required"},
		{"missing started_at", func(r *CreateWorkoutRequest) { r.StartedAt = time.Time{} }, "started_at is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := strengthRequest()
			tc.mutate(&req)
			rr := srv.do(t, http.MethodPost, "/v1/workouts", bearer, req, nil)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			body := decode[map[string]string](t, rr)
			assert.Equal(t, "validation_failed", body["type"])
			assert.Contains(t, body["detail"], tc.detail)
		})
	}
	require.Empty(t, srv.repo.Events())
}

func TestCreateWorkoutAcceptsMissingOptionalFields(t *testing.T) {
	srv := newTestServer(t)
	req := CreateWorkoutRequest{UserID: "ana", WorkoutType: "mobility", StartedAt: testNow, Source: "coach"}

	rr := srv.do(t, http.MethodPost, "/v1/workouts", token(t, "tenant-1", auth.ScopeWorkoutsWrite), req, nil)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	resp := decode[CreateWorkoutResponse](t, rr)
	assert.Equal(t, 1.0, resp.Points)
	assert.Equal(t, "light", resp.Category)
}

func TestCreateWorkoutRequiresWriteScope(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(t, http.MethodPost, "/v1/workouts", token(t, "tenant-1", auth.ScopeWorkoutsRead), strengthRequest(), nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = srv.do(t, http.MethodPost, "/v1/workouts", "", strengthRequest(), nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetWorkoutIsTenantScoped(t *testing.T) {
	srv := newTestServer(t)
	rr := srv.do(t, http.MethodPost, "/v1/workouts", token(t, "tenant-1", auth.ScopeWorkoutsWrite), strengthRequest(), nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	created := decode[CreateWorkoutResponse](t, rr)

	rr = srv.do(t, http.MethodGet, "/v1/workouts/"+created.WorkoutID, token(t, "tenant-1", auth.ScopeWorkoutsRead), nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	view := decode[WorkoutView](t, rr)
	assert.Equal(t, "ana", view.UserID)
	require.NotNil(t, view.Category)
	assert.Equal(t, "moderate", *view.Category)
	require.Len(t, view.Entries, 1)
	assert.Len(t, view.Entries[0].Sets, 3)

	rr = srv.do(t, http.MethodGet, "/v1/workouts/"+created.WorkoutID, token(t, "tenant-2", auth.ScopeWorkoutsRead), nil, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListWorkoutsPaginates(t *testing.T) {
	srv := newTestServer(t)
	write := token(t, "tenant-1", auth.ScopeWorkoutsWrite)
	for i := 0; i < 3; i++ {
		req := strengthRequest()
		req.StartedAt = testNow.Add(-time.Duration(i) * time.Hour)
		rr := srv.do(t, http.MethodPost, "/v1/workouts", write, req, nil)
		require.Equal(t, http.StatusAccepted, rr.Code)
	}

	read := token(t, "tenant-1", auth.ScopeWorkoutsRead)
	rr := srv.do(t, http.MethodGet, "/v1/workouts?user_id=ana&limit=2", read, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	first := decode[ListWorkoutsResponse](t, rr)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)

	rr = srv.do(t, http.MethodGet, "/v1/workouts?user_id=ana&limit=2&cursor="+first.NextCursor, read, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	second := decode[ListWorkoutsResponse](t, rr)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.NextCursor)

	rr = srv.do(t, http.MethodGet, "/v1/workouts?user_id=ana&cursor=%25%25", read, nil, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/workouts", read, nil, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListWorkoutsClampsPageSize(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < maxListLimit+5; i++ {
		srv.repo.Seed(domain.WorkoutAggregate{
			ID:        fmt.Sprintf("w-%03d", i),
			TenantID:  "tenant-1",
			UserID:    "ana",
			StartedAt: testNow.Add(-time.Duration(i) * time.Minute),
			Source:    scoring.SourcePlayer,
		})
	}

	rr := srv.do(t, http.MethodGet, "/v1/workouts?user_id=ana&limit=100000", token(t, "tenant-1", auth.ScopeWorkoutsRead), nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[ListWorkoutsResponse](t, rr)
	require.Len(t, page.Items, maxListLimit)
	require.NotEmpty(t, page.NextCursor)
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, 20, parseLimit("", 20, 100))
	assert.Equal(t, 20, parseLimit("-3", 20, 100))
	assert.Equal(t, 20, parseLimit("ten", 20, 100))
	assert.Equal(t, 7, parseLimit("7", 20, 100))
	assert.Equal(t, 100, parseLimit("101", 20, 100))
}

func TestWeeklyPoints(t *testing.T) {
	srv := newTestServer(t)
	monday := time.Date(2026, time.October, 12, 0, 0, 0, 0, time.UTC)
	scoredAgg := func(id string, at time.Time, source scoring.Source, category scoring.Category) domain.WorkoutAggregate {
		points := scoring.PointsForCategory(category)
		return domain.WorkoutAggregate{
			ID: id, TenantID: "tenant-1", UserID: "ana", StartedAt: at,
			Source: source, Points: &points, Category: &category,
		}
	}
	srv.repo.Seed(
		scoredAgg("w1", monday.Add(18*time.Hour), scoring.SourceTeam, scoring.CategoryTeam),
		scoredAgg("w2", monday.Add(20*time.Hour), scoring.SourcePlayer, scoring.CategoryIntensive),
		scoredAgg("w3", monday.Add(3*24*time.Hour), scoring.SourceCoach, scoring.CategoryModerate),
		scoredAgg("w4", monday.Add(7*24*time.Hour), scoring.SourcePlayer, scoring.CategoryIntensive),
	)

	read := token(t, "tenant-1", auth.ScopeWorkoutsRead)
	rr := srv.do(t, http.MethodGet, "/v1/points/weekly?user_id=ana&week=2026-W42", read, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[WeeklyPointsResponse](t, rr)
	assert.Equal(t, "2026-W42", resp.Week)
	assert.Equal(t, 7.5, resp.TotalPoints)
	assert.Equal(t, 3, resp.Workouts)
	assert.Equal(t, 2, resp.ActiveDays)
	assert.Equal(t, 1, resp.TeamDays)
	assert.Equal(t, 1, resp.IndividualDays)
	require.Len(t, resp.Categories, 4)
	require.Len(t, resp.Days, 2)

	// defaults to the current week, which is the same one
	rr = srv.do(t, http.MethodGet, "/v1/points/weekly?user_id=ana", read, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2026-W42", decode[WeeklyPointsResponse](t, rr).Week)

	rr = srv.do(t, http.MethodGet, "/v1/points/weekly?user_id=ana&week=2026-W99", read, nil, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLeaderboard(t *testing.T) {
	srv := newTestServer(t)
	write := token(t, "tenant-1", auth.ScopeWorkoutsWrite)
	post := func(user, team, source string, duration int) {
		req := CreateWorkoutRequest{UserID: user, TeamID: team, WorkoutType: "session", StartedAt: testNow, DurationMin: intPtr(duration), Source: source}
		rr := srv.do(t, http.MethodPost, "/v1/workouts", write, req, nil)
		require.Equal(t, http.StatusAccepted, rr.Code)
	}
	post("ana", "red", "player", 90)
	post("ana", "red", "team", 60)
	post("ben", "red", "player", 45)
	post("cleo", "blue", "player", 70)

	read := token(t, "tenant-1", auth.ScopeWorkoutsRead)
	rr := srv.do(t, http.MethodGet, "/v1/points/leaderboard?period=week", read, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	board := decode[LeaderboardResponse](t, rr)
	assert.Equal(t, "2026-W42", board.Period)
	require.Len(t, board.Entries, 3)
	assert.Equal(t, LeaderboardEntryView{Rank: 1, UserID: "ana", Points: 5.5, Workouts: 2}, board.Entries[0])
	assert.Equal(t, "cleo", board.Entries[1].UserID)
	assert.Equal(t, "ben", board.Entries[2].UserID)

	rr = srv.do(t, http.MethodGet, "/v1/points/leaderboard?period=month&at=2026-10-01&team_id=red&limit=1", read, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	board = decode[LeaderboardResponse](t, rr)
	assert.Equal(t, "2026-10", board.Period)
	assert.Equal(t, "red", board.TeamID)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "ana", board.Entries[0].UserID)

	rr = srv.do(t, http.MethodGet, "/v1/points/leaderboard?period=decade", read, nil, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/points/leaderboard?at=10/01/2026", read, nil, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPointTable(t *testing.T) {
	srv := newTestServer(t)
	rr := srv.do(t, http.MethodGet, "/v1/points/table", token(t, "tenant-1", auth.ScopeWorkoutsRead), nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[PointTableResponse](t, rr)
	assert.Equal(t, map[string]float64{"light": 1, "moderate": 2, "team": 2.5, "intensive": 3}, resp.Points)
	assert.Equal(t, 60, resp.Thresholds.IntensiveMinDuration)
	assert.Equal(t, 8, resp.Thresholds.ModerateMinSets)
}

func TestHealthzSkipsAuth(t *testing.T) {
	srv := newTestServer(t)
	rr := srv.do(t, http.MethodGet, "/healthz", "", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", strings.TrimSpace(rr.Body.String()))
}

func TestUnsupportedMethod(t *testing.T) {
	srv := newTestServer(t)
	rr := srv.do(t, http.MethodDelete, "/v1/workouts", token(t, "tenant-1", auth.ScopeWorkoutsWrite), nil, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
