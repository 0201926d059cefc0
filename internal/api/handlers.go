// Package api exposes HTTP handlers for the training service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/training/internal/auth"
	"example.com/training/internal/domain"
	"example.com/training/internal/persistence"
	"example.com/training/internal/scoring"
)

const (
	defaultListLimit        = 20
	maxListLimit            = 100
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/workouts", h.workouts)
	mux.HandleFunc("/v1/workouts/", h.workoutByID)
	mux.HandleFunc("/v1/points/weekly", h.weeklyPoints)
	mux.HandleFunc("/v1/points/leaderboard", h.leaderboard)
	mux.HandleFunc("/v1/points/table", pointTable)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) workouts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createWorkout(w, r)
	case http.MethodGet:
		h.listWorkouts(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) workoutByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/workouts/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing workout id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getWorkout(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createWorkout(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsWrite)
	if !ok {
		return
	}

	var req CreateWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	aggregate, replay, err := h.service.CreateWorkout(r.Context(), domain.CreateWorkoutInput{
		TenantID:       claims.TenantID,
		UserID:         strings.TrimSpace(req.UserID),
		TeamID:         strings.TrimSpace(req.TeamID),
		WorkoutType:    strings.TrimSpace(req.WorkoutType),
		StartedAt:      req.StartedAt,
		DurationMin:    req.DurationMin,
		Source:         scoring.Source(req.Source),
		Entries:        req.entries(),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := CreateWorkoutResponse{
		WorkoutID: aggregate.ID,
		Replay:    replay,
	}
	if aggregate.Scored() {
		resp.Points = *aggregate.Points
		resp.Category = string(*aggregate.Category)
	}

	status := http.StatusAccepted
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *Handler) getWorkout(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsRead, auth.ScopeWorkoutsWrite)
	if !ok {
		return
	}

	aggregate, err := h.service.GetWorkout(r.Context(), claims.TenantID, id)
	if err != nil {
		if errors.Is(err, domain.ErrWorkoutNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "workout not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toWorkoutView(*aggregate))
}

func (h *Handler) listWorkouts(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsRead, auth.ScopeWorkoutsWrite)
	if !ok {
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"), defaultListLimit, maxListLimit)

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	aggregates, next, err := h.service.ListWorkoutsByUser(r.Context(), claims.TenantID, userID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]WorkoutView, 0, len(aggregates))
	for _, agg := range aggregates {
		items = append(items, toWorkoutView(agg))
	}

	writeJSON(w, http.StatusOK, ListWorkoutsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) weeklyPoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsRead, auth.ScopeWorkoutsWrite)
	if !ok {
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	period := h.service.CurrentWeek()
	if raw := strings.TrimSpace(r.URL.Query().Get("week")); raw != "" {
		parsed, err := scoring.ParseISOWeek(raw, h.service.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		period = parsed
	}

	summary, err := h.service.WeeklySummary(r.Context(), claims.TenantID, userID, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := WeeklyPointsResponse{
		UserID:         userID,
		Week:           period.Label,
		Start:          period.Start,
		End:            period.End,
		TotalPoints:    summary.TotalPoints,
		Workouts:       summary.Workouts,
		Unscored:       summary.Unscored,
		ActiveDays:     summary.ActiveDays,
		TeamDays:       summary.TeamDays,
		IndividualDays: summary.IndividualDays,
		Categories:     toCategoryViews(summary.Categories),
		Days:           make([]DayView, 0, len(summary.Days)),
	}
	for _, day := range summary.Days {
		resp.Days = append(resp.Days, DayView(day))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsRead, auth.ScopeWorkoutsWrite)
	if !ok {
		return
	}

	query := r.URL.Query()
	var at time.Time
	if raw := strings.TrimSpace(query.Get("at")); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, h.service.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "at must be YYYY-MM-DD")
			return
		}
		at = parsed
	}

	period, err := h.service.PeriodFor(strings.TrimSpace(query.Get("period")), at)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownPeriod) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	limit := parseLimit(query.Get("limit"), defaultLeaderboardLimit, maxLeaderboardLimit)
	teamID := strings.TrimSpace(query.Get("team_id"))

	board, err := h.service.Leaderboard(r.Context(), claims.TenantID, teamID, period, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := LeaderboardResponse{
		Period:  board.Period.Label,
		Start:   board.Period.Start,
		End:     board.Period.End,
		TeamID:  board.TeamID,
		Entries: make([]LeaderboardEntryView, 0, len(board.Entries)),
	}
	for _, entry := range board.Entries {
		resp.Entries = append(resp.Entries, LeaderboardEntryView{
			Rank:     entry.Rank,
			UserID:   entry.UserID,
			Points:   entry.Points,
			Workouts: entry.Workouts,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func pointTable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	points := make(map[string]float64, len(scoring.Categories()))
	for _, c := range scoring.Categories() {
		points[string(c)] = scoring.PointsForCategory(c)
	}
	writeJSON(w, http.StatusOK, PointTableResponse{
		Points: points,
		Thresholds: ThresholdsView{
			IntensiveMinDuration: scoring.IntensiveMinDuration,
			IntensiveMinVolume:   scoring.IntensiveMinVolume,
			ModerateMinDuration:  scoring.ModerateMinDuration,
			ModerateMinSets:      scoring.ModerateMinSets,
			ModerateMinVolume:    scoring.ModerateMinVolume,
		},
	})
}

// requireScope writes 401/403 and returns false unless the request carries one of scopes.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasAnyScope(scopes...) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
		return nil, false
	}
	return claims, true
}

// parseLimit returns fallback for missing or non-positive values and clamps to max when max > 0.
func parseLimit(raw string, fallback, max int) int {
	limit := fallback
	if raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toCategoryViews(totals []scoring.CategoryTotal) []CategoryView {
	out := make([]CategoryView, 0, len(totals))
	for _, total := range totals {
		out = append(out, CategoryView{Category: string(total.Category), Count: total.Count, Points: total.Points})
	}
	return out
}

func toWorkoutView(agg domain.WorkoutAggregate) WorkoutView {
	view := WorkoutView{
		WorkoutID:   agg.ID,
		TenantID:    agg.TenantID,
		UserID:      agg.UserID,
		TeamID:      agg.TeamID,
		WorkoutType: agg.WorkoutType,
		StartedAt:   agg.StartedAt,
		DurationMin: agg.DurationMin,
		Source:      string(agg.Source),
		Entries:     make([]EntryRequest, 0, len(agg.Entries)),
		Points:      agg.Points,
		Version:     agg.Version,
		CreatedAt:   agg.CreatedAt,
		UpdatedAt:   agg.UpdatedAt,
		ScoredAt:    agg.ScoredAt,
	}
	if agg.Category != nil {
		category := string(*agg.Category)
		view.Category = &category
	}
	for _, e := range agg.Entries {
		entry := EntryRequest{Exercise: e.Exercise, Sets: make([]SetRequest, 0, len(e.Sets))}
		for _, s := range e.Sets {
			entry.Sets = append(entry.Sets, SetRequest{Reps: s.Reps, Weight: s.Weight})
		}
		view.Entries = append(view.Entries, entry)
	}
	return view
}
