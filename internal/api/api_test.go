package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"plan-engine/internal/advisor"
	"plan-engine/internal/coordinator"
	"plan-engine/internal/database"
	"plan-engine/internal/plan"
	"plan-engine/internal/planstore"
	"plan-engine/internal/profile"
	"plan-engine/internal/shared"
	"plan-engine/internal/tracking"
	"plan-engine/internal/validator"
)

type memoryProfiles struct {
	health    map[string]profile.HealthProfile
	nutrition map[string]profile.NutritionProfile
}

func newMemoryProfiles() *memoryProfiles {
	return &memoryProfiles{health: map[string]profile.HealthProfile{}, nutrition: map[string]profile.NutritionProfile{}}
}

func (m *memoryProfiles) Health(ctx context.Context, userID string) (profile.HealthProfile, error) {
	p, ok := m.health[userID]
	if !ok {
		return p, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryProfiles) SaveHealth(ctx context.Context, userID string, p profile.HealthProfile) error {
	m.health[userID] = p
	return nil
}

func (m *memoryProfiles) Nutrition(ctx context.Context, userID string) (profile.NutritionProfile, error) {
	p, ok := m.nutrition[userID]
	if !ok {
		return p, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryProfiles) SaveNutrition(ctx context.Context, userID string, p profile.NutritionProfile) error {
	m.nutrition[userID] = p
	return nil
}

func (m *memoryProfiles) DeleteHealth(ctx context.Context, userID string) error {
	if _, ok := m.health[userID]; !ok {
		return shared.ErrNotFound
	}
	delete(m.health, userID)
	return nil
}

func (m *memoryProfiles) DeleteNutrition(ctx context.Context, userID string) error {
	if _, ok := m.nutrition[userID]; !ok {
		return shared.ErrNotFound
	}
	delete(m.nutrition, userID)
	return nil
}

type mockAdvisor struct {
	err error
}

func (m mockAdvisor) AnalyzeHealth(ctx context.Context, userID string) (advisor.HealthAnalysis, error) {
	var a advisor.HealthAnalysis
	a.BMIAssessment.Category = "Normal"
	return a, m.err
}

func (m mockAdvisor) AnalyzeNutrition(ctx context.Context, userID string) (advisor.NutritionAnalysis, error) {
	return advisor.NutritionAnalysis{Recommendations: []string{"eat more fiber"}}, m.err
}

func (m mockAdvisor) SuggestMeals(ctx context.Context, userID, mealType string, remaining advisor.Macros) ([]advisor.MealSuggestion, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []advisor.MealSuggestion{{Name: "Lentil soup", Calories: remaining.Calories}}, nil
}

type testServer struct {
	srv   *Server
	store *planstore.MemoryStore
}

func newTestServer(t *testing.T, adv Advisor, verifier TokenVerifier) *testServer {
	t.Helper()
	store := planstore.NewMemoryStore()
	c := coordinator.New(coordinator.Deps{
		Store:         store,
		Validator:     validator.New(3500),
		LockTimeout:   time.Second,
		CommitTimeout: time.Second,
	})
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	profiles := profile.NewService(newMemoryProfiles())
	srv := NewServer(Deps{
		Plans:        c,
		Profiles:     profiles,
		Tracking:     tracking.NewService(tracking.NewSQLRepository(db.SQL), profiles),
		Advisor:      adv,
		Verifier:     verifier,
		DatabasePath: t.TempDir(),
	})
	return &testServer{srv: srv, store: store}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestPlanRoutes(t *testing.T) {
	ts := newTestServer(t, mockAdvisor{}, nil)

	t.Run("GetMissing", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/users/u1/plan", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("Expected 404, got %d", rec.Code)
		}
	})

	t.Run("CreateCapsDuration", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/users/u1/plan", `{"plan_type":"combined","duration_weeks":9,"intensity":"medium"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[planResponse](t, rec)
		if resp.Version != 1 || len(resp.Plan.Weeks) != plan.MaxWeeks {
			t.Errorf("Expected version 1 with %d weeks, got %d with %d", plan.MaxWeeks, resp.Version, len(resp.Plan.Weeks))
		}
		if resp.Plan.Intensity != plan.IntensityModerate {
			t.Errorf("Expected moderate intensity, got %q", resp.Plan.Intensity)
		}
	})

	t.Run("CreateTwiceConflicts", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/users/u1/plan", `{}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("Expected 409, got %d", rec.Code)
		}
		resp := decodeBody[errorResponse](t, rec)
		if resp.Plan == nil || resp.Version != 1 {
			t.Errorf("Expected the current plan in the conflict, got %+v", resp)
		}
	})

	t.Run("InvalidPlanType", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/users/u2/plan", `{"plan_type":"keto"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", rec.Code)
		}
		if resp := decodeBody[errorResponse](t, rec); resp.Field != "plan_type" {
			t.Errorf("Expected field plan_type, got %q", resp.Field)
		}
	})

	t.Run("BadJSON", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/users/u1/plan/workout/adjust", `{"week_name":`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("SkipWorkouts", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/users/u1/plan/workout/adjust",
			`{"week_name":"Week 1","skipped_workouts":["w1","w2"],"reason":"travel","request_id":"r-skip"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		out := decodeBody[coordinator.Outcome](t, rec)
		if out.State != coordinator.StateCommitted || out.Version != 2 {
			t.Errorf("Expected commit at version 2, got %s/%d", out.State, out.Version)
		}
		if !out.Plan.Weeks[0].Day(plan.Tuesday).Workout.Skipped {
			t.Error("Expected Tuesday to be skipped")
		}

		again := ts.do(t, http.MethodPut, "/users/u1/plan/workout/adjust",
			`{"week_name":"Week 1","skipped_workouts":["w1","w2"],"request_id":"r-skip"}`)
		replay := decodeBody[coordinator.Outcome](t, again)
		if !replay.Replayed || replay.Version != 2 {
			t.Errorf("Expected replay of version 2, got %+v", replay)
		}
	})

	t.Run("SkipMissingWeekName", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/users/u1/plan/workout/adjust", `{"skipped_workouts":["w1"]}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("ExtraCaloriesOverCeiling", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/users/u1/plan/nutrition/adjust",
			`{"week_name":"Week 1","extra_calories":5000,"day_of_week":2}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[errorResponse](t, rec)
		if resp.Reason != shared.ReasonExceedsCeiling || resp.Outcome == nil || resp.Outcome.State != coordinator.StateRejected {
			t.Errorf("Unexpected rejection: %+v", resp)
		}
	})

	t.Run("ExtraCalories", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/users/u1/plan/nutrition/adjust",
			`{"week_name":"Week 1","extra_calories":200,"day_of_week":2,"based_on_version":2}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		out := decodeBody[coordinator.Outcome](t, rec)
		if got := out.Plan.Weeks[0].Day(plan.Wednesday).ExtraCalories; got != 200 {
			t.Errorf("Expected 200 extra calories on Wednesday, got %v", got)
		}
	})

	t.Run("DayOfWeekRequired", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/users/u1/plan/nutrition/adjust", `{"week_name":"Week 1","extra_calories":200}`)
		if resp := decodeBody[errorResponse](t, rec); rec.Code != http.StatusBadRequest || resp.Field != "day_of_week" {
			t.Fatalf("Expected 400 on day_of_week, got %d %+v", rec.Code, resp)
		}
	})

	t.Run("AdjustWithoutAgent", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/users/u1/plan/adjust", `{"adjustment_request":"less running"}`)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("Expected 503 without an agent, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("AdjustNeedsInstruction", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/users/u1/plan/adjust", `{"agent":"fitness"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("TrackMealAndWorkout", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/users/u1/tracking/meals",
			`{"week_name":"Week 1","day_of_week":"Mon","meal_type":"lunch","actual_meal":"Had soup"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		out := decodeBody[coordinator.Outcome](t, rec)
		lunch := out.Plan.Weeks[0].Day(plan.Monday).Meal(plan.Lunch)
		if !lunch.Completed || lunch.Actual != "Had soup" {
			t.Errorf("Expected completed lunch with actual meal, got %+v", lunch)
		}

		rec = ts.do(t, http.MethodPost, "/users/u1/tracking/workout", `{"week_name":"Week 1","workout_id":"w3"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		out = decodeBody[coordinator.Outcome](t, rec)
		if !out.Plan.Weeks[0].Day(plan.Wednesday).Workout.Completed {
			t.Error("Expected Wednesday workout to be completed")
		}

		rec = ts.do(t, http.MethodPost, "/users/u1/tracking/workout", `{"week_name":"Week 1","workout_id":"w3","completed":false}`)
		if resp := decodeBody[errorResponse](t, rec); rec.Code != http.StatusBadRequest || resp.Reason != shared.ReasonCompletionReverted {
			t.Errorf("Expected completion revert to be rejected, got %d %+v", rec.Code, resp)
		}
	})

	t.Run("TrackMealBadSlot", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/users/u1/tracking/meals", `{"week_name":"Week 1","day_of_week":0,"meal_type":"snacks"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/users/u1/plan/validate", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		resp := decodeBody[map[string]any](t, rec)
		if resp["valid"] != true {
			t.Errorf("Expected valid plan, got %v", resp)
		}
	})

	t.Run("DeleteThenRecreate", func(t *testing.T) {
		if rec := ts.do(t, http.MethodDelete, "/users/u1/plan", ""); rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if rec := ts.do(t, http.MethodDelete, "/users/u1/plan", ""); rec.Code != http.StatusNotFound {
			t.Fatalf("Expected 404 on second delete, got %d", rec.Code)
		}
		rec := ts.do(t, http.MethodPost, "/users/u1/plan", `{"plan_type":"diet"}`)
		if resp := decodeBody[planResponse](t, rec); resp.Version != 1 {
			t.Errorf("Expected recreated plan at version 1, got %d", resp.Version)
		}
	})
}

func TestProfileRoutes(t *testing.T) {
	t.Run("HealthWithInsights", func(t *testing.T) {
		ts := newTestServer(t, mockAdvisor{}, nil)
		rec := ts.do(t, http.MethodPut, "/users/u1/health", `{"weight":80,"height":200,"generate_insights":true}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[struct {
			Profile    profile.HealthProfile  `json:"profile"`
			AIInsights advisor.HealthAnalysis `json:"ai_insights"`
		}](t, rec)
		if resp.Profile.BMI != 20 {
			t.Errorf("Expected BMI 20, got %v", resp.Profile.BMI)
		}
		if resp.AIInsights.BMIAssessment.Category != "Normal" {
			t.Errorf("Expected insights, got %+v", resp.AIInsights)
		}
	})

	t.Run("InsightsFailureKeepsUpdate", func(t *testing.T) {
		ts := newTestServer(t, mockAdvisor{err: shared.ErrAIUnavailable}, nil)
		rec := ts.do(t, http.MethodPut, "/users/u1/health", `{"weight":80,"generate_insights":true}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"ai_insights":{"error"`) {
			t.Errorf("Expected insight error in body, got %s", rec.Body.String())
		}
	})

	t.Run("EmptyUpdate", func(t *testing.T) {
		ts := newTestServer(t, mockAdvisor{}, nil)
		rec := ts.do(t, http.MethodPut, "/users/u1/nutrition", `{"generate_recommendations":true}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("UnknownField", func(t *testing.T) {
		ts := newTestServer(t, mockAdvisor{}, nil)
		rec := ts.do(t, http.MethodPut, "/users/u1/nutrition", `{"favourite_colour":"red"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("AnalyzeWithoutProfile", func(t *testing.T) {
		ts := newTestServer(t, mockAdvisor{err: shared.ErrNotFound}, nil)
		if rec := ts.do(t, http.MethodGet, "/users/u1/health/analyze", ""); rec.Code != http.StatusNotFound {
			t.Fatalf("Expected 404, got %d", rec.Code)
		}
	})

	t.Run("MealSuggestions", func(t *testing.T) {
		ts := newTestServer(t, mockAdvisor{}, nil)
		if rec := ts.do(t, http.MethodPost, "/users/u1/nutrition/meal-suggestions", `{}`); rec.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400 without meal_type, got %d", rec.Code)
		}
		rec := ts.do(t, http.MethodPost, "/users/u1/nutrition/meal-suggestions", `{"meal_type":"dinner","remaining_macros":{"calories":600}}`)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Lentil soup") {
			t.Fatalf("Expected suggestions, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("AgentDown", func(t *testing.T) {
		ts := newTestServer(t, mockAdvisor{err: errors.Join(shared.ErrAIUnavailable, errors.New("timeout"))}, nil)
		if rec := ts.do(t, http.MethodGet, "/users/u1/nutrition/analyze", ""); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("Expected 503, got %d", rec.Code)
		}
	})
}

func TestProfileLifecycle(t *testing.T) {
	ts := newTestServer(t, mockAdvisor{}, nil)

	if rec := ts.do(t, http.MethodGet, "/users/u1/health", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 before create, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/users/u1/health", `{"weight":75.5}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 without height and age, got %d", rec.Code)
	}
	rec := ts.do(t, http.MethodPost, "/users/u1/health", `{"weight":75.5,"height":180,"age":28,"gender":"male"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/users/u1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	got := decodeBody[struct {
		Profile profile.HealthProfile `json:"profile"`
	}](t, rec)
	if got.Profile.BMI != 23.3 || got.Profile.Gender != "male" {
		t.Errorf("Unexpected stored profile: %+v", got.Profile)
	}

	if rec := ts.do(t, http.MethodDelete, "/users/u1/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on delete, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/users/u1/health", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, "/users/u1/health", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/users/u1/nutrition", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 for default nutrition, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodGet, "/users/u1/nutrition", "")
	nut := decodeBody[struct {
		Nutrition profile.NutritionProfile `json:"nutrition"`
	}](t, rec)
	if nut.Nutrition.CalorieGoal != profile.DefaultCalorieGoal || nut.Nutrition.MealsPerDay != 3 {
		t.Errorf("Expected default nutrition, got %+v", nut.Nutrition)
	}
	if rec := ts.do(t, http.MethodDelete, "/users/u1/nutrition", ""); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on delete, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/users/u1/nutrition", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
}

func TestTrackingRoutes(t *testing.T) {
	ts := newTestServer(t, mockAdvisor{}, nil)
	ts.do(t, http.MethodPost, "/users/u1/nutrition", `{"calorie_goal":1800}`)

	t.Run("DailyMissing", func(t *testing.T) {
		if rec := ts.do(t, http.MethodGet, "/users/u1/tracking/daily?date=2024-01-15", ""); rec.Code != http.StatusNotFound {
			t.Fatalf("Expected 404, got %d", rec.Code)
		}
	})

	t.Run("LogFood", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/users/u1/tracking/food-log",
			`{"date":"2024-01-15","meal_type":"breakfast","items":[{"name":"brisket","calories":"300","protein_g":"50"},{"name":"toast","calories":150}]}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		log := decodeBody[tracking.DayLog](t, rec)
		if log.TotalCalories != 450 || len(log.Meals["breakfast"]) != 2 {
			t.Errorf("Unexpected log: %+v", log)
		}
	})

	t.Run("LogFoodRejected", func(t *testing.T) {
		for name, body := range map[string]string{
			"NoItems":  `{"date":"2024-01-15","items":[]}`,
			"BadDate":  `{"date":"yesterday","items":[{"name":"x"}]}`,
			"BadMeal":  `{"meal_type":"elevenses","items":[{"name":"x"}]}`,
			"BadValue": `{"items":[{"name":"x","calories":"many"}]}`,
		} {
			if rec := ts.do(t, http.MethodPost, "/users/u1/tracking/food-log", body); rec.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d", name, rec.Code)
			}
		}
	})

	t.Run("GetFoodLog", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/users/u1/tracking/food-log?date=2024-01-15", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if log := decodeBody[tracking.DayLog](t, rec); log.TotalItems != 2 {
			t.Errorf("Expected 2 items, got %d", log.TotalItems)
		}
		rec = ts.do(t, http.MethodGet, "/users/u1/tracking/food-log?date=2024-01-16", "")
		if log := decodeBody[tracking.DayLog](t, rec); rec.Code != http.StatusOK || log.TotalItems != 0 {
			t.Errorf("Expected an empty day, got %d with %d items", rec.Code, log.TotalItems)
		}
	})

	t.Run("Calories", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/users/u1/tracking/calories?date=2024-01-15", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		sum := decodeBody[tracking.CalorieSummary](t, rec)
		if sum.CalorieGoal != 1800 || sum.CaloriesRemaining != 1350 || sum.PercentageConsumed != 25 {
			t.Errorf("Expected the nutrition goal to drive the summary, got %+v", sum)
		}
	})

	t.Run("Daily", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/users/u1/tracking/daily?date=2024-01-15", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		resp := decodeBody[struct {
			FoodLog  tracking.DayLog         `json:"food_log"`
			Calories tracking.CalorieSummary `json:"calories"`
		}](t, rec)
		if resp.FoodLog.TotalItems != 2 || resp.Calories.CaloriesConsumed != 450 {
			t.Errorf("Unexpected daily log: %+v", resp)
		}
	})

	t.Run("History", func(t *testing.T) {
		ts.do(t, http.MethodPost, "/users/u1/tracking/food-log", `{"date":"2024-01-14","items":[{"name":"soup","calories":200}]}`)
		rec := ts.do(t, http.MethodGet, "/users/u1/tracking/history?limit=1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		resp := decodeBody[struct {
			DailyLogs []tracking.DaySummary `json:"daily_logs"`
			Total     int                   `json:"total"`
		}](t, rec)
		if resp.Total != 1 || resp.DailyLogs[0].Date != "2024-01-15" {
			t.Errorf("Expected only the newest day, got %+v", resp)
		}
		if rec := ts.do(t, http.MethodGet, "/users/u1/tracking/history?limit=abc", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for a bad limit, got %d", rec.Code)
		}
	})
}

func TestHealthRoute(t *testing.T) {
	ts := newTestServer(t, mockAdvisor{}, nil)
	rec := ts.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if resp := decodeBody[map[string]any](t, rec); resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", resp)
	}
}

func TestAuthentication(t *testing.T) {
	const secret = "test-secret"
	ts := newTestServer(t, mockAdvisor{}, NewJWTVerifier(secret))

	sign := func(t *testing.T, subject string, method jwt.SigningMethod, key any) string {
		t.Helper()
		token, err := jwt.NewWithClaims(method, jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString(key)
		if err != nil {
			t.Fatalf("Failed to sign token: %v", err)
		}
		return token
	}
	get := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/users/u1/plan", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		ts.srv.ServeHTTP(rec, req)
		return rec.Code
	}

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"Missing", "", http.StatusUnauthorized},
		{"Garbage", "not-a-token", http.StatusUnauthorized},
		{"WrongSecret", sign(t, "u1", jwt.SigningMethodHS256, []byte("other")), http.StatusUnauthorized},
		{"OtherUser", sign(t, "u2", jwt.SigningMethodHS256, []byte(secret)), http.StatusForbidden},
		{"Valid", sign(t, "u1", jwt.SigningMethodHS256, []byte(secret)), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := get(tt.token); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}

	t.Run("HealthIsPublic", func(t *testing.T) {
		if rec := ts.do(t, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", rec.Code)
		}
	})
}
