package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"plan-engine/internal/coordinator"
	"plan-engine/internal/plan"
	"plan-engine/internal/shared"
)

type planResponse struct {
	Plan    plan.Plan `json:"plan"`
	Version int64     `json:"version"`
}

type createPlanBody struct {
	PlanType      string   `json:"plan_type"`
	DurationWeeks int      `json:"duration_weeks"`
	Intensity     string   `json:"intensity"`
	SpecificGoals []string `json:"specific_goals"`
	UseAI         bool     `json:"use_ai"`
}

// Fields shared by every request that changes a plan.
type adjustEnvelope struct {
	RequestID      string `json:"request_id"`
	BasedOnVersion int64  `json:"based_on_version"`
}

type generalAdjustBody struct {
	adjustEnvelope
	AdjustmentRequest string `json:"adjustment_request"`
	UserFeedback      string `json:"user_feedback"`
	Agent             string `json:"agent"`
}

type workoutAdjustBody struct {
	adjustEnvelope
	WeekName        string   `json:"week_name"`
	SkippedWorkouts []string `json:"skipped_workouts"`
	Reason          string   `json:"reason"`
}

type nutritionAdjustBody struct {
	adjustEnvelope
	WeekName      string        `json:"week_name"`
	ExtraCalories float64       `json:"extra_calories"`
	DayOfWeek     *plan.Weekday `json:"day_of_week"`
}

type mealTrackingBody struct {
	adjustEnvelope
	WeekName   string        `json:"week_name"`
	DayOfWeek  *plan.Weekday `json:"day_of_week"`
	MealType   string        `json:"meal_type"`
	ActualMeal string        `json:"actual_meal"`
	Completed  *bool         `json:"completed"`
}

type workoutTrackingBody struct {
	adjustEnvelope
	WeekName  string `json:"week_name"`
	WorkoutID string `json:"workout_id"`
	Completed *bool  `json:"completed"`
}

func invalid(field string) error {
	return &shared.ValidationError{Reason: shared.ReasonInvalidRequest, Field: field}
}

func (s *Server) createPlan(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var body createPlanBody
	if err := decode(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	planType, ok := plan.ParseType(body.PlanType)
	if !ok {
		s.fail(w, r, invalid("plan_type"))
		return
	}
	intensity := plan.IntensityNone
	if body.Intensity != "" {
		if intensity, ok = plan.ParseIntensity(body.Intensity); !ok {
			s.fail(w, r, invalid("intensity"))
			return
		}
	}

	snap, err := s.plans.CreatePlan(r.Context(), userID, coordinator.CreateOptions{
		Options: plan.Options{
			Type:      planType,
			Weeks:     body.DurationWeeks,
			Intensity: intensity,
			Goals:     body.SpecificGoals,
		},
		UseAI: body.UseAI,
	})
	if err != nil {
		s.failPlan(w, r, userID, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, planResponse{Plan: snap.Plan, Version: snap.Version})
}

func (s *Server) getPlan(w http.ResponseWriter, r *http.Request) {
	snap, err := s.plans.CurrentPlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, planResponse{Plan: snap.Plan, Version: snap.Version})
}

func (s *Server) deletePlan(w http.ResponseWriter, r *http.Request) {
	if err := s.plans.DeletePlan(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "plan deleted"})
}

func (s *Server) validatePlan(w http.ResponseWriter, r *http.Request) {
	outcome, snap, err := s.plans.ValidateCurrent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Valid   bool   `json:"valid"`
		Reason  string `json:"reason,omitempty"`
		Field   string `json:"field,omitempty"`
		Version int64  `json:"version"`
	}{outcome.Accepted, outcome.Reason, outcome.Field, snap.Version})
}

func (s *Server) adjustPlan(w http.ResponseWriter, r *http.Request) {
	var body generalAdjustBody
	if err := decode(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if body.AdjustmentRequest == "" {
		s.fail(w, r, invalid("adjustment_request"))
		return
	}
	agent, ok := shared.ParseAgentKind(body.Agent)
	if !ok {
		s.fail(w, r, invalid("agent"))
		return
	}
	s.submit(w, r, body.adjustEnvelope, plan.KindGeneralAdjustment, func(req *plan.AdjustmentRequest) {
		req.General = &plan.GeneralAdjustment{Instruction: body.AdjustmentRequest, Feedback: body.UserFeedback, Agent: agent}
	})
}

func (s *Server) adjustWorkouts(w http.ResponseWriter, r *http.Request) {
	var body workoutAdjustBody
	if err := decode(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	switch {
	case body.WeekName == "":
		s.fail(w, r, invalid("week_name"))
		return
	case len(body.SkippedWorkouts) == 0:
		s.fail(w, r, invalid("skipped_workouts"))
		return
	}
	s.submit(w, r, body.adjustEnvelope, plan.KindWorkoutSkip, func(req *plan.AdjustmentRequest) {
		req.WorkoutSkip = &plan.WorkoutSkip{Week: body.WeekName, WorkoutIDs: body.SkippedWorkouts, Reason: body.Reason}
	})
}

func (s *Server) adjustNutrition(w http.ResponseWriter, r *http.Request) {
	var body nutritionAdjustBody
	if err := decode(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	switch {
	case body.WeekName == "":
		s.fail(w, r, invalid("week_name"))
		return
	case body.ExtraCalories <= 0:
		s.fail(w, r, invalid("extra_calories"))
		return
	case body.DayOfWeek == nil:
		s.fail(w, r, invalid("day_of_week"))
		return
	}
	s.submit(w, r, body.adjustEnvelope, plan.KindNutritionExtra, func(req *plan.AdjustmentRequest) {
		req.NutritionExtra = &plan.NutritionExtra{Week: body.WeekName, Day: *body.DayOfWeek, ExtraCalories: body.ExtraCalories}
	})
}

func (s *Server) trackMeal(w http.ResponseWriter, r *http.Request) {
	var body mealTrackingBody
	if err := decode(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	slot, ok := plan.ParseMealSlot(body.MealType)
	switch {
	case !ok:
		s.fail(w, r, invalid("meal_type"))
		return
	case body.WeekName == "":
		s.fail(w, r, invalid("week_name"))
		return
	case body.DayOfWeek == nil:
		s.fail(w, r, invalid("day_of_week"))
		return
	}
	s.submit(w, r, body.adjustEnvelope, plan.KindCompletionLog, func(req *plan.AdjustmentRequest) {
		req.Completion = &plan.CompletionLog{
			Week:      body.WeekName,
			Day:       *body.DayOfWeek,
			Meal:      slot,
			Actual:    body.ActualMeal,
			Completed: body.Completed == nil || *body.Completed,
		}
	})
}

func (s *Server) trackWorkout(w http.ResponseWriter, r *http.Request) {
	var body workoutTrackingBody
	if err := decode(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	switch {
	case body.WeekName == "":
		s.fail(w, r, invalid("week_name"))
		return
	case body.WorkoutID == "":
		s.fail(w, r, invalid("workout_id"))
		return
	}
	s.submit(w, r, body.adjustEnvelope, plan.KindCompletionLog, func(req *plan.AdjustmentRequest) {
		req.Completion = &plan.CompletionLog{
			Week:      body.WeekName,
			WorkoutID: body.WorkoutID,
			Completed: body.Completed == nil || *body.Completed,
		}
	})
}

// submit builds an adjustment request for the user in the path and runs it
// through the coordinator. A missing request id gets a fresh one, so such
// requests are never replayed.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, env adjustEnvelope, kind plan.RequestKind, fill func(*plan.AdjustmentRequest)) {
	userID := chi.URLParam(r, "id")
	req := plan.AdjustmentRequest{
		ID:             env.RequestID,
		UserID:         userID,
		BasedOnVersion: env.BasedOnVersion,
		Kind:           kind,
	}
	if req.ID == "" {
		req.ID = s.newID()
	}
	fill(&req)

	out, err := s.plans.Submit(r.Context(), req)
	if err != nil {
		var outcome *coordinator.Outcome
		if out.State != "" {
			outcome = &out
		}
		s.failPlan(w, r, userID, err, outcome)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// failPlan is fail for plan operations: conflicts carry the current plan.
func (s *Server) failPlan(w http.ResponseWriter, r *http.Request, userID string, err error, out *coordinator.Outcome) {
	status, resp := statusFor(err)
	resp.Outcome = out
	if out != nil && out.Reason != "" {
		resp.Reason, resp.Field = out.Reason, out.Field
	}

	switch status {
	case http.StatusInternalServerError:
		s.fail(w, r, err)
		return
	case http.StatusConflict:
		if out != nil && out.Plan != nil {
			resp.Plan, resp.Version = out.Plan, out.Version
		} else if snap, gerr := s.plans.CurrentPlan(r.Context(), userID); gerr == nil {
			resp.Plan, resp.Version = &snap.Plan, snap.Version
		}
	}
	writeJSON(w, status, resp)
}
