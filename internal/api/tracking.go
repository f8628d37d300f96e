package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"plan-engine/internal/shared"
	"plan-engine/internal/tracking"
)

type foodLogBody struct {
	Date     string              `json:"date"`
	MealType string              `json:"meal_type"`
	Items    []tracking.FoodItem `json:"items"`
}

func (s *Server) logFood(w http.ResponseWriter, r *http.Request) {
	var body foodLogBody
	if err := decode(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	log, err := s.tracking.LogFood(r.Context(), chi.URLParam(r, "id"), body.Date, body.MealType, body.Items)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, log)
}

func (s *Server) getFoodLog(w http.ResponseWriter, r *http.Request) {
	log, err := s.tracking.FoodLog(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("date"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (s *Server) calorieSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.tracking.Calories(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("date"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// dailyLog is the food log of one day with its calorie summary. A day with
// nothing logged is not found.
func (s *Server) dailyLog(w http.ResponseWriter, r *http.Request) {
	userID, date := chi.URLParam(r, "id"), r.URL.Query().Get("date")
	sum, err := s.tracking.Calories(r.Context(), userID, date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if sum.TotalItems == 0 {
		s.fail(w, r, fmt.Errorf("no log for %s: %w", sum.Date, shared.ErrNotFound))
		return
	}
	log, err := s.tracking.FoodLog(r.Context(), userID, sum.Date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": sum.Date, "food_log": log, "calories": sum})
}

func (s *Server) trackingHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.fail(w, r, invalid("limit"))
			return
		}
		limit = n
	}
	days, err := s.tracking.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"daily_logs": days, "total": len(days)})
}
