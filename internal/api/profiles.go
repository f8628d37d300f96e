package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"plan-engine/internal/advisor"
	"plan-engine/internal/shared"
)

// splitFlag removes a boolean flag from a JSON object so the rest can be
// applied as a profile patch.
func splitFlag(r *http.Request, flag string) (json.RawMessage, bool, error) {
	var fields map[string]json.RawMessage
	if err := decode(r, &fields); err != nil {
		return nil, false, err
	}
	var set bool
	if raw, ok := fields[flag]; ok {
		if err := json.Unmarshal(raw, &set); err != nil {
			return nil, false, err
		}
		delete(fields, flag)
	}
	if len(fields) == 0 {
		return nil, set, &shared.ValidationError{Reason: shared.ReasonInvalidRequest, Field: "body"}
	}
	patch, err := json.Marshal(fields)
	return patch, set, err
}

// insightError is reported in place of agent output when the profile update
// succeeded but the agent did not.
type insightError struct {
	Error string `json:"error"`
}

func (s *Server) updateHealth(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	patch, withInsights, err := splitFlag(r, "generate_insights")
	if err != nil {
		s.badBody(w, r, err)
		return
	}
	hp, err := s.profiles.UpdateHealth(r.Context(), userID, patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := struct {
		Profile    any `json:"profile"`
		AIInsights any `json:"ai_insights,omitempty"`
	}{Profile: hp}
	if withInsights {
		analysis, err := s.advisor.AnalyzeHealth(r.Context(), userID)
		if err != nil {
			slog.WarnContext(r.Context(), "api: health insights failed", "user_id", userID, "error", err)
			resp.AIInsights = insightError{Error: err.Error()}
		} else {
			resp.AIInsights = analysis
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) updateNutrition(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	patch, withRecommendations, err := splitFlag(r, "generate_recommendations")
	if err != nil {
		s.badBody(w, r, err)
		return
	}
	np, err := s.profiles.UpdateNutrition(r.Context(), userID, patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := struct {
		Nutrition         any `json:"nutrition"`
		AIRecommendations any `json:"ai_recommendations,omitempty"`
	}{Nutrition: np}
	if withRecommendations {
		analysis, err := s.advisor.AnalyzeNutrition(r.Context(), userID)
		if err != nil {
			slog.WarnContext(r.Context(), "api: nutrition recommendations failed", "user_id", userID, "error", err)
			resp.AIRecommendations = insightError{Error: err.Error()}
		} else {
			resp.AIRecommendations = analysis
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) createHealth(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := decode(r, &body); err != nil {
		s.badBody(w, r, err)
		return
	}
	hp, err := s.profiles.CreateHealth(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"profile": hp})
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	hp, err := s.profiles.Health(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": hp})
}

func (s *Server) deleteHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.profiles.DeleteHealth(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "health profile deleted"})
}

func (s *Server) createNutrition(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := decode(r, &body); err != nil {
		s.badBody(w, r, err)
		return
	}
	np, err := s.profiles.CreateNutrition(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"nutrition": np})
}

func (s *Server) getNutrition(w http.ResponseWriter, r *http.Request) {
	np, err := s.profiles.Nutrition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nutrition": np})
}

func (s *Server) deleteNutrition(w http.ResponseWriter, r *http.Request) {
	if err := s.profiles.DeleteNutrition(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "nutrition profile deleted"})
}

func (s *Server) analyzeHealth(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.advisor.AnalyzeHealth(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) analyzeNutrition(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.advisor.AnalyzeNutrition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) suggestMeals(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MealType        string         `json:"meal_type"`
		RemainingMacros advisor.Macros `json:"remaining_macros"`
	}
	if err := decode(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if body.MealType == "" {
		s.fail(w, r, invalid("meal_type"))
		return
	}
	suggestions, err := s.advisor.SuggestMeals(r.Context(), chi.URLParam(r, "id"), body.MealType, body.RemainingMacros)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"meal_type": body.MealType, "suggestions": suggestions})
}

func (s *Server) badBody(w http.ResponseWriter, r *http.Request, err error) {
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		s.fail(w, r, err)
		return
	}
	writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body")
}
