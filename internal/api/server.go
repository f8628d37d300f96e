// Package api exposes the plan engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"plan-engine/internal/advisor"
	"plan-engine/internal/coordinator"
	"plan-engine/internal/metrics"
	"plan-engine/internal/plan"
	"plan-engine/internal/planstore"
	"plan-engine/internal/profile"
	"plan-engine/internal/tracking"
	"plan-engine/internal/validator"
)

// Plans is the plan side of the engine.
type Plans interface {
	Submit(ctx context.Context, req plan.AdjustmentRequest) (coordinator.Outcome, error)
	CreatePlan(ctx context.Context, userID string, opts coordinator.CreateOptions) (planstore.Snapshot, error)
	DeletePlan(ctx context.Context, userID string) error
	CurrentPlan(ctx context.Context, userID string) (planstore.Snapshot, error)
	ValidateCurrent(ctx context.Context, userID string) (validator.Outcome, planstore.Snapshot, error)
}

// Profiles manages health and nutrition profiles.
type Profiles interface {
	Health(ctx context.Context, userID string) (profile.HealthProfile, error)
	CreateHealth(ctx context.Context, userID string, body json.RawMessage) (profile.HealthProfile, error)
	UpdateHealth(ctx context.Context, userID string, patch json.RawMessage) (profile.HealthProfile, error)
	DeleteHealth(ctx context.Context, userID string) error
	Nutrition(ctx context.Context, userID string) (profile.NutritionProfile, error)
	CreateNutrition(ctx context.Context, userID string, body json.RawMessage) (profile.NutritionProfile, error)
	UpdateNutrition(ctx context.Context, userID string, patch json.RawMessage) (profile.NutritionProfile, error)
	DeleteNutrition(ctx context.Context, userID string) error
}

// Tracking is the daily food log.
type Tracking interface {
	LogFood(ctx context.Context, userID, date, mealType string, items []tracking.FoodItem) (tracking.DayLog, error)
	FoodLog(ctx context.Context, userID, date string) (tracking.DayLog, error)
	Calories(ctx context.Context, userID, date string) (tracking.CalorieSummary, error)
	History(ctx context.Context, userID string, limit int) ([]tracking.DaySummary, error)
}

// Advisor answers the read-only agent questions.
type Advisor interface {
	AnalyzeHealth(ctx context.Context, userID string) (advisor.HealthAnalysis, error)
	AnalyzeNutrition(ctx context.Context, userID string) (advisor.NutritionAnalysis, error)
	SuggestMeals(ctx context.Context, userID, mealType string, remaining advisor.Macros) ([]advisor.MealSuggestion, error)
}

// Deps are the collaborators of a Server. Verifier is optional; without
// it requests are not authenticated.
type Deps struct {
	Plans        Plans
	Profiles     Profiles
	Tracking     Tracking
	Advisor      Advisor
	Verifier     TokenVerifier
	DatabasePath string
}

// Server routes HTTP requests to the engine.
type Server struct {
	plans    Plans
	profiles Profiles
	tracking Tracking
	advisor  Advisor
	verifier TokenVerifier
	dbPath   string
	newID    func() string
	router   chi.Router
}

// NewServer creates a Server with its routes mounted.
func NewServer(d Deps) *Server {
	s := &Server{
		plans:    d.Plans,
		profiles: d.Profiles,
		tracking: d.Tracking,
		advisor:  d.Advisor,
		verifier: d.Verifier,
		dbPath:   d.DatabasePath,
		newID:    newRequestID,
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)

	r.Route("/users/{id}", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/health", s.createHealth)
		r.Get("/health", s.getHealth)
		r.Put("/health", s.updateHealth)
		r.Delete("/health", s.deleteHealth)
		r.Get("/health/analyze", s.analyzeHealth)
		r.Post("/nutrition", s.createNutrition)
		r.Get("/nutrition", s.getNutrition)
		r.Put("/nutrition", s.updateNutrition)
		r.Delete("/nutrition", s.deleteNutrition)
		r.Get("/nutrition/analyze", s.analyzeNutrition)
		r.Post("/nutrition/meal-suggestions", s.suggestMeals)

		r.Post("/plan", s.createPlan)
		r.Get("/plan", s.getPlan)
		r.Delete("/plan", s.deletePlan)
		r.Post("/plan/validate", s.validatePlan)
		r.Put("/plan/adjust", s.adjustPlan)
		r.Put("/plan/workout/adjust", s.adjustWorkouts)
		r.Put("/plan/nutrition/adjust", s.adjustNutrition)

		r.Post("/tracking/meals", s.trackMeal)
		r.Post("/tracking/workout", s.trackWorkout)
		r.Post("/tracking/food-log", s.logFood)
		r.Get("/tracking/food-log", s.getFoodLog)
		r.Get("/tracking/calories", s.calorieSummary)
		r.Get("/tracking/daily", s.dailyLog)
		r.Get("/tracking/history", s.trackingHistory)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metrics.GetSysHealth(s.dbPath))
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.InfoContext(r.Context(), "api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
