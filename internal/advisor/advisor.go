// Package advisor holds the read-only agent helpers: profile analyses, meal
// suggestions and drafting new plans. Nothing here touches a stored plan.
package advisor

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"plan-engine/internal/llm"
	"plan-engine/internal/metrics"
	"plan-engine/internal/profile"
	"plan-engine/internal/shared"
)

var (
	//go:embed health_prompt.md
	healthPrompt string
	//go:embed nutrition_prompt.md
	nutritionPrompt string
	//go:embed meal_suggestion_prompt.md
	mealSuggestionPrompt string
	//go:embed meals_prompt.md
	mealsPrompt string
	//go:embed workouts_prompt.md
	workoutsPrompt string
)

var funcs = template.FuncMap{
	"join": func(s []string) string { return strings.Join(s, ", ") },
}

var (
	healthTmpl         = template.Must(template.New("health").Funcs(funcs).Parse(healthPrompt))
	nutritionTmpl      = template.Must(template.New("nutrition").Funcs(funcs).Parse(nutritionPrompt))
	mealSuggestionTmpl = template.Must(template.New("meal_suggestion").Funcs(funcs).Parse(mealSuggestionPrompt))
	mealsTmpl          = template.Must(template.New("meals").Funcs(funcs).Parse(mealsPrompt))
	workoutsTmpl       = template.Must(template.New("workouts").Funcs(funcs).Parse(workoutsPrompt))
)

// ProfileSource reads the profiles prompts are built from.
type ProfileSource interface {
	Health(ctx context.Context, userID string) (profile.HealthProfile, error)
	Nutrition(ctx context.Context, userID string) (profile.NutritionProfile, error)
}

// Recorder stores the metadata of agent calls.
type Recorder interface {
	RecordMeta(ctx context.Context, meta shared.AgentMeta, outcome string) error
}

// DefaultTimeout bounds a single agent call unless WithTimeout says otherwise.
const DefaultTimeout = 60 * time.Second

// Advisor runs the read-only agents.
type Advisor struct {
	analysisGen  llm.TextGenerator
	generators   map[shared.AgentKind]llm.TextGenerator
	profiles     ProfileSource
	metrics      Recorder
	dailyCeiling float64
	timeout      time.Duration
}

// New creates an Advisor. Analyses and suggestions go to analysisGen,
// which is usually a cache in front of gen; plan drafting goes to gen.
func New(gen, analysisGen llm.TextGenerator, profiles ProfileSource, metrics Recorder, dailyCeiling float64) *Advisor {
	return &Advisor{
		analysisGen: analysisGen,
		generators: map[shared.AgentKind]llm.TextGenerator{
			shared.AgentNutrition: gen,
			shared.AgentFitness:   gen,
		},
		profiles:     profiles,
		metrics:      metrics,
		dailyCeiling: dailyCeiling,
		timeout:      DefaultTimeout,
	}
}

// WithTimeout bounds every agent call to d. Non-positive values are ignored.
func (a *Advisor) WithTimeout(d time.Duration) *Advisor {
	if d > 0 {
		a.timeout = d
	}
	return a
}

// WithAgent sends plan drafting for kind to gen.
func (a *Advisor) WithAgent(kind shared.AgentKind, gen llm.TextGenerator) *Advisor {
	a.generators[kind] = gen
	return a
}

// HealthAnalysis is the agent's reading of a health profile.
type HealthAnalysis struct {
	BMIAssessment struct {
		Category    string `json:"category"`
		Description string `json:"description"`
	} `json:"bmi_assessment"`
	HealthInsights  []string          `json:"health_insights"`
	RiskFactors     []string          `json:"risk_factors"`
	Recommendations []string          `json:"recommendations"`
	OptimalRanges   map[string]string `json:"optimal_ranges"`
	PriorityActions []string          `json:"priority_actions"`
}

// NutritionAnalysis is the agent's reading of a nutrition profile.
type NutritionAnalysis struct {
	Analysis struct {
		CalorieAppropriateness string `json:"calorie_appropriateness"`
		MacroBalance           string `json:"macro_balance"`
		DietCompatibility      string `json:"diet_compatibility"`
	} `json:"analysis"`
	Recommendations       []string           `json:"recommendations"`
	SuggestedAdjustments  map[string]float64 `json:"suggested_adjustments"`
	MealTimingTips        []string           `json:"meal_timing_tips"`
	SupplementSuggestions []string           `json:"supplement_suggestions"`
}

// Macros are what is left of a day's budget.
type Macros struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fats     float64 `json:"fats"`
}

// MealSuggestion is one proposed meal.
type MealSuggestion struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Calories    float64  `json:"calories"`
	Protein     float64  `json:"protein"`
	Carbs       float64  `json:"carbs"`
	Fats        float64  `json:"fats"`
	Ingredients []string `json:"ingredients"`
	PrepTime    string   `json:"prep_time"`
}

// AnalyzeHealth analyzes the user's health profile. It fails with
// shared.ErrNotFound when the user has none.
func (a *Advisor) AnalyzeHealth(ctx context.Context, userID string) (HealthAnalysis, error) {
	hp, err := a.profiles.Health(ctx, userID)
	if err != nil {
		return HealthAnalysis{}, err
	}
	var out HealthAnalysis
	err = a.ask(ctx, a.analysisGen, "health_analyst", healthTmpl, hp, &out)
	return out, err
}

// AnalyzeNutrition analyzes the user's nutrition profile, using the health
// profile as context when there is one.
func (a *Advisor) AnalyzeNutrition(ctx context.Context, userID string) (NutritionAnalysis, error) {
	np, err := a.profiles.Nutrition(ctx, userID)
	if err != nil {
		return NutritionAnalysis{}, err
	}
	data := struct {
		Nutrition profile.NutritionProfile
		Health    *profile.HealthProfile
	}{Nutrition: np, Health: a.optionalHealth(ctx, userID)}

	var out NutritionAnalysis
	err = a.ask(ctx, a.analysisGen, "nutrition_analyst", nutritionTmpl, data, &out)
	return out, err
}

// SuggestMeals proposes meals of mealType that fit remaining. It fails
// with shared.ErrNotFound when the user has no nutrition profile.
func (a *Advisor) SuggestMeals(ctx context.Context, userID, mealType string, remaining Macros) ([]MealSuggestion, error) {
	np, err := a.profiles.Nutrition(ctx, userID)
	if err != nil {
		return nil, err
	}
	data := struct {
		MealType  string
		Nutrition profile.NutritionProfile
		Remaining Macros
	}{mealType, np, remaining}

	var out struct {
		Suggestions []MealSuggestion `json:"suggestions"`
	}
	if err := a.ask(ctx, a.analysisGen, "meal_suggester", mealSuggestionTmpl, data, &out); err != nil {
		return nil, err
	}
	return out.Suggestions, nil
}

func (a *Advisor) optionalHealth(ctx context.Context, userID string) *profile.HealthProfile {
	hp, err := a.profiles.Health(ctx, userID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			slog.WarnContext(ctx, "advisor: failed to read health profile", "user_id", userID, "error", err)
		}
		return nil
	}
	return &hp
}

func (a *Advisor) optionalNutrition(ctx context.Context, userID string) *profile.NutritionProfile {
	np, err := a.profiles.Nutrition(ctx, userID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			slog.WarnContext(ctx, "advisor: failed to read nutrition profile", "user_id", userID, "error", err)
		}
		return nil
	}
	return &np
}

// ask renders tmpl with data, calls gen and decodes the JSON answer into out.
func (a *Advisor) ask(ctx context.Context, gen llm.TextGenerator, agent string, tmpl *template.Template, data any, out any) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render %s prompt: %w", agent, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	resp, err := gen.GenerateContent(callCtx, buf.String())
	meta := shared.AgentMeta{AgentName: agent, Usage: resp.Usage, Latency: time.Since(start)}
	if err != nil {
		a.record(ctx, meta, metrics.OutcomeFailed)
		return fmt.Errorf("%w: %s: %w", shared.ErrAIUnavailable, agent, err)
	}

	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Content)), out); err != nil {
		a.record(ctx, meta, metrics.OutcomeMalformed)
		return &shared.ValidationError{Reason: shared.ReasonMalformedAIOutput, Field: agent}
	}
	a.record(ctx, meta, metrics.OutcomeOK)
	return nil
}

func (a *Advisor) record(ctx context.Context, meta shared.AgentMeta, outcome string) {
	if a.metrics == nil {
		return
	}
	if err := a.metrics.RecordMeta(ctx, meta, outcome); err != nil {
		slog.WarnContext(ctx, "advisor: failed to record metrics", "agent", meta.AgentName, "error", err)
	}
}
