package advisor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"plan-engine/internal/llm"
	"plan-engine/internal/plan"
	"plan-engine/internal/profile"
	"plan-engine/internal/shared"
)

type mockTextGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (m *mockTextGenerator) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	content, err := m.reply(prompt)
	return llm.ContentResponse{Content: content, Usage: shared.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, err
}

type mockProfiles struct {
	health    *profile.HealthProfile
	nutrition *profile.NutritionProfile
}

func (m mockProfiles) Health(ctx context.Context, userID string) (profile.HealthProfile, error) {
	if m.health == nil {
		return profile.HealthProfile{}, shared.ErrNotFound
	}
	return *m.health, nil
}

func (m mockProfiles) Nutrition(ctx context.Context, userID string) (profile.NutritionProfile, error) {
	if m.nutrition == nil {
		return profile.NutritionProfile{}, shared.ErrNotFound
	}
	return *m.nutrition, nil
}

type mockRecorder struct {
	mu       sync.Mutex
	outcomes map[string]string
}

func (m *mockRecorder) RecordMeta(ctx context.Context, meta shared.AgentMeta, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = map[string]string{}
	}
	m.outcomes[meta.AgentName] = outcome
	return nil
}

type blockingGenerator struct{}

func (blockingGenerator) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	<-ctx.Done()
	return llm.ContentResponse{}, ctx.Err()
}

func fixed(content string) func(string) (string, error) {
	return func(string) (string, error) { return content, nil }
}

func TestAnalyzeHealth(t *testing.T) {
	ctx := context.Background()
	hp := &profile.HealthProfile{Age: 34, WeightKG: 80, HeightCM: 180, BMI: 24.69, Conditions: []string{"asthma", "migraine"}}

	t.Run("Success", func(t *testing.T) {
		gen := &mockTextGenerator{reply: fixed("```json\n{\"bmi_assessment\":{\"category\":\"Normal\"},\"priority_actions\":[\"sleep more\"]}\n```")}
		rec := &mockRecorder{}
		a := New(gen, gen, mockProfiles{health: hp}, rec, 3500)

		got, err := a.AnalyzeHealth(ctx, "u1")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if got.BMIAssessment.Category != "Normal" || len(got.PriorityActions) != 1 {
			t.Errorf("Unexpected analysis: %+v", got)
		}
		if !strings.Contains(gen.prompts[0], "Conditions: asthma, migraine") {
			t.Errorf("Expected conditions in prompt, got:\n%s", gen.prompts[0])
		}
		if !strings.Contains(gen.prompts[0], "Gender: N/A") {
			t.Errorf("Expected missing gender to render as N/A, got:\n%s", gen.prompts[0])
		}
		if rec.outcomes["health_analyst"] != "ok" {
			t.Errorf("Expected ok outcome recorded, got %v", rec.outcomes)
		}
	})

	t.Run("NoProfile", func(t *testing.T) {
		gen := &mockTextGenerator{reply: fixed("{}")}
		a := New(gen, gen, mockProfiles{}, nil, 3500)

		if _, err := a.AnalyzeHealth(ctx, "u1"); !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got %v", err)
		}
		if len(gen.prompts) != 0 {
			t.Error("Expected no agent call without a profile")
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		gen := &mockTextGenerator{reply: fixed("I cannot help with that")}
		rec := &mockRecorder{}
		a := New(gen, gen, mockProfiles{health: hp}, rec, 3500)

		_, err := a.AnalyzeHealth(ctx, "u1")
		if !errors.Is(err, shared.ErrMalformedAIOutput) {
			t.Fatalf("Expected malformed output error, got %v", err)
		}
		if rec.outcomes["health_analyst"] != "malformed" {
			t.Errorf("Expected malformed outcome recorded, got %v", rec.outcomes)
		}
	})

	t.Run("AgentDown", func(t *testing.T) {
		gen := &mockTextGenerator{reply: func(string) (string, error) { return "", errors.New("boom") }}
		a := New(gen, gen, mockProfiles{health: hp}, nil, 3500)

		if _, err := a.AnalyzeHealth(ctx, "u1"); !errors.Is(err, shared.ErrAIUnavailable) {
			t.Fatalf("Expected ErrAIUnavailable, got %v", err)
		}
	})
}

func TestAnalyzeNutrition(t *testing.T) {
	ctx := context.Background()
	np := &profile.NutritionProfile{DietType: "vegetarian", CalorieGoal: 2200, Allergies: []string{"peanuts"}}
	gen := &mockTextGenerator{reply: fixed(`{"analysis":{"macro_balance":"ok"},"suggested_adjustments":{"protein_goal":120}}`)}

	t.Run("WithoutHealthProfile", func(t *testing.T) {
		a := New(gen, gen, mockProfiles{nutrition: np}, nil, 3500)
		got, err := a.AnalyzeNutrition(ctx, "u1")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if got.SuggestedAdjustments["protein_goal"] != 120 {
			t.Errorf("Expected protein adjustment 120, got %v", got.SuggestedAdjustments)
		}
		last := gen.prompts[len(gen.prompts)-1]
		if !strings.Contains(last, "No health profile available.") || !strings.Contains(last, "Allergies: peanuts") {
			t.Errorf("Unexpected prompt:\n%s", last)
		}
	})

	t.Run("WithHealthProfile", func(t *testing.T) {
		a := New(gen, gen, mockProfiles{nutrition: np, health: &profile.HealthProfile{Age: 40}}, nil, 3500)
		if _, err := a.AnalyzeNutrition(ctx, "u1"); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		last := gen.prompts[len(gen.prompts)-1]
		if !strings.Contains(last, "Age: 40") {
			t.Errorf("Expected health data in prompt:\n%s", last)
		}
	})
}

func TestSuggestMeals(t *testing.T) {
	ctx := context.Background()
	gen := &mockTextGenerator{reply: fixed(`{"suggestions":[{"name":"Lentil soup","calories":420},{"name":"Tofu bowl","calories":510}]}`)}

	t.Run("NeedsNutritionProfile", func(t *testing.T) {
		a := New(gen, gen, mockProfiles{health: &profile.HealthProfile{}}, nil, 3500)
		if _, err := a.SuggestMeals(ctx, "u1", "dinner", Macros{Calories: 600}); !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Success", func(t *testing.T) {
		a := New(gen, gen, mockProfiles{nutrition: &profile.NutritionProfile{}}, nil, 3500)
		got, err := a.SuggestMeals(ctx, "u1", "dinner", Macros{Calories: 600, Protein: 40})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(got) != 2 || got[0].Name != "Lentil soup" {
			t.Errorf("Unexpected suggestions: %+v", got)
		}
		last := gen.prompts[len(gen.prompts)-1]
		if !strings.Contains(last, "Suggest dinner options") || !strings.Contains(last, "Calories: 600 kcal") {
			t.Errorf("Unexpected prompt:\n%s", last)
		}
	})
}

const mealsReply = `{"weeks":[{"name":"Week 1","days":[
	{"day":"Mon","meals":[{"slot":"breakfast","description":"Tofu scramble","calories":300,"carbs":10,"fat":15,"protein":25}]},
	{"day":"Funday","meals":[{"slot":"lunch","description":"ignored","calories":1}]}
]}]}`

const workoutsReply = `{"weeks":[{"name":"Week 1","days":[
	{"day":"Tue","workout":{"name":"Intervals","category":"hiit","intensity":"high","duration_minutes":25}},
	{"day":"Wed","workout":{"name":"Recovery","rest":true,"intensity":"high","duration_minutes":60}}
]}]}`

func planReplies(prompt string) (string, error) {
	switch {
	case strings.HasPrefix(prompt, "# Meal Plan Prompt"):
		return mealsReply, nil
	case strings.HasPrefix(prompt, "# Workout Plan Prompt"):
		return workoutsReply, nil
	}
	return "", errors.New("unexpected prompt")
}

func TestGeneratePlan(t *testing.T) {
	ctx := context.Background()

	t.Run("Combined", func(t *testing.T) {
		gen := &mockTextGenerator{reply: planReplies}
		a := New(gen, gen, mockProfiles{}, nil, 3500)

		p, err := a.GeneratePlan(ctx, "u1", plan.Options{Weeks: 2, Goals: []string{"lose fat"}})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(gen.prompts) != 2 {
			t.Fatalf("Expected 2 agent calls, got %d", len(gen.prompts))
		}
		if len(p.Weeks) != 2 || p.UserID != "u1" {
			t.Fatalf("Unexpected plan shape: %d weeks for %q", len(p.Weeks), p.UserID)
		}

		mon := p.Weeks[0].Day(plan.Monday)
		if b := mon.Meal(plan.Breakfast); b.Description != "Tofu scramble" || b.Calories != 300 {
			t.Errorf("Expected drafted breakfast, got %+v", b)
		}
		if l := mon.Meal(plan.Lunch); l.Description == "" {
			t.Error("Expected default lunch to be kept")
		}

		tue := p.Weeks[0].Day(plan.Tuesday).Workout
		if tue.Name != "Intervals" || tue.Category != plan.CategoryHIIT || tue.Intensity != plan.IntensityHigh || tue.DurationMinutes != 25 {
			t.Errorf("Unexpected Tuesday workout: %+v", tue)
		}
		if tue.ID != plan.WorkoutID(plan.Tuesday) {
			t.Errorf("Expected workout id to be kept, got %q", tue.ID)
		}
		wed := p.Weeks[0].Day(plan.Wednesday).Workout
		if !wed.Rest || wed.HasWorkload() {
			t.Errorf("Expected a rest day without workload, got %+v", wed)
		}
	})

	t.Run("DietOnlySkipsFitnessAgent", func(t *testing.T) {
		gen := &mockTextGenerator{reply: planReplies}
		a := New(gen, gen, mockProfiles{}, nil, 3500)

		p, err := a.GeneratePlan(ctx, "u1", plan.Options{Type: plan.TypeDiet})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(gen.prompts) != 1 || !strings.HasPrefix(gen.prompts[0], "# Meal Plan Prompt") {
			t.Fatalf("Expected only the meal agent to be called, got %d calls", len(gen.prompts))
		}
		if !p.Weeks[0].Day(plan.Tuesday).Workout.Rest {
			t.Error("Expected diet plan workouts to be rest days")
		}
	})

	t.Run("DedicatedFitnessAgent", func(t *testing.T) {
		gen := &mockTextGenerator{reply: planReplies}
		fitness := &mockTextGenerator{reply: planReplies}
		a := New(gen, gen, mockProfiles{}, nil, 3500).WithAgent(shared.AgentFitness, fitness)

		if _, err := a.GeneratePlan(ctx, "u1", plan.Options{}); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(gen.prompts) != 1 || len(fitness.prompts) != 1 {
			t.Errorf("Expected one call per agent, got %d and %d", len(gen.prompts), len(fitness.prompts))
		}
	})

	t.Run("AgentFailure", func(t *testing.T) {
		gen := &mockTextGenerator{reply: func(p string) (string, error) {
			if strings.HasPrefix(p, "# Workout Plan Prompt") {
				return "", errors.New("quota exceeded")
			}
			return mealsReply, nil
		}}
		a := New(gen, gen, mockProfiles{}, nil, 3500)

		if _, err := a.GeneratePlan(ctx, "u1", plan.Options{}); !errors.Is(err, shared.ErrAIUnavailable) {
			t.Fatalf("Expected ErrAIUnavailable, got %v", err)
		}
	})
}

func TestAgentCallsAreBounded(t *testing.T) {
	ctx := context.Background()
	np := &profile.NutritionProfile{CalorieGoal: 2200}
	rec := &mockRecorder{}
	a := New(blockingGenerator{}, blockingGenerator{}, mockProfiles{nutrition: np}, rec, 3500).
		WithTimeout(20 * time.Millisecond)

	t.Run("Analysis", func(t *testing.T) {
		done := make(chan error, 1)
		go func() {
			_, err := a.AnalyzeNutrition(ctx, "u1")
			done <- err
		}()
		select {
		case err := <-done:
			if !errors.Is(err, shared.ErrAIUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("Expected ErrAIUnavailable from a deadline, got %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Expected the analysis to give up after its timeout")
		}
	})

	t.Run("PlanGeneration", func(t *testing.T) {
		start := time.Now()
		_, err := a.GeneratePlan(ctx, "u1", plan.Options{})
		if !errors.Is(err, shared.ErrAIUnavailable) {
			t.Fatalf("Expected ErrAIUnavailable, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > 5*time.Second {
			t.Errorf("Expected generation to stop near the timeout, took %v", elapsed)
		}
		if rec.outcomes["meal_planner"] != "failed" {
			t.Errorf("Expected the failed call to be recorded, got %v", rec.outcomes)
		}
	})

	t.Run("NonPositiveTimeoutIgnored", func(t *testing.T) {
		if got := New(nil, nil, nil, nil, 0).WithTimeout(0).timeout; got != DefaultTimeout {
			t.Errorf("Expected default timeout %v, got %v", DefaultTimeout, got)
		}
	})
}
