package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"plan-engine/internal/plan"
	"plan-engine/internal/profile"
	"plan-engine/internal/shared"
)

type draftMeal struct {
	Slot        string        `json:"slot"`
	Description string        `json:"description"`
	Calories    plan.Quantity `json:"calories"`
	Carbs       plan.Quantity `json:"carbs"`
	Fat         plan.Quantity `json:"fat"`
	Protein     plan.Quantity `json:"protein"`
}

type draftWorkout struct {
	Name            string        `json:"name"`
	Category        string        `json:"category"`
	Intensity       string        `json:"intensity"`
	DurationMinutes plan.Quantity `json:"duration_minutes"`
	Rest            bool          `json:"rest"`
}

type draftDay struct {
	Day     string        `json:"day"`
	Meals   []draftMeal   `json:"meals"`
	Workout *draftWorkout `json:"workout"`
}

type draft struct {
	Weeks []struct {
		Name string     `json:"name"`
		Days []draftDay `json:"days"`
	} `json:"weeks"`
}

// GeneratePlan drafts a plan with the nutrition and fitness agents. Meals
// and workouts are requested concurrently and laid over the default plan,
// so days the agents leave out keep their default content. The result is
// not validated here.
func (a *Advisor) GeneratePlan(ctx context.Context, userID string, opts plan.Options) (plan.Plan, error) {
	opts = opts.Normalize()
	health := a.optionalHealth(ctx, userID)
	nutrition := a.optionalNutrition(ctx, userID)

	var meals, workouts draft
	g, gctx := errgroup.WithContext(ctx)
	if opts.Type != plan.TypeWorkout {
		g.Go(func() error {
			data := struct {
				Weeks        int
				Goals        []string
				Nutrition    *profile.NutritionProfile
				DailyCeiling float64
			}{opts.Weeks, opts.Goals, nutrition, a.dailyCeiling}
			return a.ask(gctx, a.generators[shared.AgentNutrition], "meal_planner", mealsTmpl, data, &meals)
		})
	}
	if opts.Type != plan.TypeDiet {
		g.Go(func() error {
			data := struct {
				Weeks     int
				Intensity plan.Intensity
				Goals     []string
				Health    *profile.HealthProfile
			}{opts.Weeks, opts.Intensity, opts.Goals, health}
			return a.ask(gctx, a.generators[shared.AgentFitness], "workout_planner", workoutsTmpl, data, &workouts)
		})
	}
	if err := g.Wait(); err != nil {
		return plan.Plan{}, fmt.Errorf("failed to draft plan: %w", err)
	}

	p := plan.Default(userID, opts, time.Now())
	overlay(&p, meals, func(day *plan.DayPlan, d draftDay) {
		for _, m := range d.Meals {
			slot, ok := plan.ParseMealSlot(m.Slot)
			if !ok || m.Description == "" {
				continue
			}
			meal := day.Meal(slot)
			meal.Description = m.Description
			meal.Calories, meal.Carbs, meal.Fat, meal.Protein = m.Calories, m.Carbs, m.Fat, m.Protein
		}
	})
	overlay(&p, workouts, func(day *plan.DayPlan, d draftDay) {
		if d.Workout == nil {
			return
		}
		day.Workout = applyWorkout(day.Workout, *d.Workout)
	})
	return p, nil
}

// overlay calls apply for every drafted day that exists in p. Weeks are
// matched by position.
func overlay(p *plan.Plan, d draft, apply func(*plan.DayPlan, draftDay)) {
	for i, w := range d.Weeks {
		if i >= len(p.Weeks) {
			slog.Debug("advisor: ignoring extra drafted week", "week", w.Name)
			break
		}
		for _, dd := range w.Days {
			wd, ok := plan.ParseWeekday(dd.Day)
			if !ok {
				continue
			}
			if day := p.Weeks[i].Day(wd); day != nil {
				apply(day, dd)
			}
		}
	}
}

func applyWorkout(base plan.Workout, d draftWorkout) plan.Workout {
	out := plan.Workout{ID: base.ID, Name: d.Name}
	if out.Name == "" {
		out.Name = base.Name
	}
	if d.Rest {
		out.Rest = true
		out.Category = plan.CategoryRest
		return out
	}
	if c, ok := plan.ParseCategory(d.Category); ok {
		out.Category = c
	}
	if out.Category == plan.CategoryRest {
		out.Rest = true
		return out
	}
	out.Intensity = base.Intensity
	if i, ok := plan.ParseIntensity(d.Intensity); ok && i != plan.IntensityNone {
		out.Intensity = i
	}
	out.DurationMinutes = base.DurationMinutes
	if d.DurationMinutes > 0 {
		out.DurationMinutes = d.DurationMinutes
	}
	return out
}
