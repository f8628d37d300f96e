package plan

import (
	"fmt"
	"time"
)

// Options describe the plan a user asked for.
type Options struct {
	Type      Type
	Weeks     int
	Intensity Intensity
	Goals     []string
}

// Normalize fills defaults and clamps the duration to 1..MaxWeeks.
func (o Options) Normalize() Options {
	if o.Type == "" {
		o.Type = TypeCombined
	}
	if o.Weeks < 1 {
		o.Weeks = 1
	}
	if o.Weeks > MaxWeeks {
		o.Weeks = MaxWeeks
	}
	if o.Intensity == IntensityNone {
		o.Intensity = IntensityModerate
	}
	return o
}

// WeekName is the canonical name of the n-th week, starting at 1.
func WeekName(n int) string {
	return fmt.Sprintf("Week %d", n)
}

type mealTemplate struct {
	dish                          string
	calories, carbs, fat, protein Quantity
}

type weekTemplate struct {
	meals     [MealsPerDay]mealTemplate
	focus     string
	exercises []string
}

var weekTemplates = [MaxWeeks]weekTemplate{
	{
		meals: [MealsPerDay]mealTemplate{
			{"Oatmeal with Fresh Berries and Almonds", 350, 52, 10, 12},
			{"Grilled Chicken Caesar Salad", 450, 20, 22, 42},
			{"Baked Salmon with Roasted Vegetables", 520, 28, 24, 45},
		},
		focus:     "Full Body Foundation",
		exercises: []string{"Push-ups", "Bodyweight Squats", "Plank Hold", "Lunges", "Mountain Climbers"},
	},
	{
		meals: [MealsPerDay]mealTemplate{
			{"Greek Yogurt Parfait with Granola and Honey", 380, 48, 12, 20},
			{"Quinoa Buddha Bowl with Chickpeas", 480, 58, 16, 22},
			{"Turkey Stir-Fry with Brown Rice", 490, 45, 14, 48},
		},
		focus:     "Upper Body Strength",
		exercises: []string{"Diamond Push-ups", "Pike Push-ups", "Tricep Dips", "Superman Hold", "Arm Circles"},
	},
	{
		meals: [MealsPerDay]mealTemplate{
			{"Veggie Omelette with Whole Wheat Toast", 420, 32, 22, 28},
			{"Mediterranean Wrap with Hummus", 440, 42, 18, 24},
			{"Grilled Chicken with Sweet Potato", 510, 38, 12, 52},
		},
		focus:     "Lower Body Power",
		exercises: []string{"Jump Squats", "Walking Lunges", "Glute Bridges", "Calf Raises", "Wall Sit"},
	},
	{
		meals: [MealsPerDay]mealTemplate{
			{"Protein Smoothie Bowl with Banana", 360, 45, 8, 25},
			{"Tuna Poke Bowl with Edamame", 470, 40, 16, 38},
			{"Beef and Vegetable Stew with Quinoa", 530, 42, 18, 46},
		},
		focus:     "Core & Cardio Blast",
		exercises: []string{"Burpees", "Bicycle Crunches", "High Knees", "Russian Twists", "Plank to Push-up"},
	},
}

// Weekly session layout: main sessions on Mon/Wed/Fri, conditioning on
// Tue/Thu, mobility on Saturday and Sunday off.
var sessionLayout = [DaysPerWeek]struct {
	category Category
	minutes  Quantity
}{
	{CategoryStrength, 45},
	{CategoryCardio, 30},
	{CategoryStrength, 45},
	{CategoryCore, 30},
	{CategoryStrength, 45},
	{CategoryMobility, 20},
	{CategoryRest, 0},
}

// WorkoutID is the id of the workout scheduled on day.
func WorkoutID(day Weekday) string {
	return fmt.Sprintf("w%d", int(day)+1)
}

// Default builds the deterministic plan used when no agent is asked or the
// agent's plan is unusable.
func Default(userID string, opts Options, now time.Time) Plan {
	opts = opts.Normalize()
	p := Plan{
		UserID:       userID,
		Type:         opts.Type,
		Intensity:    opts.Intensity,
		Goals:        opts.Goals,
		CreatedAt:    now,
		LastModified: now,
	}
	for n := range opts.Weeks {
		tmpl := weekTemplates[n]
		week := Week{Name: WeekName(n + 1)}
		for d := range DaysPerWeek {
			day := DayPlan{Day: Weekday(d)}
			for i, slot := range MealSlots {
				meal := Meal{Slot: slot}
				if opts.Type != TypeWorkout {
					m := tmpl.meals[i]
					meal.Description = m.dish
					meal.Calories, meal.Carbs, meal.Fat, meal.Protein = m.calories, m.carbs, m.fat, m.protein
				}
				day.Meals = append(day.Meals, meal)
			}
			day.Workout = defaultWorkout(Weekday(d), tmpl, opts)
			week.Days = append(week.Days, day)
		}
		p.Weeks = append(p.Weeks, week)
	}
	return p
}

func defaultWorkout(day Weekday, tmpl weekTemplate, opts Options) Workout {
	w := Workout{ID: WorkoutID(day)}
	layout := sessionLayout[day]
	if opts.Type == TypeDiet || layout.category == CategoryRest {
		w.Name = "Rest"
		w.Category = CategoryRest
		w.Rest = true
		return w
	}
	w.Name = fmt.Sprintf("%s: %s", tmpl.focus, tmpl.exercises[int(day)%len(tmpl.exercises)])
	w.Category = layout.category
	w.Intensity = opts.Intensity
	if layout.category == CategoryMobility {
		w.Intensity = IntensityLow
	}
	w.DurationMinutes = layout.minutes
	return w
}
