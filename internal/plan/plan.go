package plan

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// DaysPerWeek and MealsPerDay are the structural shape every committed plan keeps.
const (
	DaysPerWeek = 7
	MealsPerDay = 3

	// MaxWeeks caps the duration of a generated plan.
	MaxWeeks = 4
)

// Type is the scope of a plan.
type Type string

const (
	TypeDiet     Type = "diet"
	TypeWorkout  Type = "workout"
	TypeCombined Type = "combined"
)

// ParseType maps a client supplied plan type; empty selects combined.
func ParseType(s string) (Type, bool) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case "", TypeCombined:
		return TypeCombined, true
	case TypeDiet:
		return TypeDiet, true
	case TypeWorkout:
		return TypeWorkout, true
	}
	return "", false
}

// Weekday indexes the days of a plan week, Monday first.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [DaysPerWeek]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
var weekdayLongNames = [DaysPerWeek]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return weekdayNames[d]
}

// Valid reports whether d is one of the seven weekdays.
func (d Weekday) Valid() bool {
	return d >= Monday && d <= Sunday
}

// ParseWeekday accepts short or long English day names in any case.
func ParseWeekday(s string) (Weekday, bool) {
	s = strings.TrimSpace(s)
	for i := range DaysPerWeek {
		if strings.EqualFold(s, weekdayNames[i]) || strings.EqualFold(s, weekdayLongNames[i]) {
			return Weekday(i), true
		}
	}
	return 0, false
}

func (d Weekday) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Weekday) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		var idx int
		if err := json.Unmarshal(data, &idx); err != nil {
			return fmt.Errorf("weekday must be a name or index: %s", data)
		}
		if !Weekday(idx).Valid() {
			return fmt.Errorf("weekday index out of range: %d", idx)
		}
		*d = Weekday(idx)
		return nil
	}
	day, ok := ParseWeekday(name)
	if !ok {
		return fmt.Errorf("unknown weekday %q", name)
	}
	*d = day
	return nil
}

// Plan is a user's canonical weekly workout and nutrition schedule.
type Plan struct {
	UserID       string    `json:"user_id" firestore:"userId"`
	Type         Type      `json:"plan_type" firestore:"planType"`
	Intensity    Intensity `json:"intensity,omitempty" firestore:"intensity"`
	Goals        []string  `json:"goals,omitempty" firestore:"goals"`
	Weeks        []Week    `json:"weeks" firestore:"weeks"`
	Version      int64     `json:"version" firestore:"version"`
	CreatedAt    time.Time `json:"created_at" firestore:"createdAt"`
	LastModified time.Time `json:"last_modified" firestore:"lastModified"`
}

// Week holds the seven days of one plan week.
type Week struct {
	Name string    `json:"name" firestore:"name"`
	Days []DayPlan `json:"days" firestore:"days"`
}

// DayPlan holds the meals and workout of a single day.
type DayPlan struct {
	Day           Weekday  `json:"day" firestore:"day"`
	Meals         []Meal   `json:"meals" firestore:"meals"`
	ExtraCalories Quantity `json:"extra_calories" firestore:"extraCalories"`
	Workout       Workout  `json:"workout" firestore:"workout"`
}

// TotalCalories is the planned meal calories plus any logged surplus.
func (d DayPlan) TotalCalories() float64 {
	total := float64(d.ExtraCalories)
	for _, m := range d.Meals {
		total += float64(m.Calories)
	}
	return total
}

// Meal returns the meal in the given slot, or nil.
func (d *DayPlan) Meal(slot MealSlot) *Meal {
	for i := range d.Meals {
		if d.Meals[i].Slot == slot {
			return &d.Meals[i]
		}
	}
	return nil
}

// Week returns the week with the given name, or nil.
func (p *Plan) Week(name string) *Week {
	for i := range p.Weeks {
		if strings.EqualFold(p.Weeks[i].Name, strings.TrimSpace(name)) {
			return &p.Weeks[i]
		}
	}
	return nil
}

// Day returns the plan for the given weekday, or nil.
func (w *Week) Day(day Weekday) *DayPlan {
	for i := range w.Days {
		if w.Days[i].Day == day {
			return &w.Days[i]
		}
	}
	return nil
}

// WorkoutByID returns the day whose workout carries id, or nil.
func (w *Week) WorkoutByID(id string) *DayPlan {
	for i := range w.Days {
		if w.Days[i].Workout.ID == id {
			return &w.Days[i]
		}
	}
	return nil
}

// Clone returns a deep copy that shares no slices with p.
func (p Plan) Clone() Plan {
	out := p
	out.Goals = slices.Clone(p.Goals)
	out.Weeks = make([]Week, len(p.Weeks))
	for i, w := range p.Weeks {
		days := make([]DayPlan, len(w.Days))
		for j, d := range w.Days {
			d.Meals = slices.Clone(d.Meals)
			days[j] = d
		}
		out.Weeks[i] = Week{Name: w.Name, Days: days}
	}
	return out
}
