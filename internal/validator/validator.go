// Package validator checks candidate plans and deltas against the plan
// invariants. Validation is pure: it never mutates its inputs and the same
// input always yields the same outcome.
package validator

import (
	"errors"
	"strconv"

	"plan-engine/internal/plan"
	"plan-engine/internal/shared"
)

// Outcome is the verdict for a candidate plan or delta.
type Outcome struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	Field    string `json:"field,omitempty"`
}

// Accepted is the outcome of a candidate that satisfies every invariant.
var Accepted = Outcome{Accepted: true}

// Rejected builds a rejecting outcome.
func Rejected(reason, field string) Outcome {
	return Outcome{Reason: reason, Field: field}
}

// Err returns nil for an accepted outcome and a *shared.ValidationError otherwise.
func (o Outcome) Err() error {
	if o.Accepted {
		return nil
	}
	return &shared.ValidationError{Reason: o.Reason, Field: o.Field}
}

func fromError(err error) Outcome {
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		return Rejected(verr.Reason, verr.Field)
	}
	return Rejected(shared.ReasonInvalidValue, err.Error())
}

// Validator holds the configurable limits.
type Validator struct {
	dailyCeiling float64
}

// New creates a Validator. A non-positive ceiling disables the daily calorie limit.
func New(dailyCalorieCeiling float64) *Validator {
	return &Validator{dailyCeiling: dailyCalorieCeiling}
}

// DailyCeiling returns the configured daily calorie ceiling.
func (v *Validator) DailyCeiling() float64 {
	return v.dailyCeiling
}

// Validate checks a complete plan: structure, numbers, workouts, and the
// daily ceiling on every day.
func (v *Validator) Validate(p plan.Plan) Outcome {
	if o := checkStructure(p); !o.Accepted {
		return o
	}
	if o := v.checkNumbers(p, nil); !o.Accepted {
		return o
	}
	return checkWorkouts(p)
}

// ValidateDelta checks current with d applied. The daily ceiling is only
// enforced on days the delta touches, and completion flags may only move
// from false to true, and only by the user.
func (v *Validator) ValidateDelta(current plan.Plan, d plan.Delta, src plan.Source) Outcome {
	if d.Empty() {
		return Rejected(shared.ReasonEmptyDelta, "")
	}
	candidate, err := plan.Apply(current, d)
	if err != nil {
		return fromError(err)
	}

	if o := checkStructure(candidate); !o.Accepted {
		return o
	}
	touched := make(map[dayKey]bool)
	for _, c := range d.Changes {
		touched[dayKey{week: candidate.Week(c.Week).Name, day: c.Day}] = true
	}
	if o := v.checkNumbers(candidate, touched); !o.Accepted {
		return o
	}
	if o := checkWorkouts(candidate); !o.Accepted {
		return o
	}
	return checkCompletion(current, d, src)
}

type dayKey struct {
	week string
	day  plan.Weekday
}

func checkStructure(p plan.Plan) Outcome {
	if len(p.Weeks) == 0 {
		return Rejected(shared.ReasonIncompleteWeek, "weeks")
	}
	for _, w := range p.Weeks {
		if len(w.Days) != plan.DaysPerWeek {
			return Rejected(shared.ReasonIncompleteWeek, w.Name)
		}
		var seenDays [plan.DaysPerWeek]bool
		for _, d := range w.Days {
			if !d.Day.Valid() || seenDays[d.Day] {
				return Rejected(shared.ReasonDuplicateWeekday, w.Name+"/"+d.Day.String())
			}
			seenDays[d.Day] = true

			if len(d.Meals) != plan.MealsPerDay {
				return Rejected(shared.ReasonIncompleteDay, w.Name+"/"+d.Day.String())
			}
			for _, slot := range plan.MealSlots {
				if d.Meal(slot) == nil {
					return Rejected(shared.ReasonIncompleteDay, w.Name+"/"+d.Day.String()+"/"+string(slot))
				}
			}
		}
	}
	return Accepted
}

// checkNumbers rejects negative quantities everywhere. The daily ceiling
// applies to the days in limitDays, or to every day when limitDays is nil.
func (v *Validator) checkNumbers(p plan.Plan, limitDays map[dayKey]bool) Outcome {
	for _, w := range p.Weeks {
		for _, d := range w.Days {
			prefix := w.Name + "/" + d.Day.String()
			for _, m := range d.Meals {
				for _, q := range []struct {
					field plan.Field
					value plan.Quantity
				}{
					{plan.FieldCalories, m.Calories},
					{plan.FieldCarbs, m.Carbs},
					{plan.FieldFat, m.Fat},
					{plan.FieldProtein, m.Protein},
				} {
					if q.value < 0 {
						return Rejected(shared.ReasonNegativeValue, prefix+"/"+string(m.Slot)+"/"+string(q.field))
					}
				}
			}
			if d.ExtraCalories < 0 {
				return Rejected(shared.ReasonNegativeValue, prefix+"/day/"+string(plan.FieldExtraCalories))
			}
			if d.Workout.DurationMinutes < 0 {
				return Rejected(shared.ReasonNegativeValue, prefix+"/workout/"+string(plan.FieldDuration))
			}

			if v.dailyCeiling <= 0 {
				continue
			}
			if limitDays != nil && !limitDays[dayKey{week: w.Name, day: d.Day}] {
				continue
			}
			if d.TotalCalories() > v.dailyCeiling {
				return Rejected(shared.ReasonExceedsCeiling, prefix+"/day/calories")
			}
		}
	}
	return Accepted
}

func checkWorkouts(p plan.Plan) Outcome {
	for _, w := range p.Weeks {
		for _, d := range w.Days {
			if d.Workout.Rest && d.Workout.HasWorkload() {
				return Rejected(shared.ReasonRestDayWorkload, w.Name+"/"+d.Day.String()+"/workout")
			}
		}
	}
	return Accepted
}

func checkCompletion(current plan.Plan, d plan.Delta, src plan.Source) Outcome {
	for _, c := range d.Changes {
		if c.Field != plan.FieldCompleted {
			continue
		}
		next, err := strconv.ParseBool(c.Value)
		if err != nil {
			return Rejected(shared.ReasonInvalidValue, c.String())
		}
		prevText, err := current.ValueAt(c.Path)
		if err != nil {
			return fromError(err)
		}
		prev, _ := strconv.ParseBool(prevText)

		if prev && !next {
			return Rejected(shared.ReasonCompletionReverted, c.String())
		}
		if next && src != plan.SourceUser {
			return Rejected(shared.ReasonCompletionByAgent, c.String())
		}
	}
	return Accepted
}
