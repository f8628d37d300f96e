package plan

import (
	"fmt"
	"strconv"
	"strings"

	"plan-engine/internal/shared"
)

// Target selects what a change addresses inside a day: one of the meal
// slots, the workout, or the day itself.
type Target string

const (
	TargetWorkout Target = "workout"
	TargetDay     Target = "day"
)

// MealTarget returns the target addressing a meal slot.
func MealTarget(slot MealSlot) Target {
	return Target(slot)
}

// Field names a single value of a meal, workout or day.
type Field string

const (
	FieldDescription Field = "description"
	FieldActual      Field = "actual"
	FieldCalories    Field = "calories"
	FieldCarbs       Field = "carbs"
	FieldFat         Field = "fat"
	FieldProtein     Field = "protein"
	FieldCompleted   Field = "completed"

	FieldName      Field = "name"
	FieldCategory  Field = "category"
	FieldIntensity Field = "intensity"
	FieldDuration  Field = "duration_minutes"
	FieldRest      Field = "rest"
	FieldSkipped   Field = "skipped"

	FieldExtraCalories Field = "extra_calories"
)

// Path addresses one field of a plan.
type Path struct {
	Week   string  `json:"week"`
	Day    Weekday `json:"day"`
	Target Target  `json:"target"`
	Field  Field   `json:"field"`
}

func (p Path) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", p.Week, p.Day, p.Target, p.Field)
}

// Key is the canonical form of the path used to compare changes.
func (p Path) Key() string {
	return strings.ToLower(p.String())
}

// Change sets the field at Path to Value. Values are carried as text and
// parsed according to the field they address.
type Change struct {
	Path
	Value string `json:"value"`
}

// Delta is a bounded set of field-level changes to a plan.
type Delta struct {
	Changes []Change `json:"changes"`
}

// Empty reports whether the delta changes nothing.
func (d Delta) Empty() bool {
	return len(d.Changes) == 0
}

// Paths returns the canonical keys of every field the delta touches.
func (d Delta) Paths() []string {
	out := make([]string, 0, len(d.Changes))
	for _, c := range d.Changes {
		out = append(out, c.Key())
	}
	return out
}

// Apply returns a copy of p with every change of d applied. p is not modified.
// A change that does not resolve in the plan, or whose value cannot be
// read for its field, fails the whole delta.
func Apply(p Plan, d Delta) (Plan, error) {
	out := p.Clone()
	for _, c := range d.Changes {
		f, err := out.field(c.Path)
		if err != nil {
			return Plan{}, err
		}
		if err := f.set(c.Value); err != nil {
			return Plan{}, err
		}
	}
	return out, nil
}

// ValueAt returns the current value of the field at path in its text form.
func (p *Plan) ValueAt(path Path) (string, error) {
	f, err := p.field(path)
	if err != nil {
		return "", err
	}
	return f.get(), nil
}

type fieldRef struct {
	get func() string
	set func(string) error
}

func (p *Plan) field(path Path) (fieldRef, error) {
	unknown := &shared.ValidationError{Reason: shared.ReasonUnknownField, Field: path.String()}

	week := p.Week(path.Week)
	if week == nil {
		return fieldRef{}, unknown
	}
	day := week.Day(path.Day)
	if day == nil {
		return fieldRef{}, unknown
	}

	switch path.Target {
	case TargetDay:
		if path.Field == FieldExtraCalories {
			return quantityRef(&day.ExtraCalories), nil
		}
	case TargetWorkout:
		w := &day.Workout
		switch path.Field {
		case FieldName:
			return textRef(&w.Name), nil
		case FieldCategory:
			return fieldRef{
				get: func() string { return string(w.Category) },
				set: func(v string) error {
					c, ok := ParseCategory(v)
					if !ok {
						return &shared.ValidationError{Reason: shared.ReasonInvalidValue, Field: path.String()}
					}
					w.Category = c
					return nil
				},
			}, nil
		case FieldIntensity:
			return fieldRef{
				get: func() string { return string(w.Intensity) },
				set: func(v string) error {
					i, ok := ParseIntensity(v)
					if !ok {
						return &shared.ValidationError{Reason: shared.ReasonInvalidValue, Field: path.String()}
					}
					w.Intensity = i
					return nil
				},
			}, nil
		case FieldDuration:
			return quantityRef(&w.DurationMinutes), nil
		case FieldRest:
			return boolRef(&w.Rest, path), nil
		case FieldSkipped:
			return boolRef(&w.Skipped, path), nil
		case FieldCompleted:
			return boolRef(&w.Completed, path), nil
		}
	default:
		slot, ok := ParseMealSlot(string(path.Target))
		if !ok {
			return fieldRef{}, unknown
		}
		m := day.Meal(slot)
		if m == nil {
			return fieldRef{}, unknown
		}
		switch path.Field {
		case FieldDescription:
			return textRef(&m.Description), nil
		case FieldActual:
			return textRef(&m.Actual), nil
		case FieldCalories:
			return quantityRef(&m.Calories), nil
		case FieldCarbs:
			return quantityRef(&m.Carbs), nil
		case FieldFat:
			return quantityRef(&m.Fat), nil
		case FieldProtein:
			return quantityRef(&m.Protein), nil
		case FieldCompleted:
			return boolRef(&m.Completed, path), nil
		}
	}
	return fieldRef{}, unknown
}

func textRef(s *string) fieldRef {
	return fieldRef{
		get: func() string { return *s },
		set: func(v string) error { *s = v; return nil },
	}
}

func quantityRef(q *Quantity) fieldRef {
	return fieldRef{
		get: func() string { return q.String() },
		set: func(v string) error { *q = ParseQuantity(v); return nil },
	}
}

func boolRef(b *bool, path Path) fieldRef {
	return fieldRef{
		get: func() string { return strconv.FormatBool(*b) },
		set: func(v string) error {
			parsed, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return &shared.ValidationError{Reason: shared.ReasonInvalidValue, Field: path.String()}
			}
			*b = parsed
			return nil
		},
	}
}
