package plan

import (
	"fmt"
	"strconv"
	"strings"

	"plan-engine/internal/shared"
)

// RequestKind tags the payload carried by an AdjustmentRequest.
type RequestKind string

const (
	KindWorkoutSkip       RequestKind = "workout_skip"
	KindNutritionExtra    RequestKind = "nutrition_extra"
	KindGeneralAdjustment RequestKind = "general_adjustment"
	KindCompletionLog     RequestKind = "completion_log"
)

// Source identifies who authored a delta.
type Source string

const (
	SourceUser  Source = "user"
	SourceAgent Source = "agent"
)

// WorkoutSkip marks the listed workouts of a week as skipped.
type WorkoutSkip struct {
	Week       string   `json:"week"`
	WorkoutIDs []string `json:"workout_ids"`
	Reason     string   `json:"reason,omitempty"`
}

// NutritionExtra logs extra calories eaten on a day.
type NutritionExtra struct {
	Week          string  `json:"week"`
	Day           Weekday `json:"day"`
	ExtraCalories float64 `json:"extra_calories"`
}

// GeneralAdjustment is a free-form instruction handled by an agent.
type GeneralAdjustment struct {
	Instruction string           `json:"instruction"`
	Feedback    string           `json:"feedback,omitempty"`
	Agent       shared.AgentKind `json:"agent"`
}

// CompletionLog records that the user ate a meal or finished a workout.
// Exactly one of Meal and WorkoutID is set.
type CompletionLog struct {
	Week      string   `json:"week"`
	Day       Weekday  `json:"day"`
	Meal      MealSlot `json:"meal,omitempty"`
	WorkoutID string   `json:"workout_id,omitempty"`
	Actual    string   `json:"actual,omitempty"`
	Completed bool     `json:"completed"`
}

// AdjustmentRequest asks for a change to a user's plan. It carries the
// version its author last observed and exactly one payload matching Kind.
type AdjustmentRequest struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	BasedOnVersion int64       `json:"based_on_version"`
	Kind           RequestKind `json:"kind"`

	WorkoutSkip    *WorkoutSkip       `json:"workout_skip,omitempty"`
	NutritionExtra *NutritionExtra    `json:"nutrition_extra,omitempty"`
	General        *GeneralAdjustment `json:"general,omitempty"`
	Completion     *CompletionLog     `json:"completion,omitempty"`
}

// AISourced reports whether the request needs an agent proposal.
func (r AdjustmentRequest) AISourced() bool {
	return r.Kind == KindGeneralAdjustment
}

// Source is the author of the delta the request produces.
func (r AdjustmentRequest) Source() Source {
	if r.AISourced() {
		return SourceAgent
	}
	return SourceUser
}

// Check verifies that the payload matches the kind and is usable.
func (r AdjustmentRequest) Check() error {
	invalid := func(field string) error {
		return &shared.ValidationError{Reason: shared.ReasonInvalidRequest, Field: field}
	}
	if strings.TrimSpace(r.ID) == "" {
		return invalid("id")
	}
	if strings.TrimSpace(r.UserID) == "" {
		return invalid("user_id")
	}
	if r.BasedOnVersion < 0 {
		return invalid("based_on_version")
	}

	set := 0
	for _, present := range []bool{r.WorkoutSkip != nil, r.NutritionExtra != nil, r.General != nil, r.Completion != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return invalid("kind")
	}

	switch r.Kind {
	case KindWorkoutSkip:
		if r.WorkoutSkip == nil {
			return invalid("kind")
		}
		if len(r.WorkoutSkip.WorkoutIDs) == 0 {
			return invalid("workout_ids")
		}
	case KindNutritionExtra:
		if r.NutritionExtra == nil {
			return invalid("kind")
		}
		if r.NutritionExtra.ExtraCalories <= 0 {
			return invalid("extra_calories")
		}
		if !r.NutritionExtra.Day.Valid() {
			return invalid("day")
		}
	case KindGeneralAdjustment:
		if r.General == nil {
			return invalid("kind")
		}
		if strings.TrimSpace(r.General.Instruction) == "" {
			return invalid("instruction")
		}
	case KindCompletionLog:
		if r.Completion == nil {
			return invalid("kind")
		}
		if (r.Completion.Meal == "") == (r.Completion.WorkoutID == "") {
			return invalid("meal")
		}
	default:
		return invalid("kind")
	}
	return nil
}

// DirectDelta builds the delta of a direct user edit against p.
// It must not be called for agent sourced requests.
func (r AdjustmentRequest) DirectDelta(p Plan) (Delta, error) {
	switch r.Kind {
	case KindWorkoutSkip:
		return workoutSkipDelta(p, *r.WorkoutSkip)
	case KindNutritionExtra:
		return nutritionExtraDelta(p, *r.NutritionExtra)
	case KindCompletionLog:
		return completionDelta(p, *r.Completion)
	}
	return Delta{}, fmt.Errorf("request kind %q has no direct delta", r.Kind)
}

// Only workouts not yet completed are skipped; rest days carry nothing to skip.
func workoutSkipDelta(p Plan, req WorkoutSkip) (Delta, error) {
	week := p.Week(req.Week)
	if week == nil {
		return Delta{}, &shared.ValidationError{Reason: shared.ReasonUnknownField, Field: req.Week}
	}

	var d Delta
	for _, id := range req.WorkoutIDs {
		day := week.WorkoutByID(id)
		if day == nil {
			return Delta{}, shared.Rejectf(shared.ReasonWorkoutNotFound, "%s/%s", week.Name, id)
		}
		w := day.Workout
		if w.Completed || w.Rest || w.Skipped {
			continue
		}
		d.Changes = append(d.Changes, Change{
			Path:  Path{Week: week.Name, Day: day.Day, Target: TargetWorkout, Field: FieldSkipped},
			Value: "true",
		})
	}
	if d.Empty() {
		return Delta{}, &shared.ValidationError{Reason: shared.ReasonNothingToAdjust, Field: week.Name}
	}
	return d, nil
}

// The surplus is added to the day's logged extra calories.
func nutritionExtraDelta(p Plan, req NutritionExtra) (Delta, error) {
	week := p.Week(req.Week)
	if week == nil {
		return Delta{}, &shared.ValidationError{Reason: shared.ReasonUnknownField, Field: req.Week}
	}
	day := week.Day(req.Day)
	if day == nil {
		return Delta{}, shared.Rejectf(shared.ReasonUnknownField, "%s/%s", week.Name, req.Day)
	}

	total := float64(day.ExtraCalories) + req.ExtraCalories
	return Delta{Changes: []Change{{
		Path:  Path{Week: week.Name, Day: day.Day, Target: TargetDay, Field: FieldExtraCalories},
		Value: strconv.FormatFloat(total, 'f', -1, 64),
	}}}, nil
}

func completionDelta(p Plan, req CompletionLog) (Delta, error) {
	week := p.Week(req.Week)
	if week == nil {
		return Delta{}, &shared.ValidationError{Reason: shared.ReasonUnknownField, Field: req.Week}
	}

	completed := strconv.FormatBool(req.Completed)
	if req.WorkoutID != "" {
		day := week.WorkoutByID(req.WorkoutID)
		if day == nil {
			return Delta{}, shared.Rejectf(shared.ReasonWorkoutNotFound, "%s/%s", week.Name, req.WorkoutID)
		}
		return Delta{Changes: []Change{{
			Path:  Path{Week: week.Name, Day: day.Day, Target: TargetWorkout, Field: FieldCompleted},
			Value: completed,
		}}}, nil
	}

	slot, ok := ParseMealSlot(string(req.Meal))
	if !ok {
		return Delta{}, shared.Rejectf(shared.ReasonUnknownField, "%s/%s/%s", week.Name, req.Day, req.Meal)
	}
	target := MealTarget(slot)
	d := Delta{Changes: []Change{{
		Path:  Path{Week: week.Name, Day: req.Day, Target: target, Field: FieldCompleted},
		Value: completed,
	}}}
	if req.Actual != "" {
		d.Changes = append(d.Changes, Change{
			Path:  Path{Week: week.Name, Day: req.Day, Target: target, Field: FieldActual},
			Value: req.Actual,
		})
	}
	return d, nil
}
