package plan

import "strings"

// Intensity is an ordered effort scale; the zero value means unset.
type Intensity string

const (
	IntensityNone     Intensity = ""
	IntensityLow      Intensity = "low"
	IntensityModerate Intensity = "moderate"
	IntensityHigh     Intensity = "high"
)

// Rank orders intensities from none (0) to high (3); unknown values rank -1.
func (i Intensity) Rank() int {
	switch i {
	case IntensityNone:
		return 0
	case IntensityLow:
		return 1
	case IntensityModerate:
		return 2
	case IntensityHigh:
		return 3
	}
	return -1
}

// ParseIntensity accepts the scale names plus the common "medium" alias.
func ParseIntensity(s string) (Intensity, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "medium" {
		return IntensityModerate, true
	}
	i := Intensity(s)
	return i, i.Rank() >= 0
}

// Category is the kind of training session.
type Category string

const (
	CategoryStrength Category = "strength"
	CategoryCardio   Category = "cardio"
	CategoryMobility Category = "mobility"
	CategoryHIIT     Category = "hiit"
	CategoryCore     Category = "core"
	CategoryRest     Category = "rest"
)

// ParseCategory maps a category name; empty is allowed and means uncategorized.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case "", CategoryStrength, CategoryCardio, CategoryMobility, CategoryHIIT, CategoryCore, CategoryRest:
		return c, true
	}
	return "", false
}

// Workout is the training assignment of one day.
type Workout struct {
	ID              string    `json:"id" firestore:"id"`
	Name            string    `json:"name,omitempty" firestore:"name"`
	Category        Category  `json:"category,omitempty" firestore:"category"`
	Intensity       Intensity `json:"intensity,omitempty" firestore:"intensity"`
	DurationMinutes Quantity  `json:"duration_minutes,omitempty" firestore:"durationMinutes"`
	Rest            bool      `json:"rest" firestore:"rest"`
	Skipped         bool      `json:"skipped" firestore:"skipped"`
	Completed       bool      `json:"completed" firestore:"completed"`
}

// HasWorkload reports whether the workout carries an intensity or duration.
func (w Workout) HasWorkload() bool {
	return w.Intensity != IntensityNone || w.DurationMinutes != 0
}
