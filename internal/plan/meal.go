package plan

import (
	"encoding/json"
	"strconv"
	"strings"
)

// MealSlot is one of the three daily meal slots.
type MealSlot string

const (
	Breakfast MealSlot = "breakfast"
	Lunch     MealSlot = "lunch"
	Dinner    MealSlot = "dinner"
)

// MealSlots lists the slots in the order they appear in a day.
var MealSlots = []MealSlot{Breakfast, Lunch, Dinner}

// ParseMealSlot maps a client supplied meal type to a slot.
func ParseMealSlot(s string) (MealSlot, bool) {
	slot := MealSlot(strings.ToLower(strings.TrimSpace(s)))
	switch slot {
	case Breakfast, Lunch, Dinner:
		return slot, true
	}
	return "", false
}

// Meal is a single planned meal with its macros.
type Meal struct {
	Slot        MealSlot `json:"slot" firestore:"slot"`
	Description string   `json:"description" firestore:"description"`
	Actual      string   `json:"actual,omitempty" firestore:"actual"`
	Calories    Quantity `json:"calories" firestore:"calories"`
	Carbs       Quantity `json:"carbs" firestore:"carbs"`
	Fat         Quantity `json:"fat" firestore:"fat"`
	Protein     Quantity `json:"protein" firestore:"protein"`
	Completed   bool     `json:"completed" firestore:"completed"`
}

// Quantity is a numeric plan value such as calories or grams.
// It decodes from numbers and from strings like "52g"; anything it cannot
// read becomes zero.
type Quantity float64

// ParseQuantity reads the leading number of s, ignoring units and
// thousands separators. Empty or unreadable input is zero.
func ParseQuantity(s string) Quantity {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || (end == 0 && (c == '-' || c == '+')) {
			end++
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return Quantity(v)
}

func (q Quantity) String() string {
	return strconv.FormatFloat(float64(q), 'f', -1, 64)
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*q = Quantity(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*q = ParseQuantity(s)
		return nil
	}
	*q = 0
	return nil
}
