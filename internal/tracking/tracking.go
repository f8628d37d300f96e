// Package tracking keeps the daily food log and the calorie summaries
// computed from it against the user's nutrition goal.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"plan-engine/internal/profile"
	"plan-engine/internal/shared"
)

// DateLayout is the format of log dates.
const DateLayout = "2006-01-02"

// History limits.
const (
	DefaultHistoryLimit = 30
	MaxHistoryLimit     = 100
)

// MealTypes are the accepted meal types. An empty type means snacks.
var MealTypes = []string{"breakfast", "lunch", "dinner", "snacks"}

// Amount is a quantity clients send either as a number or as a numeric string.
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*a = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*a = Amount(f)
	return nil
}

// FoodItem is one thing the user ate.
type FoodItem struct {
	Name         string `json:"name"`
	Calories     Amount `json:"calories"`
	ServingSizeG Amount `json:"serving_size_g,omitempty"`
	FatTotalG    Amount `json:"fat_total_g,omitempty"`
	ProteinG     Amount `json:"protein_g,omitempty"`
	CarbsTotalG  Amount `json:"carbohydrates_total_g,omitempty"`
	FiberG       Amount `json:"fiber_g,omitempty"`
	SugarG       Amount `json:"sugar_g,omitempty"`
}

func (f FoodItem) amounts() []Amount {
	return []Amount{f.Calories, f.ServingSizeG, f.FatTotalG, f.ProteinG, f.CarbsTotalG, f.FiberG, f.SugarG}
}

// Entry is a logged item.
type Entry struct {
	ID       int64     `json:"id"`
	MealType string    `json:"meal_type"`
	Item     FoodItem  `json:"item"`
	LoggedAt time.Time `json:"logged_at"`
}

// DayLog is the food eaten on one date, grouped by meal type.
type DayLog struct {
	Date          string                `json:"date"`
	Meals         map[string][]FoodItem `json:"meals"`
	TotalCalories float64               `json:"total_calories"`
	TotalItems    int                   `json:"total_items"`
}

// CalorieSummary compares a day's intake with the user's goal.
type CalorieSummary struct {
	Date               string  `json:"date"`
	CalorieGoal        float64 `json:"calorie_goal"`
	CaloriesConsumed   float64 `json:"calories_consumed"`
	CaloriesRemaining  float64 `json:"calories_remaining"`
	PercentageConsumed float64 `json:"percentage_consumed"`
	TotalItems         int     `json:"total_items"`
}

// DaySummary is one row of the history.
type DaySummary struct {
	Date     string  `json:"date"`
	Calories float64 `json:"calories"`
	Items    int     `json:"items"`
}

// Repository persists food log entries.
type Repository interface {
	Add(ctx context.Context, userID, date string, entries []Entry) error
	Day(ctx context.Context, userID, date string) ([]Entry, error)
	History(ctx context.Context, userID string, limit int) ([]DaySummary, error)
}

// Goals looks up the nutrition goal of a user.
type Goals interface {
	Nutrition(ctx context.Context, userID string) (profile.NutritionProfile, error)
}

// Service logs food and summarizes it.
type Service struct {
	repo  Repository
	goals Goals
	now   func() time.Time
}

// NewService creates a Service. Goals come from goals, falling back to
// profile.DefaultCalorieGoal.
func NewService(repo Repository, goals Goals) *Service {
	return &Service{repo: repo, goals: goals, now: time.Now}
}

// LogFood appends items to the user's log for date, which defaults to today,
// and returns the updated day.
func (s *Service) LogFood(ctx context.Context, userID, date, mealType string, items []FoodItem) (DayLog, error) {
	date, err := s.resolveDate(date)
	if err != nil {
		return DayLog{}, err
	}
	mealType, err = parseMealType(mealType)
	if err != nil {
		return DayLog{}, err
	}
	if len(items) == 0 {
		return DayLog{}, &shared.ValidationError{Reason: shared.ReasonInvalidRequest, Field: "items"}
	}

	at := s.now().UTC()
	entries := make([]Entry, len(items))
	for i, item := range items {
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" {
			return DayLog{}, shared.Rejectf(shared.ReasonInvalidRequest, "items[%d].name", i)
		}
		for _, a := range item.amounts() {
			if a < 0 || math.IsNaN(float64(a)) || math.IsInf(float64(a), 0) {
				return DayLog{}, shared.Rejectf(shared.ReasonNegativeValue, "items[%d]", i)
			}
		}
		entries[i] = Entry{MealType: mealType, Item: item, LoggedAt: at}
	}

	if err := s.repo.Add(ctx, userID, date, entries); err != nil {
		return DayLog{}, err
	}
	return s.day(ctx, userID, date)
}

// FoodLog returns the user's log for date. A day without entries is empty,
// not missing.
func (s *Service) FoodLog(ctx context.Context, userID, date string) (DayLog, error) {
	date, err := s.resolveDate(date)
	if err != nil {
		return DayLog{}, err
	}
	return s.day(ctx, userID, date)
}

// Calories summarizes date against the user's calorie goal.
func (s *Service) Calories(ctx context.Context, userID, date string) (CalorieSummary, error) {
	log, err := s.FoodLog(ctx, userID, date)
	if err != nil {
		return CalorieSummary{}, err
	}
	goal, err := s.calorieGoal(ctx, userID)
	if err != nil {
		return CalorieSummary{}, err
	}
	return summarize(log, goal), nil
}

// History lists the most recent logged days, newest first. limit defaults
// to DefaultHistoryLimit and is capped at MaxHistoryLimit.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]DaySummary, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)
	return s.repo.History(ctx, userID, limit)
}

func (s *Service) day(ctx context.Context, userID, date string) (DayLog, error) {
	entries, err := s.repo.Day(ctx, userID, date)
	if err != nil {
		return DayLog{}, err
	}
	log := DayLog{Date: date, Meals: make(map[string][]FoodItem)}
	for _, e := range entries {
		log.Meals[e.MealType] = append(log.Meals[e.MealType], e.Item)
		log.TotalCalories += float64(e.Item.Calories)
	}
	log.TotalItems = len(entries)
	log.TotalCalories = round(log.TotalCalories, 2)
	return log, nil
}

func (s *Service) calorieGoal(ctx context.Context, userID string) (float64, error) {
	np, err := s.goals.Nutrition(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return profile.DefaultCalorieGoal, nil
	}
	if err != nil {
		return 0, err
	}
	if np.CalorieGoal <= 0 {
		return profile.DefaultCalorieGoal, nil
	}
	return np.CalorieGoal, nil
}

func (s *Service) resolveDate(date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return s.now().Format(DateLayout), nil
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return "", &shared.ValidationError{Reason: shared.ReasonInvalidValue, Field: "date"}
	}
	return date, nil
}

func parseMealType(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "snacks", nil
	}
	for _, t := range MealTypes {
		if s == t {
			return s, nil
		}
	}
	return "", &shared.ValidationError{Reason: shared.ReasonInvalidValue, Field: "meal_type"}
}

func summarize(log DayLog, goal float64) CalorieSummary {
	sum := CalorieSummary{
		Date:              log.Date,
		CalorieGoal:       goal,
		CaloriesConsumed:  log.TotalCalories,
		CaloriesRemaining: round(max(goal-log.TotalCalories, 0), 2),
		TotalItems:        log.TotalItems,
	}
	if goal > 0 {
		sum.PercentageConsumed = round(log.TotalCalories/goal*100, 1)
	}
	return sum
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
