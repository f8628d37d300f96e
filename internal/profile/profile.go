// Package profile stores the health and nutrition profiles the advisor
// reasons about.
package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"plan-engine/internal/shared"
)

// HealthProfile describes a user's body and fitness goals.
type HealthProfile struct {
	Age               int      `json:"age,omitempty"`
	Gender            string   `json:"gender,omitempty"`
	HeightCM          float64  `json:"height,omitempty"`
	WeightKG          float64  `json:"weight,omitempty"`
	BMI               float64  `json:"bmi,omitempty"`
	ActivityLevel     string   `json:"activity_level,omitempty"`
	FitnessGoal       string   `json:"fitness_goal,omitempty"`
	RestingHeartRate  int      `json:"resting_heart_rate,omitempty"`
	BloodPressure     string   `json:"blood_pressure,omitempty"`
	BodyFatPercentage float64  `json:"body_fat_percentage,omitempty"`
	Conditions        []string `json:"conditions,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NutritionProfile describes a user's dietary goals and constraints.
type NutritionProfile struct {
	DietType            string   `json:"diet_type,omitempty"`
	CalorieGoal         float64  `json:"calorie_goal,omitempty"`
	ProteinGoal         float64  `json:"protein_goal,omitempty"`
	CarbGoal            float64  `json:"carb_goal,omitempty"`
	FatGoal             float64  `json:"fat_goal,omitempty"`
	MealsPerDay         int      `json:"meals_per_day,omitempty"`
	Allergies           []string `json:"allergies,omitempty"`
	DietaryRestrictions []string `json:"dietary_restrictions,omitempty"`
	CuisinePreferences  []string `json:"cuisine_preferences,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultCalorieGoal is the daily goal of a user without one.
const DefaultCalorieGoal = 2000

// BMI is weight / (height in metres)², rounded to two decimals. It is zero
// when either value is missing.
func BMI(weightKG, heightCM float64) float64 {
	if weightKG <= 0 || heightCM <= 0 {
		return 0
	}
	m := heightCM / 100
	return math.Round(weightKG/(m*m)*100) / 100
}

// Repository persists profiles.
type Repository interface {
	Health(ctx context.Context, userID string) (HealthProfile, error)
	SaveHealth(ctx context.Context, userID string, p HealthProfile) error
	Nutrition(ctx context.Context, userID string) (NutritionProfile, error)
	SaveNutrition(ctx context.Context, userID string, p NutritionProfile) error
	DeleteHealth(ctx context.Context, userID string) error
	DeleteNutrition(ctx context.Context, userID string) error
}

// Service applies partial updates to profiles.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a Service on repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Health returns the user's health profile or shared.ErrNotFound.
func (s *Service) Health(ctx context.Context, userID string) (HealthProfile, error) {
	return s.repo.Health(ctx, userID)
}

// Nutrition returns the user's nutrition profile or shared.ErrNotFound.
func (s *Service) Nutrition(ctx context.Context, userID string) (NutritionProfile, error) {
	return s.repo.Nutrition(ctx, userID)
}

// CreateHealth replaces the user's health profile with body. Weight,
// height and age are required.
func (s *Service) CreateHealth(ctx context.Context, userID string, body json.RawMessage) (HealthProfile, error) {
	var required struct {
		Weight *float64 `json:"weight"`
		Height *float64 `json:"height"`
		Age    *int     `json:"age"`
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(body, &required); err != nil {
		return HealthProfile{}, shared.Rejectf(shared.ReasonInvalidValue, "%v", err)
	}
	switch {
	case required.Weight == nil:
		return HealthProfile{}, &shared.ValidationError{Reason: shared.ReasonInvalidRequest, Field: "weight"}
	case required.Height == nil || *required.Height <= 0:
		return HealthProfile{}, &shared.ValidationError{Reason: shared.ReasonInvalidRequest, Field: "height"}
	case required.Age == nil:
		return HealthProfile{}, &shared.ValidationError{Reason: shared.ReasonInvalidRequest, Field: "age"}
	}

	var p HealthProfile
	if err := merge(&p, body); err != nil {
		return HealthProfile{}, err
	}
	return p, s.saveHealth(ctx, userID, &p)
}

// CreateNutrition replaces the user's nutrition profile with body on top
// of the defaults: a standard diet of 2000 kcal in three meals. An empty
// body stores the defaults.
func (s *Service) CreateNutrition(ctx context.Context, userID string, body json.RawMessage) (NutritionProfile, error) {
	p := NutritionProfile{DietType: "standard", CalorieGoal: DefaultCalorieGoal, MealsPerDay: 3}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("{}")) {
		if err := merge(&p, trimmed); err != nil {
			return NutritionProfile{}, err
		}
	}
	return p, s.saveNutrition(ctx, userID, &p)
}

// DeleteHealth removes the user's health profile or returns shared.ErrNotFound.
func (s *Service) DeleteHealth(ctx context.Context, userID string) error {
	return s.repo.DeleteHealth(ctx, userID)
}

// DeleteNutrition removes the user's nutrition profile or returns shared.ErrNotFound.
func (s *Service) DeleteNutrition(ctx context.Context, userID string) error {
	return s.repo.DeleteNutrition(ctx, userID)
}

// UpdateHealth merges the JSON object patch into the stored profile,
// creating it if needed, and recomputes the BMI.
func (s *Service) UpdateHealth(ctx context.Context, userID string, patch json.RawMessage) (HealthProfile, error) {
	p, err := s.repo.Health(ctx, userID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return HealthProfile{}, err
	}
	if err := merge(&p, patch); err != nil {
		return HealthProfile{}, err
	}
	if err := s.saveHealth(ctx, userID, &p); err != nil {
		return HealthProfile{}, err
	}
	return p, nil
}

func (s *Service) saveHealth(ctx context.Context, userID string, p *HealthProfile) error {
	if p.HeightCM < 0 || p.WeightKG < 0 || p.Age < 0 {
		return &shared.ValidationError{Reason: shared.ReasonNegativeValue, Field: "health"}
	}
	p.BMI = BMI(p.WeightKG, p.HeightCM)
	p.UpdatedAt = s.now().UTC()
	return s.repo.SaveHealth(ctx, userID, *p)
}

// UpdateNutrition merges the JSON object patch into the stored profile,
// creating it if needed.
func (s *Service) UpdateNutrition(ctx context.Context, userID string, patch json.RawMessage) (NutritionProfile, error) {
	p, err := s.repo.Nutrition(ctx, userID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return NutritionProfile{}, err
	}
	if err := merge(&p, patch); err != nil {
		return NutritionProfile{}, err
	}
	if err := s.saveNutrition(ctx, userID, &p); err != nil {
		return NutritionProfile{}, err
	}
	return p, nil
}

func (s *Service) saveNutrition(ctx context.Context, userID string, p *NutritionProfile) error {
	if p.CalorieGoal < 0 || p.ProteinGoal < 0 || p.CarbGoal < 0 || p.FatGoal < 0 {
		return &shared.ValidationError{Reason: shared.ReasonNegativeValue, Field: "nutrition"}
	}
	p.UpdatedAt = s.now().UTC()
	return s.repo.SaveNutrition(ctx, userID, *p)
}

// merge decodes patch over dst so absent keys keep their stored values.
func merge(dst any, patch json.RawMessage) error {
	trimmed := bytes.TrimSpace(patch)
	if len(trimmed) == 0 || trimmed[0] != '{' || bytes.Equal(trimmed, []byte("{}")) {
		return &shared.ValidationError{Reason: shared.ReasonInvalidRequest, Field: "body"}
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return shared.Rejectf(shared.ReasonInvalidValue, "%v", err)
	}
	return nil
}
