package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"plan-engine/internal/database"
	"plan-engine/internal/shared"
)

// SQLRepository keeps profiles as JSON documents in SQLite.
type SQLRepository struct {
	db *sql.DB
}

// NewSQLRepository creates a SQLRepository on db.
func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Health(ctx context.Context, userID string) (HealthProfile, error) {
	var p HealthProfile
	err := r.load(ctx, "health_profiles", userID, &p)
	return p, err
}

func (r *SQLRepository) SaveHealth(ctx context.Context, userID string, p HealthProfile) error {
	return r.save(ctx, "health_profiles", userID, p, p.UpdatedAt)
}

func (r *SQLRepository) Nutrition(ctx context.Context, userID string) (NutritionProfile, error) {
	var p NutritionProfile
	err := r.load(ctx, "nutrition_profiles", userID, &p)
	return p, err
}

func (r *SQLRepository) SaveNutrition(ctx context.Context, userID string, p NutritionProfile) error {
	return r.save(ctx, "nutrition_profiles", userID, p, p.UpdatedAt)
}

func (r *SQLRepository) DeleteHealth(ctx context.Context, userID string) error {
	return r.delete(ctx, "health_profiles", userID)
}

func (r *SQLRepository) DeleteNutrition(ctx context.Context, userID string) error {
	return r.delete(ctx, "nutrition_profiles", userID)
}

// table is one of two constants above, never user input.
func (r *SQLRepository) load(ctx context.Context, table, userID string, dst any) error {
	var raw string
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT profile_json FROM %s WHERE user_id = ?`, table), userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s for %s: %w", table, userID, shared.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", table, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", table, err)
	}
	return nil
}

func (r *SQLRepository) save(ctx context.Context, table, userID string, p any, updatedAt time.Time) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", table, err)
	}
	_, err = r.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (user_id, profile_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET profile_json = excluded.profile_json, updated_at = excluded.updated_at`, table),
		userID, string(raw), database.FormatTime(updatedAt))
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", table, err)
	}
	return nil
}

func (r *SQLRepository) delete(ctx context.Context, table, userID string) error {
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = ?`, table), userID)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s for %s: %w", table, userID, shared.ErrNotFound)
	}
	return nil
}
