package tracking

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"plan-engine/internal/database"
)

// SQLRepository keeps one food_log row per item.
type SQLRepository struct {
	db *sql.DB
}

// NewSQLRepository creates a SQLRepository on db.
func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Add inserts all entries or none.
func (r *SQLRepository) Add(ctx context.Context, userID, date string, entries []Entry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		raw, err := json.Marshal(e.Item)
		if err != nil {
			return fmt.Errorf("failed to encode food item: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO food_log (user_id, log_date, meal_type, item_json, calories, logged_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			userID, date, e.MealType, string(raw), float64(e.Item.Calories), database.FormatTime(e.LoggedAt))
		if err != nil {
			return fmt.Errorf("failed to insert food item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit food log: %w", err)
	}
	return nil
}

func (r *SQLRepository) Day(ctx context.Context, userID, date string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, meal_type, item_json, logged_at FROM food_log
		WHERE user_id = ? AND log_date = ? ORDER BY id`, userID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query food log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e             Entry
			raw, loggedAt string
		)
		if err := rows.Scan(&e.ID, &e.MealType, &raw, &loggedAt); err != nil {
			return nil, fmt.Errorf("failed to scan food log: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &e.Item); err != nil {
			return nil, fmt.Errorf("failed to decode food item %d: %w", e.ID, err)
		}
		if e.LoggedAt, err = database.ParseTime(loggedAt); err != nil {
			return nil, fmt.Errorf("failed to parse food log time: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *SQLRepository) History(ctx context.Context, userID string, limit int) ([]DaySummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT log_date, SUM(calories), COUNT(*) FROM food_log
		WHERE user_id = ? GROUP BY log_date ORDER BY log_date DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query food log history: %w", err)
	}
	defer rows.Close()

	days := []DaySummary{}
	for rows.Next() {
		var d DaySummary
		if err := rows.Scan(&d.Date, &d.Calories, &d.Items); err != nil {
			return nil, fmt.Errorf("failed to scan food log history: %w", err)
		}
		d.Calories = round(d.Calories, 2)
		days = append(days, d)
	}
	return days, rows.Err()
}
