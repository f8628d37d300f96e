package planstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"plan-engine/internal/database"
	"plan-engine/internal/plan"
	"plan-engine/internal/shared"
)

// SQLStore persists plans in SQLite. The plan document is stored as JSON next
// to its version; commits use a conditional update inside a transaction.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore creates a SQLStore over an open database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *SQLStore) Get(ctx context.Context, userID string) (Snapshot, error) {
	return loadSnapshot(ctx, s.db, userID)
}

func (s *SQLStore) Create(ctx context.Context, p plan.Plan) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := loadSnapshot(ctx, tx, p.UserID)
	switch {
	case err == nil:
		return 0, &ConflictError{BaseVersion: 0, Current: current}
	case !errors.Is(err, shared.ErrNotFound):
		return 0, err
	}

	now := s.now()
	p = p.Clone()
	p.Version = 1
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.LastModified = now

	doc, err := json.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal plan: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO plans (user_id, version, plan_json, created_at, last_modified)
VALUES (?, ?, ?, ?, ?)`,
		p.UserID, p.Version, string(doc), database.FormatTime(p.CreatedAt), database.FormatTime(now)); err != nil {
		return 0, fmt.Errorf("failed to insert plan: %w", err)
	}
	if err := insertCommit(ctx, tx, p.UserID, Commit{Version: 1, At: now}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit plan creation: %w", err)
	}
	return 1, nil
}

func (s *SQLStore) Commit(ctx context.Context, userID string, baseVersion int64, d plan.Delta) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := loadSnapshot(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if current.Version != baseVersion {
		return 0, &ConflictError{BaseVersion: baseVersion, Current: current}
	}

	next, err := plan.Apply(current.Plan, d)
	if err != nil {
		return 0, err
	}
	now := s.now()
	next.Version = baseVersion + 1
	next.LastModified = now

	doc, err := json.Marshal(next)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal plan: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
UPDATE plans SET version = ?, plan_json = ?, last_modified = ?
WHERE user_id = ? AND version = ?`,
		next.Version, string(doc), database.FormatTime(now), userID, baseVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to update plan: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		latest, lerr := loadSnapshot(ctx, tx, userID)
		if lerr != nil {
			return 0, lerr
		}
		return 0, &ConflictError{BaseVersion: baseVersion, Current: latest}
	}

	if err := insertCommit(ctx, tx, userID, Commit{Version: next.Version, Paths: d.Paths(), At: now}); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM plan_changes WHERE user_id = ? AND version <= ?`,
		userID, next.Version-MaxLogEntries); err != nil {
		return 0, fmt.Errorf("failed to trim plan log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit plan: %w", err)
	}
	return next.Version, nil
}

func (s *SQLStore) Delete(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM plans WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM plan_changes WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete plan log: %w", err)
	}
	return tx.Commit()
}

func loadSnapshot(ctx context.Context, q database.Querier, userID string) (Snapshot, error) {
	var (
		version int64
		doc     string
	)
	err := q.QueryRowContext(ctx, `SELECT version, plan_json FROM plans WHERE user_id = ?`, userID).Scan(&version, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, shared.ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load plan: %w", err)
	}

	var p plan.Plan
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal plan for %s: %w", userID, err)
	}
	p.Version = version

	rows, err := q.QueryContext(ctx, `
SELECT version, paths_json, committed_at FROM plan_changes
WHERE user_id = ? ORDER BY version`, userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load plan log: %w", err)
	}
	defer rows.Close()

	var log []Commit
	for rows.Next() {
		var (
			c     Commit
			paths string
			at    string
		)
		if err := rows.Scan(&c.Version, &paths, &at); err != nil {
			return Snapshot{}, fmt.Errorf("failed to scan plan log: %w", err)
		}
		if err := json.Unmarshal([]byte(paths), &c.Paths); err != nil {
			return Snapshot{}, fmt.Errorf("failed to unmarshal plan log paths: %w", err)
		}
		c.At, _ = database.ParseTime(at)
		log = append(log, c)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("failed to read plan log: %w", err)
	}

	return Snapshot{Plan: p, Version: version, Log: log}, nil
}

func insertCommit(ctx context.Context, tx *sql.Tx, userID string, c Commit) error {
	paths := c.Paths
	if paths == nil {
		paths = []string{}
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return fmt.Errorf("failed to marshal plan log paths: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO plan_changes (user_id, version, paths_json, committed_at)
VALUES (?, ?, ?, ?)`, userID, c.Version, string(data), database.FormatTime(c.At)); err != nil {
		return fmt.Errorf("failed to record plan log: %w", err)
	}
	return nil
}
