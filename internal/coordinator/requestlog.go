package coordinator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"plan-engine/internal/database"
	"plan-engine/internal/plan"
)

// RequestLog remembers the outcome of processed requests so a request id
// is applied at most once per user. Ids of different users never collide.
type RequestLog interface {
	Lookup(ctx context.Context, userID, requestID string) (Outcome, bool, error)
	Record(ctx context.Context, req plan.AdjustmentRequest, out Outcome) error
}

type requestKey struct {
	userID    string
	requestID string
}

// MemoryRequestLog keeps outcomes in memory.
type MemoryRequestLog struct {
	mu       sync.Mutex
	requests map[requestKey]Outcome
}

// NewMemoryRequestLog creates an empty MemoryRequestLog.
func NewMemoryRequestLog() *MemoryRequestLog {
	return &MemoryRequestLog{requests: make(map[requestKey]Outcome)}
}

func (l *MemoryRequestLog) Lookup(ctx context.Context, userID, requestID string) (Outcome, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out, ok := l.requests[requestKey{userID, requestID}]
	return out, ok, nil
}

func (l *MemoryRequestLog) Record(ctx context.Context, req plan.AdjustmentRequest, out Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := requestKey{req.UserID, req.ID}
	if _, ok := l.requests[key]; !ok {
		l.requests[key] = out
	}
	return nil
}

// SQLRequestLog keeps outcomes in the adjustment_requests table.
type SQLRequestLog struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLRequestLog creates a SQLRequestLog on db.
func NewSQLRequestLog(db *sql.DB) *SQLRequestLog {
	return &SQLRequestLog{db: db, now: time.Now}
}

func (l *SQLRequestLog) Lookup(ctx context.Context, userID, requestID string) (Outcome, bool, error) {
	var raw string
	err := l.db.QueryRowContext(ctx,
		`SELECT outcome_json FROM adjustment_requests WHERE user_id = ? AND request_id = ?`,
		userID, requestID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Outcome{}, false, nil
	}
	if err != nil {
		return Outcome{}, false, fmt.Errorf("failed to look up request %s: %w", requestID, err)
	}

	var out Outcome
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Outcome{}, false, fmt.Errorf("failed to decode outcome of request %s: %w", requestID, err)
	}
	return out, true, nil
}

// Record stores the first outcome of a request; later ones are ignored.
func (l *SQLRequestLog) Record(ctx context.Context, req plan.AdjustmentRequest, out Outcome) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO adjustment_requests (request_id, user_id, kind, state, outcome_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, request_id) DO NOTHING`,
		req.ID, req.UserID, string(req.Kind), string(out.State), string(raw), database.FormatTime(l.now()))
	if err != nil {
		return fmt.Errorf("failed to record request %s: %w", req.ID, err)
	}
	return nil
}

// Prune removes records older than the given age and returns how many went.
func (l *SQLRequestLog) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM adjustment_requests WHERE created_at < ?`, database.FormatTime(l.now().Add(-olderThan)))
	if err != nil {
		return 0, fmt.Errorf("failed to prune requests: %w", err)
	}
	return res.RowsAffected()
}
