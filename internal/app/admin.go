package app

import (
	"context"
	"time"

	"plan-engine/internal/coordinator"
	"plan-engine/internal/metrics"
	"plan-engine/internal/planstore"
	"plan-engine/internal/validator"
)

// Plan returns the stored plan of userID.
func (a *App) Plan(ctx context.Context, userID string) (planstore.Snapshot, error) {
	return a.coordinator.CurrentPlan(ctx, userID)
}

// CreatePlan creates a plan for userID without going through HTTP.
func (a *App) CreatePlan(ctx context.Context, userID string, opts coordinator.CreateOptions) (planstore.Snapshot, error) {
	return a.coordinator.CreatePlan(ctx, userID, opts)
}

// ValidatePlan checks the stored plan of userID against the plan rules.
func (a *App) ValidatePlan(ctx context.Context, userID string) (validator.Outcome, int64, error) {
	outcome, snap, err := a.coordinator.ValidateCurrent(ctx, userID)
	return outcome, snap.Version, err
}

// DeletePlan removes the plan of userID.
func (a *App) DeletePlan(ctx context.Context, userID string) error {
	return a.coordinator.DeletePlan(ctx, userID)
}

// Usage returns the agent token usage of the last days.
func (a *App) Usage(ctx context.Context, days int) ([]metrics.DailyUsage, error) {
	return a.metrics.GetDailyUsage(ctx, days)
}

// CleanupResult counts the rows removed by Cleanup.
type CleanupResult struct {
	Metrics  int64
	Requests int64
}

// Cleanup removes execution metrics and idempotency records older than
// olderThanDays.
func (a *App) Cleanup(ctx context.Context, olderThanDays int) (CleanupResult, error) {
	var res CleanupResult
	var err error
	if res.Metrics, err = a.metrics.Cleanup(ctx, olderThanDays); err != nil {
		return res, err
	}
	res.Requests, err = a.requests.Prune(ctx, time.Duration(olderThanDays)*24*time.Hour)
	return res, err
}
