package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"plan-engine/internal/plan"
	"plan-engine/internal/planstore"
	"plan-engine/internal/shared"
	"plan-engine/internal/validator"
)

// CreateOptions describes the plan to create.
type CreateOptions struct {
	plan.Options
	UseAI bool
}

// CreatePlan stores a new plan at version 1. Generated plans that fail
// validation are replaced by the default plan. It fails with
// shared.ErrVersionConflict when the user already has a plan.
func (c *Coordinator) CreatePlan(ctx context.Context, userID string, opts CreateOptions) (planstore.Snapshot, error) {
	opts.Options = opts.Normalize()
	p := c.draft(ctx, userID, opts)

	release, err := c.locks.acquire(ctx, userID, c.lockTimeout)
	if err != nil {
		return planstore.Snapshot{}, fmt.Errorf("%w: %s", shared.ErrConflicted, ReasonLockTimeout)
	}
	defer release()
	c.proposals.supersede(userID)

	cctx, cancel := context.WithTimeout(ctx, c.commitTimeout)
	defer cancel()
	if _, err := c.store.Create(cctx, p); err != nil {
		return planstore.Snapshot{}, err
	}

	snap, err := c.store.Get(ctx, userID)
	if err != nil {
		return planstore.Snapshot{}, fmt.Errorf("failed to read created plan: %w", err)
	}
	slog.InfoContext(ctx, "coordinator: plan created", "user_id", userID, "type", snap.Plan.Type, "weeks", len(snap.Plan.Weeks))
	if c.publisher != nil {
		c.publisher.Publish(userID, snap.Plan, snap.Version)
	}
	return snap, nil
}

func (c *Coordinator) draft(ctx context.Context, userID string, opts CreateOptions) plan.Plan {
	fallback := plan.Default(userID, opts.Options, c.now())
	if !opts.UseAI || c.generator == nil {
		return fallback
	}

	p, err := c.generator.GeneratePlan(ctx, userID, opts.Options)
	if err != nil {
		slog.WarnContext(ctx, "coordinator: plan generation failed, using default", "user_id", userID, "error", err)
		return fallback
	}
	p.UserID = userID
	p.CreatedAt, p.LastModified = fallback.CreatedAt, fallback.LastModified
	if o := c.validator.Validate(p); !o.Accepted {
		slog.WarnContext(ctx, "coordinator: generated plan rejected, using default",
			"user_id", userID, "reason", o.Reason, "field", o.Field)
		return fallback
	}
	return p
}

// DeletePlan removes the user's plan; the next plan starts at version 1.
func (c *Coordinator) DeletePlan(ctx context.Context, userID string) error {
	release, err := c.locks.acquire(ctx, userID, c.lockTimeout)
	if err != nil {
		return fmt.Errorf("%w: %s", shared.ErrConflicted, ReasonLockTimeout)
	}
	defer release()
	c.proposals.supersede(userID)

	if err := c.store.Delete(ctx, userID); err != nil {
		return err
	}
	if c.publisher != nil {
		c.publisher.Retract(userID)
	}
	return nil
}

// CurrentPlan returns the user's plan and version.
func (c *Coordinator) CurrentPlan(ctx context.Context, userID string) (planstore.Snapshot, error) {
	return c.store.Get(ctx, userID)
}

// ValidateCurrent runs the validator on the user's plan without changing it.
func (c *Coordinator) ValidateCurrent(ctx context.Context, userID string) (validator.Outcome, planstore.Snapshot, error) {
	snap, err := c.store.Get(ctx, userID)
	if err != nil {
		return validator.Outcome{}, planstore.Snapshot{}, err
	}
	return c.validator.Validate(snap.Plan), snap, nil
}

// IsConflict reports whether err means the caller raced another writer.
func IsConflict(err error) bool {
	return errors.Is(err, shared.ErrVersionConflict) || errors.Is(err, shared.ErrConflicted) || errors.Is(err, shared.ErrSuperseded)
}
