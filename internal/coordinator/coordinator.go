// Package coordinator drives adjustment requests through proposal,
// validation, merge and commit.
//
// Agent calls run outside any lock. The per-user section is held only while
// the current plan is read, the delta validated, merged and committed, so
// different users never wait for each other and a slow agent never blocks
// direct edits.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"plan-engine/internal/plan"
	"plan-engine/internal/planstore"
	"plan-engine/internal/proposal"
	"plan-engine/internal/resolver"
	"plan-engine/internal/shared"
	"plan-engine/internal/validator"
)

// Proposer turns an instruction into a delta.
type Proposer interface {
	Propose(ctx context.Context, req proposal.Request) (proposal.Result, error)
}

// Generator drafts a complete plan.
type Generator interface {
	GeneratePlan(ctx context.Context, userID string, opts plan.Options) (plan.Plan, error)
}

// Publisher receives committed plans.
type Publisher interface {
	Publish(userID string, p plan.Plan, version int64)
	Retract(userID string)
}

// Deps are the collaborators of a Coordinator. Proposer, Generator and
// Publisher are optional.
type Deps struct {
	Store     planstore.Store
	Validator *validator.Validator
	Resolver  *resolver.Resolver
	Proposer  Proposer
	Generator Generator
	Publisher Publisher
	Requests  RequestLog

	LockTimeout   time.Duration
	CommitTimeout time.Duration
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	store     planstore.Store
	validator *validator.Validator
	resolver  *resolver.Resolver
	proposer  Proposer
	generator Generator
	publisher Publisher
	requests  RequestLog

	lockTimeout   time.Duration
	commitTimeout time.Duration

	locks     *userLocks
	proposals *proposals

	flightMu sync.Mutex
	flights  map[string]*flight
	now      func() time.Time
}

type flight struct {
	done chan struct{}
	out  Outcome
}

// New creates a Coordinator. Zero timeouts default to five seconds.
func New(d Deps) *Coordinator {
	if d.Resolver == nil {
		d.Resolver = resolver.New()
	}
	if d.Requests == nil {
		d.Requests = NewMemoryRequestLog()
	}
	if d.LockTimeout <= 0 {
		d.LockTimeout = 5 * time.Second
	}
	if d.CommitTimeout <= 0 {
		d.CommitTimeout = 5 * time.Second
	}
	return &Coordinator{
		store:         d.Store,
		validator:     d.Validator,
		resolver:      d.Resolver,
		proposer:      d.Proposer,
		generator:     d.Generator,
		publisher:     d.Publisher,
		requests:      d.Requests,
		lockTimeout:   d.LockTimeout,
		commitTimeout: d.CommitTimeout,
		locks:         newUserLocks(),
		proposals:     newProposals(),
		flights:       make(map[string]*flight),
		now:           time.Now,
	}
}

// Submit processes req to a terminal state. The returned error is
// Outcome.Err() of the returned outcome, or an infrastructure failure.
// A request id that already reached a replayable outcome is not applied
// again; its recorded outcome is returned with Replayed set.
func (c *Coordinator) Submit(ctx context.Context, req plan.AdjustmentRequest) (Outcome, error) {
	if err := req.Check(); err != nil {
		return rejectWith(newRun(req.ID), err), err
	}

	if out, ok, err := c.requests.Lookup(ctx, req.UserID, req.ID); err != nil {
		return Outcome{}, err
	} else if ok {
		out.Replayed = true
		return out, out.Err()
	}

	flightKey := req.UserID + "/" + req.ID
	f, leader := c.join(flightKey)
	if !leader {
		select {
		case <-f.done:
			out := f.out
			out.Replayed = true
			return out, out.Err()
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}

	out, err := c.process(ctx, req)
	if err == nil && out.replayable() {
		if rerr := c.requests.Record(ctx, req, out); rerr != nil {
			slog.ErrorContext(ctx, "coordinator: failed to record outcome", "request_id", req.ID, "error", rerr)
		}
	}
	c.land(flightKey, f, out)
	if err != nil {
		return out, err
	}

	slog.InfoContext(ctx, "coordinator: request finished",
		"request_id", req.ID, "user_id", req.UserID, "kind", req.Kind,
		"state", out.State, "version", out.Version, "reason", out.Reason)
	return out, out.Err()
}

// join registers the caller as the one processing key, or returns the
// flight already doing so.
func (c *Coordinator) join(key string) (*flight, bool) {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	if f, ok := c.flights[key]; ok {
		return f, false
	}
	f := &flight{done: make(chan struct{})}
	c.flights[key] = f
	return f, true
}

func (c *Coordinator) land(key string, f *flight, out Outcome) {
	c.flightMu.Lock()
	delete(c.flights, key)
	c.flightMu.Unlock()
	f.out = out
	close(f.done)
}

// process runs the state machine. A non-nil error means the outcome is
// incomplete because a collaborator failed outside the taxonomy.
func (c *Coordinator) process(ctx context.Context, req plan.AdjustmentRequest) (Outcome, error) {
	r := newRun(req.ID)
	r.to(StateRequested)

	base := req.BasedOnVersion
	var proposed *plan.Delta

	if req.AISourced() {
		d, snapVersion, terminal, err := c.awaitProposal(ctx, r, req)
		if err != nil || terminal {
			return r.out, err
		}
		proposed, base = &d, snapVersion
	} else {
		c.proposals.supersede(req.UserID)
	}

	release, err := c.locks.acquire(ctx, req.UserID, c.lockTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return r.out, ctx.Err()
		}
		return r.conflict(ReasonLockTimeout, nil), nil
	}
	defer release()

	r.to(StateValidating)
	current, err := c.store.Get(ctx, req.UserID)
	if errors.Is(err, shared.ErrNotFound) {
		return r.reject(ReasonPlanNotFound, req.UserID), nil
	}
	if err != nil {
		return r.out, fmt.Errorf("failed to read plan: %w", err)
	}
	r.out.Version = current.Version
	if base == 0 {
		base = current.Version
	}

	var delta plan.Delta
	if proposed != nil {
		delta = *proposed
	} else {
		delta, err = req.DirectDelta(current.Plan)
		if err != nil {
			return rejectWith(r, err), nil
		}
	}

	if o := c.validator.ValidateDelta(current.Plan, delta, req.Source()); !o.Accepted {
		return r.reject(o.Reason, o.Field), nil
	}

	r.to(StateMerging)
	return c.commit(ctx, r, req, base, delta, current)
}

// awaitProposal asks the agent for a delta against the current plan.
// terminal is true when the request already ended in r.out.
func (c *Coordinator) awaitProposal(ctx context.Context, r *run, req plan.AdjustmentRequest) (d plan.Delta, version int64, terminal bool, err error) {
	snap, err := c.store.Get(ctx, req.UserID)
	if errors.Is(err, shared.ErrNotFound) {
		r.reject(ReasonPlanNotFound, req.UserID)
		return d, 0, true, nil
	}
	if err != nil {
		return d, 0, false, fmt.Errorf("failed to read plan: %w", err)
	}
	r.out.Version = snap.Version

	pctx, pending := c.proposals.register(ctx, req.UserID, req.ID)
	r.to(StateAwaitingProposal)
	if c.proposer == nil {
		c.proposals.finish(req.UserID, pending)
		r.reject(ReasonAIUnavailable, "")
		return d, 0, true, nil
	}
	res, err := c.proposer.Propose(pctx, proposal.Request{
		Agent:       req.General.Agent,
		Snapshot:    snap.Plan,
		Instruction: req.General.Instruction,
		Feedback:    req.General.Feedback,
	})
	superseded := c.proposals.finish(req.UserID, pending)

	switch {
	case superseded:
		slog.InfoContext(ctx, "coordinator: discarding superseded proposal", "request_id", req.ID, "user_id", req.UserID)
		r.reject(ReasonSuperseded, "")
		return d, 0, true, nil
	case err != nil && ctx.Err() != nil:
		return d, 0, false, ctx.Err()
	case errors.Is(err, shared.ErrMalformedAIOutput):
		rejectWith(r, err)
		return d, 0, true, nil
	case err != nil:
		slog.WarnContext(ctx, "coordinator: agent unavailable", "request_id", req.ID, "agent", req.General.Agent, "error", err)
		r.reject(ReasonAIUnavailable, "")
		return d, 0, true, nil
	}
	return res.Delta, snap.Version, false, nil
}

// commit writes delta based on base. A version conflict is merged by the
// resolver, validated again and retried exactly once.
func (c *Coordinator) commit(ctx context.Context, r *run, req plan.AdjustmentRequest, base int64, delta plan.Delta, current planstore.Snapshot) (Outcome, error) {
	version, err := c.commitOnce(ctx, req.UserID, base, delta)
	if err == nil {
		return c.committed(ctx, r, req.UserID, version, nil)
	}
	var conflict *planstore.ConflictError
	if !errors.As(err, &conflict) {
		return commitFailure(r, err)
	}

	merged, err := c.resolver.Merge(delta, base, conflict.Current)
	if err != nil {
		var ierr *resolver.IrreconcilableError
		if errors.As(err, &ierr) {
			r.out.Version = conflict.Current.Version
			r.out.Plan = &conflict.Current.Plan
			return r.conflict(ierr.Reason, ierr.Dropped), nil
		}
		return r.out, err
	}
	if o := c.validator.ValidateDelta(conflict.Current.Plan, merged.Delta, req.Source()); !o.Accepted {
		r.out.Version = conflict.Current.Version
		return r.reject(o.Reason, o.Field), nil
	}

	version, err = c.commitOnce(ctx, req.UserID, conflict.Current.Version, merged.Delta)
	if err == nil {
		return c.committed(ctx, r, req.UserID, version, merged.Dropped)
	}
	if errors.As(err, &conflict) {
		r.out.Version = conflict.Current.Version
		r.out.Plan = &conflict.Current.Plan
		return r.conflict(ReasonVersionConflict, merged.Dropped), nil
	}
	return commitFailure(r, err)
}

func (c *Coordinator) commitOnce(ctx context.Context, userID string, base int64, d plan.Delta) (int64, error) {
	cctx, cancel := context.WithTimeout(ctx, c.commitTimeout)
	defer cancel()
	return c.store.Commit(cctx, userID, base, d)
}

func commitFailure(r *run, err error) (Outcome, error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return r.reject(ReasonPlanNotFound, ""), nil
	case errors.Is(err, shared.ErrValidation):
		return rejectWith(r, err), nil
	}
	return r.out, fmt.Errorf("failed to commit plan: %w", err)
}

func (c *Coordinator) committed(ctx context.Context, r *run, userID string, version int64, dropped []string) (Outcome, error) {
	snap, err := c.store.Get(ctx, userID)
	if err != nil {
		return r.out, fmt.Errorf("failed to read committed plan: %w", err)
	}
	r.to(StateCommitted)
	r.out.Version = version
	r.out.Plan = &snap.Plan
	r.out.Dropped = dropped
	if c.publisher != nil {
		c.publisher.Publish(userID, snap.Plan, snap.Version)
	}
	return r.out, nil
}

func rejectWith(r *run, err error) Outcome {
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		return r.reject(verr.Reason, verr.Field)
	}
	return r.reject(shared.ReasonInvalidValue, err.Error())
}
