package coordinator

import (
	"fmt"

	"plan-engine/internal/plan"
	"plan-engine/internal/shared"
)

// State is a step of the adjustment state machine.
type State string

const (
	StateIdle             State = "idle"
	StateRequested        State = "requested"
	StateAwaitingProposal State = "awaiting_proposal"
	StateValidating       State = "validating"
	StateMerging          State = "merging"
	StateCommitted        State = "committed"
	StateRejected         State = "rejected"
	StateConflicted       State = "conflicted"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRejected || s == StateConflicted
}

// Reasons reported by the coordinator itself. Validation reasons come from
// shared and merge reasons from the resolver.
const (
	ReasonPlanNotFound    = "plan_not_found"
	ReasonAIUnavailable   = "ai_unavailable"
	ReasonSuperseded      = "superseded"
	ReasonVersionConflict = "version_conflict"
	ReasonLockTimeout     = "lock_timeout"
)

// Outcome is the terminal result of one adjustment request.
type Outcome struct {
	RequestID string     `json:"request_id"`
	State     State      `json:"state"`
	Trace     []State    `json:"trace"`
	Version   int64      `json:"version"`
	Plan      *plan.Plan `json:"plan,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Field     string     `json:"field,omitempty"`
	Dropped   []string   `json:"dropped,omitempty"`
	Replayed  bool       `json:"replayed,omitempty"`
}

// Err maps a terminal outcome onto the shared error taxonomy. It is nil
// for committed requests.
func (o Outcome) Err() error {
	switch o.State {
	case StateCommitted:
		return nil
	case StateConflicted:
		return fmt.Errorf("%w: %s", shared.ErrConflicted, o.Reason)
	}
	switch o.Reason {
	case ReasonPlanNotFound:
		return fmt.Errorf("plan: %w", shared.ErrNotFound)
	case ReasonAIUnavailable:
		return shared.ErrAIUnavailable
	case ReasonSuperseded:
		return shared.ErrSuperseded
	}
	return &shared.ValidationError{Reason: o.Reason, Field: o.Field}
}

// replayable reports whether a later submission of the same request id
// must get this outcome back. Transient failures are not replayed so the
// client can retry them under the same id.
func (o Outcome) replayable() bool {
	if !o.State.Terminal() || o.State == StateConflicted {
		return false
	}
	if o.State == StateCommitted {
		return true
	}
	switch o.Reason {
	case ReasonAIUnavailable, ReasonSuperseded, ReasonPlanNotFound, shared.ReasonMalformedAIOutput:
		return false
	}
	return true
}

type run struct {
	out Outcome
}

func newRun(requestID string) *run {
	return &run{out: Outcome{RequestID: requestID, State: StateIdle, Trace: []State{StateIdle}}}
}

func (r *run) to(s State) {
	r.out.State = s
	r.out.Trace = append(r.out.Trace, s)
}

func (r *run) reject(reason, field string) Outcome {
	r.to(StateRejected)
	r.out.Reason = reason
	r.out.Field = field
	return r.out
}

func (r *run) conflict(reason string, dropped []string) Outcome {
	r.to(StateConflicted)
	r.out.Reason = reason
	r.out.Dropped = dropped
	return r.out
}
