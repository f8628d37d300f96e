// Package resolver merges a delta computed against a stale plan version
// into the latest committed version.
//
// Changes to fields nobody else touched since the base version commute and
// are kept. Changes to fields that a later commit already wrote are dropped:
// the last committed value wins and the caller is told which fields were
// discarded.
package resolver

import (
	"errors"
	"fmt"
	"strings"

	"plan-engine/internal/plan"
	"plan-engine/internal/planstore"
	"plan-engine/internal/shared"
)

// ErrIrreconcilable is returned when nothing of a delta survives the merge.
var ErrIrreconcilable = errors.New("irreconcilable delta")

const (
	ReasonAllDropped       = "all_fields_dropped"
	ReasonHistoryGap       = "history_unavailable"
	ReasonVersionFromAhead = "base_version_ahead"
)

// IrreconcilableError explains why a delta could not be merged.
type IrreconcilableError struct {
	Reason  string
	Dropped []string
}

func (e *IrreconcilableError) Error() string {
	if len(e.Dropped) == 0 {
		return fmt.Sprintf("irreconcilable delta: %s", e.Reason)
	}
	return fmt.Sprintf("irreconcilable delta: %s (%s)", e.Reason, strings.Join(e.Dropped, ", "))
}

// Is matches ErrIrreconcilable and shared.ErrConflicted.
func (e *IrreconcilableError) Is(target error) bool {
	return target == ErrIrreconcilable || target == shared.ErrConflicted
}

// Result is a merged delta plus the fields that lost to newer commits.
type Result struct {
	Delta   plan.Delta
	Dropped []string
}

// Resolver merges stale deltas. It is stateless and safe for concurrent use.
type Resolver struct{}

// New creates a Resolver.
func New() *Resolver {
	return &Resolver{}
}

// Merge keeps the changes of d whose fields were not written after
// baseVersion in current.
func (r *Resolver) Merge(d plan.Delta, baseVersion int64, current planstore.Snapshot) (Result, error) {
	if baseVersion > current.Version {
		return Result{}, &IrreconcilableError{Reason: ReasonVersionFromAhead}
	}
	touched, ok := current.TouchedSince(baseVersion)
	if !ok {
		return Result{}, &IrreconcilableError{Reason: ReasonHistoryGap}
	}

	var res Result
	for _, c := range d.Changes {
		if touched[c.Key()] {
			res.Dropped = append(res.Dropped, c.String())
			continue
		}
		res.Delta.Changes = append(res.Delta.Changes, c)
	}
	if res.Delta.Empty() {
		return Result{}, &IrreconcilableError{Reason: ReasonAllDropped, Dropped: res.Dropped}
	}
	return res, nil
}
