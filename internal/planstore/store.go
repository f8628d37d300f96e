// Package planstore holds the authoritative, versioned plan of every user.
//
// A commit succeeds only when it is based on the current version; otherwise
// it fails with a *ConflictError carrying the current snapshot so the caller
// can merge and retry. Every commit records the field paths it touched so
// stale deltas can be merged field by field.
package planstore

import (
	"context"
	"fmt"
	"time"

	"plan-engine/internal/plan"
	"plan-engine/internal/shared"
)

// MaxLogEntries bounds the per-user commit log kept for merging.
const MaxLogEntries = 256

// Store is the contract every plan store implements.
type Store interface {
	// Get returns the current plan and version of a user, or shared.ErrNotFound.
	Get(ctx context.Context, userID string) (Snapshot, error)
	// Create stores a new plan at version 1. It fails with a *ConflictError
	// if the user already has a plan.
	Create(ctx context.Context, p plan.Plan) (int64, error)
	// Commit applies d if baseVersion is the current version and returns the new version.
	Commit(ctx context.Context, userID string, baseVersion int64, d plan.Delta) (int64, error)
	// Delete removes the plan and its log; the user returns to version zero.
	Delete(ctx context.Context, userID string) error
}

// Commit records the fields touched by one committed version.
type Commit struct {
	Version int64     `json:"version"`
	Paths   []string  `json:"paths"`
	At      time.Time `json:"at"`
}

// Snapshot is an immutable view of a user's plan at one version.
type Snapshot struct {
	Plan    plan.Plan
	Version int64
	Log     []Commit
}

// TouchedSince returns the paths changed by commits after base. ok is false
// when the retained log does not reach back to base.
func (s Snapshot) TouchedSince(base int64) (paths map[string]bool, ok bool) {
	paths = make(map[string]bool)
	if base >= s.Version {
		return paths, base == s.Version
	}
	if len(s.Log) == 0 || s.Log[0].Version > base+1 {
		return nil, false
	}
	for _, c := range s.Log {
		if c.Version <= base {
			continue
		}
		for _, p := range c.Paths {
			paths[p] = true
		}
	}
	return paths, true
}

// ConflictError is returned by Commit and Create when the stored version
// differs from the one the caller based its change on.
type ConflictError struct {
	BaseVersion int64
	Current     Snapshot
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: based on %d, current is %d", e.BaseVersion, e.Current.Version)
}

func (e *ConflictError) Is(target error) bool {
	return target == shared.ErrVersionConflict
}

func trimLog(log []Commit) []Commit {
	if len(log) <= MaxLogEntries {
		return log
	}
	return append([]Commit(nil), log[len(log)-MaxLogEntries:]...)
}
