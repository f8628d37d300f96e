package planstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"plan-engine/internal/plan"
	"plan-engine/internal/shared"
)

type memoryEntry struct {
	plan plan.Plan
	log  []Commit
}

// MemoryStore keeps plans in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	plans map[string]*memoryEntry
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans: make(map[string]*memoryEntry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) snapshot(e *memoryEntry) Snapshot {
	log := make([]Commit, len(e.log))
	for i, c := range e.log {
		c.Paths = slices.Clone(c.Paths)
		log[i] = c
	}
	return Snapshot{Plan: e.plan.Clone(), Version: e.plan.Version, Log: log}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.plans[userID]
	if !ok {
		return Snapshot{}, shared.ErrNotFound
	}
	return s.snapshot(e), nil
}

func (s *MemoryStore) Create(ctx context.Context, p plan.Plan) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.plans[p.UserID]; ok {
		return 0, &ConflictError{BaseVersion: 0, Current: s.snapshot(e)}
	}
	now := s.now()
	p = p.Clone()
	p.Version = 1
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.LastModified = now
	s.plans[p.UserID] = &memoryEntry{
		plan: p,
		log:  []Commit{{Version: 1, At: now}},
	}
	return 1, nil
}

func (s *MemoryStore) Commit(ctx context.Context, userID string, baseVersion int64, d plan.Delta) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.plans[userID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	if e.plan.Version != baseVersion {
		return 0, &ConflictError{BaseVersion: baseVersion, Current: s.snapshot(e)}
	}

	next, err := plan.Apply(e.plan, d)
	if err != nil {
		return 0, err
	}
	now := s.now()
	next.Version = baseVersion + 1
	next.LastModified = now

	e.plan = next
	e.log = trimLog(append(e.log, Commit{Version: next.Version, Paths: d.Paths(), At: now}))
	return next.Version, nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[userID]; !ok {
		return shared.ErrNotFound
	}
	delete(s.plans, userID)
	return nil
}
