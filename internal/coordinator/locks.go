package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"plan-engine/internal/shared"
)

// userLocks hands out one mutual exclusion section per user. Entries are
// dropped once nobody holds or waits for them.
type userLocks struct {
	mu    sync.Mutex
	users map[string]*userLock
}

type userLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{users: make(map[string]*userLock)}
}

// acquire waits at most timeout for the user's section.
func (l *userLocks) acquire(ctx context.Context, userID string, timeout time.Duration) (release func(), err error) {
	l.mu.Lock()
	ul, ok := l.users[userID]
	if !ok {
		ul = &userLock{sem: semaphore.NewWeighted(1)}
		l.users[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ul.sem.Acquire(actx, 1); err != nil {
		l.unref(userID, ul)
		return nil, err
	}
	return func() {
		ul.sem.Release(1)
		l.unref(userID, ul)
	}, nil
}

func (l *userLocks) unref(userID string, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul.refs--
	if ul.refs == 0 && l.users[userID] == ul {
		delete(l.users, userID)
	}
}

// pendingProposal is a request waiting for an agent.
type pendingProposal struct {
	requestID  string
	cancel     context.CancelCauseFunc
	superseded atomic.Bool
}

// proposals tracks the request of each user that is awaiting an agent.
type proposals struct {
	mu    sync.Mutex
	users map[string]*pendingProposal
}

func newProposals() *proposals {
	return &proposals{users: make(map[string]*pendingProposal)}
}

// register makes requestID the user's pending proposal and supersedes the
// previous one. The returned context is cancelled when a newer request arrives.
func (p *proposals) register(ctx context.Context, userID, requestID string) (context.Context, *pendingProposal) {
	pctx, cancel := context.WithCancelCause(ctx)
	pending := &pendingProposal{requestID: requestID, cancel: cancel}

	p.mu.Lock()
	old := p.users[userID]
	p.users[userID] = pending
	p.mu.Unlock()

	if old != nil {
		old.supersede()
	}
	return pctx, pending
}

// supersede marks the user's pending proposal, if any, as superseded.
func (p *proposals) supersede(userID string) {
	p.mu.Lock()
	old := p.users[userID]
	delete(p.users, userID)
	p.mu.Unlock()

	if old != nil {
		old.supersede()
	}
}

// finish removes pending and reports whether it was superseded meanwhile.
func (p *proposals) finish(userID string, pending *pendingProposal) bool {
	p.mu.Lock()
	if p.users[userID] == pending {
		delete(p.users, userID)
	}
	p.mu.Unlock()

	pending.cancel(nil)
	return pending.superseded.Load()
}

func (pp *pendingProposal) supersede() {
	pp.superseded.Store(true)
	pp.cancel(shared.ErrSuperseded)
}
