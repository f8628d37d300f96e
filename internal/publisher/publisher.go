// Package publisher pushes committed plans to the sync layer that other
// devices read from.
//
// Publishing never blocks a commit. Pushes for one user are coalesced so
// only the newest version is sent, run on a bounded worker pool and are
// retried with backoff. A failed push is logged and dropped; the plan store
// stays authoritative.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/wandb/parallel"

	"plan-engine/internal/plan"
)

// ErrClosed is logged for plans published after Close.
var ErrClosed = errors.New("publisher closed")

// Sink is the sync layer.
type Sink interface {
	Push(ctx context.Context, userID string, p plan.Plan, version int64) error
	Remove(ctx context.Context, userID string) error
}

// Options configures a Publisher.
type Options struct {
	Workers   int
	MaxTries  int
	BaseDelay time.Duration
	// PushTimeout bounds a single push attempt.
	PushTimeout time.Duration
}

// Stats counts what happened to published plans.
type Stats struct {
	Pushed    int64 `json:"pushed"`
	Removed   int64 `json:"removed"`
	Failed    int64 `json:"failed"`
	Coalesced int64 `json:"coalesced"`
}

type job struct {
	userID  string
	plan    plan.Plan
	version int64
	retract bool
}

// Publisher delivers plans to a Sink in the background.
type Publisher struct {
	sink Sink
	opts Options

	mu       sync.Mutex
	pending  map[string]job
	inflight map[string]bool
	closed   bool

	signal  chan struct{}
	stop    chan struct{}
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	workers parallel.Executor

	pushed, removed, failed, coalesced atomic.Int64
}

// New starts a Publisher. Call Close to drain it.
func New(sink Sink, opts Options) *Publisher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxTries < 1 {
		opts.MaxTries = 1
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		sink:     sink,
		opts:     opts,
		pending:  make(map[string]job),
		inflight: make(map[string]bool),
		signal:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		workers:  parallel.Limited(ctx, opts.Workers),
	}
	go p.run()
	return p
}

// Publish schedules version of userID's plan for delivery.
func (p *Publisher) Publish(userID string, pl plan.Plan, version int64) {
	p.enqueue(job{userID: userID, plan: pl.Clone(), version: version})
}

// Retract schedules removal of userID's plan from the sync layer.
func (p *Publisher) Retract(userID string) {
	p.enqueue(job{userID: userID, retract: true})
}

func (p *Publisher) enqueue(j job) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		slog.Warn("publisher: dropping plan", "user_id", j.userID, "version", j.version, "error", ErrClosed)
		return
	}
	if prev, ok := p.pending[j.userID]; ok {
		if !j.retract && !prev.retract && prev.version > j.version {
			p.mu.Unlock()
			p.coalesced.Add(1)
			return
		}
		p.coalesced.Add(1)
	}
	p.pending[j.userID] = j
	p.mu.Unlock()
	p.kick()
}

func (p *Publisher) kick() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for {
		select {
		case <-p.signal:
			p.dispatch()
		case <-p.stop:
			p.drain()
			return
		}
	}
}

// drain dispatches until nothing is pending or in flight, or Close gave up.
func (p *Publisher) drain() {
	for {
		p.dispatch()
		p.mu.Lock()
		idle := len(p.pending) == 0 && len(p.inflight) == 0
		p.mu.Unlock()
		if idle {
			p.workers.Wait()
			return
		}
		select {
		case <-p.signal:
		case <-p.ctx.Done():
			return
		}
	}
}

// dispatch hands every pending job whose user has no push in flight to the
// worker pool, keeping pushes for one user in order.
func (p *Publisher) dispatch() {
	p.mu.Lock()
	var ready []job
	for userID, j := range p.pending {
		if p.inflight[userID] {
			continue
		}
		delete(p.pending, userID)
		p.inflight[userID] = true
		ready = append(ready, j)
	}
	p.mu.Unlock()

	for _, j := range ready {
		p.workers.Go(func(ctx context.Context) {
			p.deliver(ctx, j)
			p.mu.Lock()
			delete(p.inflight, j.userID)
			p.mu.Unlock()
			p.kick()
		})
	}
}

func (p *Publisher) deliver(ctx context.Context, j job) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.BaseDelay
	b.MaxInterval = 30 * p.opts.BaseDelay

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		pctx, cancel := context.WithTimeout(ctx, p.opts.PushTimeout)
		defer cancel()
		if j.retract {
			return struct{}{}, p.sink.Remove(pctx, j.userID)
		}
		return struct{}{}, p.sink.Push(pctx, j.userID, j.plan, j.version)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.opts.MaxTries)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Warn("publisher: push failed, retrying", "user_id", j.userID, "version", j.version, "wait", wait, "error", err)
		}),
	)
	switch {
	case err != nil:
		p.failed.Add(1)
		slog.Error("publisher: push failed", "user_id", j.userID, "version", j.version, "retract", j.retract, "error", err)
	case j.retract:
		p.removed.Add(1)
		slog.Debug("publisher: plan removed", "user_id", j.userID)
	default:
		p.pushed.Add(1)
		slog.Debug("publisher: plan pushed", "user_id", j.userID, "version", j.version)
	}
}

// Stats returns delivery counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		Pushed:    p.pushed.Load(),
		Removed:   p.removed.Load(),
		Failed:    p.failed.Load(),
		Coalesced: p.coalesced.Load(),
	}
}

// Close stops accepting plans and waits for pending pushes. When ctx ends
// first, in-flight pushes are cancelled and ctx's error is returned.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	close(p.stop)

	select {
	case <-p.done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
