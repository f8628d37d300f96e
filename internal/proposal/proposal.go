// Package proposal turns agent calls into bounded plan deltas.
//
// Agents are untrusted: every response is parsed strictly into a delta
// against the snapshot it was asked about, and anything that does not parse
// is rejected as a whole. A call that times out or comes back malformed is
// retried once; after that the adapter gives up.
package proposal

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/cenkalti/backoff/v5"

	"plan-engine/internal/llm"
	"plan-engine/internal/metrics"
	"plan-engine/internal/plan"
	"plan-engine/internal/shared"
)

//go:embed proposal_prompt.md
var proposalPrompt string

var promptTemplate = template.Must(template.New("proposal").Parse(proposalPrompt))

// MaxAttempts is the number of calls made for one proposal.
const MaxAttempts = 2

// Defaults for a zero Options.
const (
	DefaultTimeout   = 60 * time.Second
	DefaultBaseDelay = 500 * time.Millisecond
)

var roles = map[shared.AgentKind]string{
	shared.AgentNutrition: "nutrition coach",
	shared.AgentFitness:   "fitness coach",
	shared.AgentChat:      "assistant",
}

// Recorder stores the metadata of agent calls.
type Recorder interface {
	RecordMeta(ctx context.Context, meta shared.AgentMeta, outcome string) error
}

// Options configures an Adapter.
type Options struct {
	// Timeout bounds every single call to an agent.
	Timeout time.Duration
	// BaseDelay is doubled to get the wait before the retry.
	BaseDelay    time.Duration
	DailyCeiling float64
	Metrics      Recorder
}

// Adapter calls agents and returns their proposals as deltas.
type Adapter struct {
	generators map[shared.AgentKind]llm.TextGenerator
	fallback   llm.TextGenerator
	opts       Options
}

// NewAdapter creates an Adapter that sends every agent kind to gen.
// Use WithAgent to route a kind to a dedicated generator.
func NewAdapter(gen llm.TextGenerator, opts Options) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	return &Adapter{
		generators: make(map[shared.AgentKind]llm.TextGenerator),
		fallback:   gen,
		opts:       opts,
	}
}

// WithAgent routes proposals of kind to gen.
func (a *Adapter) WithAgent(kind shared.AgentKind, gen llm.TextGenerator) *Adapter {
	a.generators[kind] = gen
	return a
}

func (a *Adapter) generator(kind shared.AgentKind) llm.TextGenerator {
	if g, ok := a.generators[kind]; ok {
		return g
	}
	return a.fallback
}

// Request is what an agent is asked about.
type Request struct {
	Agent       shared.AgentKind
	Snapshot    plan.Plan
	Instruction string
	Feedback    string
}

// Result is a parsed proposal. The delta is not validated against the
// plan invariants yet.
type Result struct {
	Delta    plan.Delta
	Meta     shared.AgentMeta
	Attempts int
}

type promptData struct {
	Role         string
	Instruction  string
	Feedback     string
	Version      int64
	PlanJSON     string
	DailyCeiling float64
	MaxChanges   int
}

// Propose asks the agent of req.Agent for a delta. It fails with
// shared.ErrAIUnavailable when the agent could not be reached, and with a
// malformed_ai_output *shared.ValidationError when its last answer did not
// parse. Cancelling ctx aborts the call and any pending retry.
func (a *Adapter) Propose(ctx context.Context, req Request) (Result, error) {
	prompt, err := a.buildPrompt(req)
	if err != nil {
		return Result{}, err
	}
	gen := a.generator(req.Agent)

	attempts := 0
	op := func() (Result, error) {
		attempts++
		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()

		resp, err := gen.GenerateContent(callCtx, prompt)
		meta := shared.AgentMeta{AgentName: string(req.Agent), Usage: resp.Usage, Latency: time.Since(start)}
		if err != nil {
			a.record(ctx, meta, metrics.OutcomeFailed)
			if ctx.Err() != nil {
				return Result{}, backoff.Permanent(ctx.Err())
			}
			if errors.Is(err, llm.ErrNoProvider) {
				return Result{}, backoff.Permanent(fmt.Errorf("%w: %w", shared.ErrAIUnavailable, err))
			}
			return Result{}, fmt.Errorf("%w: %w", shared.ErrAIUnavailable, err)
		}

		d, err := Parse(resp.Content, req.Snapshot)
		if err != nil {
			a.record(ctx, meta, metrics.OutcomeMalformed)
			return Result{}, err
		}
		a.record(ctx, meta, metrics.OutcomeOK)
		return Result{Delta: d, Meta: meta}, nil
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(a.retryPolicy()),
		backoff.WithMaxTries(MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.WarnContext(ctx, "proposal: agent call failed, retrying", "agent", req.Agent, "wait", wait, "error", err)
		}),
	)
	res.Attempts = attempts
	return res, err
}

// The single retry waits exactly twice the base delay.
func (a *Adapter) retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * a.opts.BaseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 4 * a.opts.BaseDelay
	return b
}

func (a *Adapter) record(ctx context.Context, meta shared.AgentMeta, outcome string) {
	if a.opts.Metrics == nil {
		return
	}
	if err := a.opts.Metrics.RecordMeta(ctx, meta, outcome); err != nil {
		slog.WarnContext(ctx, "proposal: failed to record metrics", "agent", meta.AgentName, "error", err)
	}
}

func (a *Adapter) buildPrompt(req Request) (string, error) {
	role, ok := roles[req.Agent]
	if !ok {
		return "", fmt.Errorf("unknown agent kind %q", req.Agent)
	}
	planJSON, err := json.MarshalIndent(req.Snapshot.Weeks, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode plan snapshot: %w", err)
	}

	var buf bytes.Buffer
	err = promptTemplate.Execute(&buf, promptData{
		Role:         role,
		Instruction:  req.Instruction,
		Feedback:     req.Feedback,
		Version:      req.Snapshot.Version,
		PlanJSON:     string(planJSON),
		DailyCeiling: a.opts.DailyCeiling,
		MaxChanges:   MaxChanges,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render proposal prompt: %w", err)
	}
	return buf.String(), nil
}
