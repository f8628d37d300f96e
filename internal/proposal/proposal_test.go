package proposal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"plan-engine/internal/config"
	"plan-engine/internal/llm"
	"plan-engine/internal/metrics"
	"plan-engine/internal/plan"
	"plan-engine/internal/shared"
)

// scriptedGenerator answers with the next scripted reply. An empty reply
// blocks until the call context expires.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	calls   int
	prompts []string
}

func (g *scriptedGenerator) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	g.mu.Lock()
	g.calls++
	g.prompts = append(g.prompts, prompt)
	reply := ""
	if len(g.replies) > 0 {
		reply, g.replies = g.replies[0], g.replies[1:]
	}
	g.mu.Unlock()

	if reply == "" {
		<-ctx.Done()
		return llm.ContentResponse{}, ctx.Err()
	}
	return llm.ContentResponse{Content: reply, Usage: shared.TokenUsage{PromptTokens: 10, CompletionTokens: 2}}, nil
}

// deadlineGenerator fails when the call context is already done.
type deadlineGenerator struct {
	reply string
}

func (g deadlineGenerator) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return llm.ContentResponse{}, err
	}
	return llm.ContentResponse{Content: g.reply}, nil
}

type mockRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *mockRecorder) RecordMeta(ctx context.Context, meta shared.AgentMeta, outcome string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

const skipWednesday = `{"changes":[{"week":"Week 1","day":"Wed","target":"workout","field":"skipped","value":true}]}`

func snapshot() plan.Plan {
	p := plan.Default("u1", plan.Options{Weeks: 2}, time.Now())
	p.Version = 3
	return p
}

func newTestAdapter(gen llm.TextGenerator, rec Recorder) *Adapter {
	return NewAdapter(gen, Options{Timeout: 30 * time.Millisecond, BaseDelay: time.Millisecond, DailyCeiling: 3500, Metrics: rec})
}

func TestPropose(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		gen := &scriptedGenerator{replies: []string{"Here you go:\n```json\n" + skipWednesday + "\n```"}}
		rec := &mockRecorder{}
		res, err := newTestAdapter(gen, rec).Propose(ctx, Request{Agent: shared.AgentFitness, Snapshot: snapshot(), Instruction: "I am sore"})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(res.Delta.Changes) != 1 || res.Delta.Changes[0].Value != "true" {
			t.Errorf("Unexpected delta: %+v", res.Delta)
		}
		if res.Attempts != 1 || res.Meta.AgentName != "fitness" {
			t.Errorf("Unexpected result metadata: %+v", res)
		}
		if len(rec.outcomes) != 1 || rec.outcomes[0] != metrics.OutcomeOK {
			t.Errorf("Expected one ok metric, got %v", rec.outcomes)
		}
		if !strings.Contains(gen.prompts[0], "fitness coach") || !strings.Contains(gen.prompts[0], "I am sore") {
			t.Error("Expected prompt to carry the role and the instruction")
		}
	})

	t.Run("TimesOutTwice", func(t *testing.T) {
		gen := &scriptedGenerator{}
		rec := &mockRecorder{}
		res, err := newTestAdapter(gen, rec).Propose(ctx, Request{Agent: shared.AgentChat, Snapshot: snapshot(), Instruction: "x"})
		if !errors.Is(err, shared.ErrAIUnavailable) {
			t.Fatalf("Expected ErrAIUnavailable, got %v", err)
		}
		if gen.calls != 2 || res.Attempts != 2 {
			t.Errorf("Expected exactly 2 calls, got %d", gen.calls)
		}
		if len(rec.outcomes) != 2 || rec.outcomes[1] != metrics.OutcomeFailed {
			t.Errorf("Expected two failed metrics, got %v", rec.outcomes)
		}
	})

	t.Run("TimeoutThenSuccess", func(t *testing.T) {
		gen := &scriptedGenerator{replies: []string{"", skipWednesday}}
		res, err := newTestAdapter(gen, nil).Propose(ctx, Request{Agent: shared.AgentChat, Snapshot: snapshot(), Instruction: "x"})
		if err != nil {
			t.Fatalf("Expected retry to succeed, got %v", err)
		}
		if res.Attempts != 2 {
			t.Errorf("Expected 2 attempts, got %d", res.Attempts)
		}
	})

	t.Run("MalformedTwice", func(t *testing.T) {
		gen := &scriptedGenerator{replies: []string{"not json", `{"plan": {}}`}}
		_, err := newTestAdapter(gen, nil).Propose(ctx, Request{Agent: shared.AgentNutrition, Snapshot: snapshot(), Instruction: "x"})
		if !errors.Is(err, shared.ErrMalformedAIOutput) || !errors.Is(err, shared.ErrValidation) {
			t.Fatalf("Expected malformed output rejection, got %v", err)
		}
		if gen.calls != 2 {
			t.Errorf("Expected 2 calls, got %d", gen.calls)
		}
	})

	t.Run("UnreadableValueIsRetried", func(t *testing.T) {
		badIntensity := `{"changes":[{"week":"Week 1","day":"Mon","target":"workout","field":"intensity","value":"extreme"}]}`
		gen := &scriptedGenerator{replies: []string{badIntensity, skipWednesday}}
		rec := &mockRecorder{}
		res, err := newTestAdapter(gen, rec).Propose(ctx, Request{Agent: shared.AgentFitness, Snapshot: snapshot(), Instruction: "x"})
		if err != nil {
			t.Fatalf("Expected the retry to succeed, got %v", err)
		}
		if res.Attempts != 2 || len(res.Delta.Changes) != 1 {
			t.Errorf("Expected 2 attempts and one change, got %d attempts, %+v", res.Attempts, res.Delta)
		}
		if len(rec.outcomes) != 2 || rec.outcomes[0] != metrics.OutcomeMalformed {
			t.Errorf("Expected the first answer to be recorded as malformed, got %v", rec.outcomes)
		}
	})

	t.Run("DisabledProviderDoesNotRetry", func(t *testing.T) {
		gen, _, _ := llm.NewFromConfig(ctx, configNone(), 0)
		_, err := newTestAdapter(gen, nil).Propose(ctx, Request{Agent: shared.AgentChat, Snapshot: snapshot(), Instruction: "x"})
		if !errors.Is(err, shared.ErrAIUnavailable) {
			t.Fatalf("Expected ErrAIUnavailable, got %v", err)
		}
	})

	t.Run("CancelledCaller", func(t *testing.T) {
		gen := &scriptedGenerator{}
		cctx, cancel := context.WithCancel(ctx)
		a := NewAdapter(gen, Options{Timeout: time.Minute, BaseDelay: time.Millisecond})
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		_, err := a.Propose(cctx, Request{Agent: shared.AgentChat, Snapshot: snapshot(), Instruction: "x"})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled, got %v", err)
		}
		if gen.calls != 1 {
			t.Errorf("Expected no retry after cancellation, got %d calls", gen.calls)
		}
	})

	t.Run("ZeroOptionsUseDefaults", func(t *testing.T) {
		a := NewAdapter(&scriptedGenerator{}, Options{})
		if a.opts.Timeout != DefaultTimeout {
			t.Errorf("Expected timeout %v, got %v", DefaultTimeout, a.opts.Timeout)
		}
		if a.opts.BaseDelay != DefaultBaseDelay {
			t.Errorf("Expected base delay %v, got %v", DefaultBaseDelay, a.opts.BaseDelay)
		}

		res, err := NewAdapter(deadlineGenerator{reply: skipWednesday}, Options{}).Propose(ctx, Request{Agent: shared.AgentChat, Snapshot: snapshot(), Instruction: "x"})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if res.Attempts != 1 {
			t.Errorf("Expected 1 attempt, got %d", res.Attempts)
		}
	})

	t.Run("DedicatedAgent", func(t *testing.T) {
		fallback := &scriptedGenerator{}
		fitness := &scriptedGenerator{replies: []string{skipWednesday}}
		a := newTestAdapter(fallback, nil).WithAgent(shared.AgentFitness, fitness)
		if _, err := a.Propose(ctx, Request{Agent: shared.AgentFitness, Snapshot: snapshot(), Instruction: "x"}); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if fallback.calls != 0 || fitness.calls != 1 {
			t.Errorf("Expected the fitness generator to be used, got fallback=%d fitness=%d", fallback.calls, fitness.calls)
		}
	})
}

func TestParse(t *testing.T) {
	snap := snapshot()

	t.Run("Accepted", func(t *testing.T) {
		d, err := Parse(`{"changes":[
			{"week":"week 2","day":"Monday","target":"lunch","field":"calories","value":450},
			{"week":"Week 2","day":0,"target":"lunch","field":"description","value":"Lentil soup"}
		]}`, snap)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if d.Changes[0].Week != "Week 2" || d.Changes[0].Value != "450" {
			t.Errorf("Unexpected first change: %+v", d.Changes[0])
		}
	})

	rejected := []struct {
		name    string
		content string
	}{
		{"NotJSON", "sorry, I cannot help"},
		{"ExtraTopLevelKey", `{"changes":[],"note":"hi"}`},
		{"ExtraChangeKey", `{"changes":[{"week":"Week 1","day":"Mon","target":"lunch","field":"calories","value":1,"why":"x"}]}`},
		{"MissingChanges", `{}`},
		{"MissingDay", `{"changes":[{"week":"Week 1","target":"lunch","field":"calories","value":1}]}`},
		{"UnknownWeek", `{"changes":[{"week":"Week 9","day":"Mon","target":"lunch","field":"calories","value":1}]}`},
		{"FieldOnWrongTarget", `{"changes":[{"week":"Week 1","day":"Mon","target":"workout","field":"calories","value":1}]}`},
		{"ObjectValue", `{"changes":[{"week":"Week 1","day":"Mon","target":"lunch","field":"calories","value":{"kcal":1}}]}`},
		{"UnknownIntensity", `{"changes":[{"week":"Week 1","day":"Mon","target":"workout","field":"intensity","value":"extreme"}]}`},
		{"UnreadableRest", `{"changes":[{"week":"Week 1","day":"Mon","target":"workout","field":"rest","value":"maybe"}]}`},
		{"NullValue", `{"changes":[{"week":"Week 1","day":"Mon","target":"lunch","field":"calories","value":null}]}`},
		{"Duplicate", `{"changes":[
			{"week":"Week 1","day":"Mon","target":"lunch","field":"calories","value":1},
			{"week":"week 1","day":"Mon","target":"lunch","field":"calories","value":2}]}`},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.content, snap)
			if !errors.Is(err, shared.ErrMalformedAIOutput) {
				t.Errorf("Expected malformed output, got %v", err)
			}
		})
	}
}

func configNone() *config.Config {
	return &config.Config{LLMProvider: config.ProviderNone}
}
