// Package app wires the plan engine together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"

	"plan-engine/internal/advisor"
	"plan-engine/internal/api"
	"plan-engine/internal/config"
	"plan-engine/internal/coordinator"
	"plan-engine/internal/database"
	"plan-engine/internal/llm"
	"plan-engine/internal/metrics"
	"plan-engine/internal/planstore"
	"plan-engine/internal/profile"
	"plan-engine/internal/proposal"
	"plan-engine/internal/publisher"
	"plan-engine/internal/tracking"
	"plan-engine/internal/validator"
)

// Temperatures of the agent calls. Proposals must stay close to the
// instruction; drafts and analyses may vary more.
const (
	proposalTemperature = 0.2
	advisorTemperature  = 0.6
)

// Options tune what New wires.
type Options struct {
	// Offline skips the agents and remote sync. The maintenance commands
	// use it so they run without network access.
	Offline bool
}

// App holds the application's dependencies.
type App struct {
	cfg *config.Config
	db  *database.DB

	plans       *planstore.SQLStore
	requests    *coordinator.SQLRequestLog
	metrics     *metrics.Store
	coordinator *coordinator.Coordinator
	profiles    *profile.Service
	tracking    *tracking.Service
	advisor     *advisor.Advisor
	publisher   *publisher.Publisher
	cache       *llm.CachedTextGenerator
	verifier    api.TokenVerifier

	closers []func() error
}

// New opens the database and builds the engine described by cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &App{
		cfg:      cfg,
		db:       db,
		plans:    planstore.NewSQLStore(db.SQL),
		requests: coordinator.NewSQLRequestLog(db.SQL),
		metrics:  metrics.NewStore(db.SQL),
		profiles: profile.NewService(profile.NewSQLRepository(db.SQL)),
	}
	a.tracking = tracking.NewService(tracking.NewSQLRepository(db.SQL), a.profiles)
	a.closers = append(a.closers, db.Close)

	deps := coordinator.Deps{
		Store:         a.plans,
		Validator:     validator.New(cfg.Engine.DailyCalorieCeiling),
		Requests:      a.requests,
		LockTimeout:   cfg.Engine.LockTimeout,
		CommitTimeout: cfg.Engine.CommitTimeout,
	}

	if !opts.Offline {
		if err := a.wireAgents(ctx, &deps); err != nil {
			a.Close(ctx)
			return nil, err
		}
		if err := a.wireSync(ctx, &deps); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	a.coordinator = coordinator.New(deps)
	return a, nil
}

func (a *App) wireAgents(ctx context.Context, deps *coordinator.Deps) error {
	proposalGen, closer, err := llm.NewFromConfig(ctx, a.cfg, proposalTemperature)
	if err != nil {
		return fmt.Errorf("failed to initialize %s client: %w", a.cfg.LLMProvider, err)
	}
	if closer != nil {
		a.closers = append(a.closers, closer.Close)
	}

	advisorGen, closer, err := llm.NewFromConfig(ctx, a.cfg, advisorTemperature)
	if err != nil {
		return fmt.Errorf("failed to initialize %s client: %w", a.cfg.LLMProvider, err)
	}
	if closer != nil {
		a.closers = append(a.closers, closer.Close)
	}

	a.cache, err = llm.NewCachedTextGenerator(advisorGen, a.cfg.LLMCachePath)
	if err != nil {
		return fmt.Errorf("failed to initialize response cache: %w", err)
	}

	deps.Proposer = proposal.NewAdapter(proposalGen, proposal.Options{
		Timeout:      a.cfg.Engine.ProposalTimeout,
		BaseDelay:    a.cfg.Engine.RetryBaseDelay,
		DailyCeiling: deps.Validator.DailyCeiling(),
		Metrics:      a.metrics,
	})
	a.advisor = advisor.New(advisorGen, a.cache, a.profiles, a.metrics, deps.Validator.DailyCeiling()).
		WithTimeout(a.cfg.Engine.ProposalTimeout)
	deps.Generator = a.advisor

	slog.Info("app: agents ready", "provider", a.cfg.LLMProvider)
	return nil
}

func (a *App) wireSync(ctx context.Context, deps *coordinator.Deps) error {
	var sink publisher.Sink = publisher.LogSink{}

	if a.cfg.FirebaseProjectID != "" {
		fb, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: a.cfg.FirebaseProjectID})
		if err != nil {
			return fmt.Errorf("failed to initialize firebase: %w", err)
		}
		var fs *firestore.Client
		if fs, err = fb.Firestore(ctx); err != nil {
			return fmt.Errorf("failed to initialize firestore: %w", err)
		}
		a.closers = append(a.closers, fs.Close)
		sink = publisher.NewFirestoreSink(fs)

		if a.cfg.AuthFirebase {
			client, err := fb.Auth(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize firebase auth: %w", err)
			}
			a.verifier = api.NewFirebaseVerifier(client)
		}
	}
	if a.verifier == nil && a.cfg.AuthJWTSecret != "" {
		a.verifier = api.NewJWTVerifier(a.cfg.AuthJWTSecret)
	}
	if a.verifier == nil {
		slog.Warn("app: authentication disabled")
	}

	a.publisher = publisher.New(sink, publisher.Options{
		Workers:  a.cfg.Engine.PublishWorkers,
		MaxTries: a.cfg.Engine.PublishMaxTries,
	})
	deps.Publisher = a.publisher
	return nil
}

// Handler returns the HTTP API. It needs an App built without Offline.
func (a *App) Handler() http.Handler {
	return api.NewServer(api.Deps{
		Plans:        a.coordinator,
		Profiles:     a.profiles,
		Tracking:     a.tracking,
		Advisor:      a.advisor,
		Verifier:     a.verifier,
		DatabasePath: a.cfg.DatabasePath,
	})
}

// Close drains pending syncs, saves the response cache and releases
// clients and the database, in that order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain publisher: %w", err))
		}
	}
	if a.cache != nil {
		stats := a.cache.Stats()
		slog.Info("app: response cache", "hits", stats.Hits, "misses", stats.Misses, "size", stats.Size)
		if err := a.cache.SaveCache(); err != nil {
			errs = append(errs, fmt.Errorf("failed to save response cache: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
