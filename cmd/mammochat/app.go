package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leofalp/mammochat/core/client"
	"github.com/leofalp/mammochat/core/client/middleware"
	"github.com/leofalp/mammochat/core/conversation"
	"github.com/leofalp/mammochat/core/health"
	"github.com/leofalp/mammochat/internal/config"
	"github.com/leofalp/mammochat/internal/store"
	"github.com/leofalp/mammochat/patterns/agent"
	"github.com/leofalp/mammochat/providers/ai"
	"github.com/leofalp/mammochat/providers/ai/anthropic"
	"github.com/leofalp/mammochat/providers/ai/openai"
	"github.com/leofalp/mammochat/providers/memory"
	"github.com/leofalp/mammochat/providers/memory/heysol"
	"github.com/leofalp/mammochat/providers/memory/inmemory"
	"github.com/leofalp/mammochat/providers/memory/pgmemory"
	"github.com/leofalp/mammochat/providers/observability"
	"github.com/leofalp/mammochat/providers/observability/slogobs"
)

// app holds every long-lived component built from the configuration.
type app struct {
	cfg      *config.Config
	observer *slogobs.Observer
	client   *client.Client
	memory   memory.Provider
	engine   *conversation.Engine
	health   *health.Service
	store    *store.Store

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.observer = slogobs.New(
		slogobs.WithFormat(slogobs.ParseFormat(cfg.Log.Format)),
		slogobs.WithLevel(slogobs.ParseLogLevel(cfg.Log.Level)),
	)

	a.client, err = client.New(newModelProvider(cfg.Model),
		client.WithDefaultModel(cfg.Model.ModelName()),
		client.WithGenerationConfig(ai.GenerationConfig{
			MaxTokens:   cfg.Model.MaxTokens,
			Temperature: cfg.Model.Temperature,
		}),
		client.WithObserver(a.observer),
		client.WithMiddleware(
			middleware.NewTimeoutMiddleware(cfg.Model.Timeout.Duration),
			middleware.NewRetryMiddleware(middleware.RetryConfig{MaxRetries: cfg.Model.MaxRetries}),
			middleware.NewLoggingMiddleware(a.observer.Logger(), middleware.LogLevelMinimal),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("model client: %w", err)
	}

	if a.memory, err = a.openMemory(ctx); err != nil {
		return nil, err
	}

	agentOpts := []agent.Option{
		agent.WithMaxToolRounds(cfg.Agent.MaxToolRounds),
		agent.WithMaxParallelTools(cfg.Agent.MaxParallelTools),
		agent.WithMemorySearchLimit(cfg.Agent.MemorySearchLimit),
		agent.WithMemoryFailurePolicy(memoryPolicy(cfg.Memory.FailurePolicy)),
		agent.WithObserver(a.observer),
	}
	if cfg.Agent.PromptFile != "" {
		prompt, err := config.OpenPromptFile(cfg.Agent.PromptFile, config.WithPromptObserver(a.observer))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, prompt.Close)
		agentOpts = append(agentOpts, agent.WithTemplateSource(prompt))
	}

	ag := agent.New(a.client, a.memory, agentOpts...)
	a.observer.Info(ctx, "agent ready",
		observability.String("model.provider", cfg.Model.Provider),
		observability.String("memory.backend", cfg.Memory.Backend),
		observability.String("memory.failure_policy", ag.MemoryPolicy().String()),
	)
	a.engine = conversation.NewEngine(
		ag,
		conversation.WithHistoryWindow(cfg.Agent.HistoryWindow),
		conversation.WithObserver(a.observer),
	)

	a.health = health.NewService([]health.Checker{
		health.ModelCheck(cfg.Model.Provider, a.client),
		health.MemoryCheck(cfg.Memory.Backend, a.memory),
	}, health.WithObserver(a.observer))

	if a.store, err = store.Open(ctx, cfg.Store.Path); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)
	return a, nil
}

func newModelProvider(cfg config.ModelConfig) ai.Provider {
	if cfg.Provider == config.ProviderAnthropic {
		opts := []anthropic.Option{anthropic.WithDefaultModel(cfg.ModelName())}
		if cfg.MaxTokens > 0 {
			opts = append(opts, anthropic.WithMaxTokens(int64(cfg.MaxTokens)))
		}
		return anthropic.New(anthropic.Credentials{APIKey: cfg.APIKey, BaseURL: cfg.Endpoint()}, opts...)
	}
	// DeepSeek speaks the OpenAI chat completions protocol.
	return openai.New(
		openai.Credentials{APIKey: cfg.APIKey, BaseURL: cfg.Endpoint()},
		openai.WithDefaultModel(cfg.ModelName()),
	)
}

func (a *app) openMemory(ctx context.Context) (memory.Provider, error) {
	cfg := a.cfg.Memory
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("memory database: %w", err)
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		pg := pgmemory.New(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	case config.BackendInMemory:
		return inmemory.New(), nil
	default:
		return heysol.New(
			heysol.Credentials{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL},
			heysol.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		), nil
	}
}

func memoryPolicy(name string) agent.MemoryFailurePolicy {
	if name == config.PolicyFail {
		return agent.FailOnMemoryFailure
	}
	return agent.DegradeOnMemoryFailure
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
