package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lexhaven/docintel/internal/actions"
	"github.com/lexhaven/docintel/internal/pipeline"
	"github.com/lexhaven/docintel/internal/queue"
	"github.com/lexhaven/docintel/internal/resilience"
	"github.com/lexhaven/docintel/internal/store"
	"github.com/lexhaven/docintel/internal/taxonomy"
	"github.com/lexhaven/docintel/pkg/llm"
)

// env holds the initialized subsystems the serve/worker/process commands
// share. Callers should defer env.Close().
type env struct {
	Store        *store.PostgresStore
	Queue        *queue.PostgresQueue
	Orchestrator *pipeline.Orchestrator
	Executor     *actions.Executor
}

func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv sets up the store, the resilient inference client, and the
// pipeline subsystems.
func initEnv(ctx context.Context) (*env, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("store.database_url is required (DOCINTEL_STORE_DATABASE_URL)")
	}

	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	provider, err := initProvider()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	llmCfg := llm.Config{
		CallTimeout: cfg.LLM.CallTimeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		RetryDelay:  cfg.LLM.RetryDelay,
		RPS:         cfg.LLM.RequestsPerSec,
	}
	if cfg.LLM.CircuitBreaker {
		// Permanent API and config errors must not trip the circuit.
		llmCfg.Breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			ShouldTrip: resilience.IsTransient,
		})
		zap.L().Info("llm circuit breaker enabled")
	}
	client := llm.New(provider, llm.NewPool(int64(cfg.LLM.MaxConcurrent)), llmCfg)

	resolver := taxonomy.NewResolver(st)
	orch := pipeline.New(cfg.Pipeline, st, client, resolver, nil, pipeline.ZapNotifier{})

	return &env{
		Store:        st,
		Queue:        queue.NewPostgres(st.DB()),
		Orchestrator: orch,
		Executor:     actions.NewExecutor(st),
	}, nil
}

func initProvider() (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "", "anthropic":
		return llm.NewAnthropicProvider(cfg.LLM.Key), nil
	case "openai":
		var opts []llm.OpenAIOption
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, llm.WithBaseURL(cfg.LLM.BaseURL))
		}
		return llm.NewOpenAIProvider(cfg.LLM.Key, opts...), nil
	default:
		return nil, eris.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}
