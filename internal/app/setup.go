package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ragline/ragline/db"
	"github.com/ragline/ragline/internal/cache"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/engine"
	"github.com/ragline/ragline/internal/history"
	"github.com/ragline/ragline/internal/knowledge"
	"github.com/ragline/ragline/internal/llm"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/prompt"
)

// Setup initializes the application. On error everything already
// initialized is released; on success the caller owns Close.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}

	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideTracing(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	a.Knowledge = knowledge.NewStore(pool, embedder, logger)
	a.History = history.NewStore(pool, logger)

	a.Cache = cache.New(cache.Config{
		TTL:      cfg.CacheTTL,
		Capacity: cfg.CacheCapacity,
		Logger:   logger,
	})

	client, err := llm.NewClient(llm.Config{
		Genkit: g,
		Logger: logger,
		Retry: llm.RetryConfig{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
		},
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}
	a.LLM = client

	eng, err := engine.New(engine.Config{
		Retriever: a.Knowledge,
		History:   a.History,
		Cache:     a.Cache,
		Completer: client,
		Logger:    logger,
		Params: prompt.Params{
			Model:       cfg.FullModelName(),
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		},
		Budget: prompt.Budget{
			Total:    cfg.ContextBudget,
			ChunkCap: cfg.ChunkCap,
		},
		TopK:         cfg.TopK,
		HistoryTurns: cfg.HistoryTurns,
	})
	if err != nil {
		return nil, err
	}
	a.Engine = eng

	return a, nil
}

// provideTracing sets up OTLP trace export when an endpoint is
// configured. Failures disable tracing instead of failing startup.
func provideTracing(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	endpoint := cfg.Tracing.Endpoint
	if endpoint == "" {
		return func() {}
	}

	// Genkit's TracerProvider reads these during Init, which runs after
	// this provider. Startup is single-goroutine at this point.
	if cfg.Tracing.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.Tracing.ServiceName)
	}
	if cfg.Tracing.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Tracing.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", cfg.Tracing.ServiceName)

	shutdown := tracing.TracerProvider().Shutdown

	//nolint:contextcheck // shutdown runs during teardown when the parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and opens the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// provideGenkit initializes Genkit with the configured provider plugin.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "gemini"
	}
	if provider != "gemini" {
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}
	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
}
