// Package app wires the application together: configuration, database
// pool, Genkit, the knowledge and history stores, the response cache, the
// completion client, and the engine that coordinates them.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragline/ragline/internal/cache"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/engine"
	"github.com/ragline/ragline/internal/history"
	"github.com/ragline/ragline/internal/knowledge"
	"github.com/ragline/ragline/internal/llm"
	"github.com/ragline/ragline/internal/log"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Knowledge *knowledge.Store
	History   *history.Store
	Cache     *cache.Cache
	LLM       *llm.Client
	Engine    *engine.Engine

	otelCleanup func()
	dbCleanup   func()
}

// Close releases resources in reverse initialization order.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
