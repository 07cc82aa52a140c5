// Package engine coordinates one chat turn end to end: retrieval and
// history fetch in parallel, prompt assembly under a budget, cached
// completion, and history persistence. Requests within a session are
// processed one at a time in arrival order; different sessions proceed
// concurrently.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ragline/ragline/internal/cache"
	"github.com/ragline/ragline/internal/history"
	"github.com/ragline/ragline/internal/knowledge"
	"github.com/ragline/ragline/internal/llm"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/prompt"
)

var (
	// ErrEmptySessionID is returned for a request without a session.
	ErrEmptySessionID = errors.New("session id is empty")
	// ErrEmptyMessage is returned for a blank user message.
	ErrEmptyMessage = errors.New("message is empty")
)

// HistoryStore is the slice of the history package the engine needs.
type HistoryStore interface {
	Recent(ctx context.Context, sessionID string, maxTurns int) ([]history.Turn, error)
	AppendExchange(ctx context.Context, sessionID, userText, assistantText string) error
}

// Answer is the result of one processed turn.
type Answer struct {
	Text          string
	Cached        bool
	ChunkIDs      []string
	TurnsIncluded int
	Elapsed       time.Duration
}

// Config assembles an Engine.
type Config struct {
	Retriever knowledge.Retriever
	History   HistoryStore
	Cache     *cache.Cache
	Completer llm.Completer
	Logger    log.Logger

	Params       prompt.Params
	Budget       prompt.Budget
	TopK         int
	HistoryTurns int
}

// Engine is the session coordinator.
type Engine struct {
	retriever knowledge.Retriever
	history   HistoryStore
	cache     *cache.Cache
	completer llm.Completer
	logger    log.Logger

	params       prompt.Params
	budget       prompt.Budget
	topK         int
	historyTurns int

	slots *slotRegistry
}

// New creates an Engine. All dependencies except Logger are required.
func New(cfg Config) (*Engine, error) {
	if cfg.Retriever == nil {
		return nil, errors.New("engine: retriever is required")
	}
	if cfg.History == nil {
		return nil, errors.New("engine: history store is required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("engine: cache is required")
	}
	if cfg.Completer == nil {
		return nil, errors.New("engine: completer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 20
	}

	return &Engine{
		retriever:    cfg.Retriever,
		history:      cfg.History,
		cache:        cfg.Cache,
		completer:    cfg.Completer,
		logger:       cfg.Logger,
		params:       cfg.Params,
		budget:       cfg.Budget,
		topK:         cfg.TopK,
		historyTurns: cfg.HistoryTurns,
		slots:        newSlotRegistry(),
	}, nil
}

// Process handles one user message for a session and returns the answer.
// It blocks while an earlier request for the same session is in flight.
func (e *Engine) Process(ctx context.Context, sessionID, message string) (Answer, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Answer{}, ErrEmptySessionID
	}
	if strings.TrimSpace(message) == "" {
		return Answer{}, ErrEmptyMessage
	}

	release, err := e.slots.acquire(ctx, sessionID)
	if err != nil {
		return Answer{}, err
	}
	defer release()

	start := time.Now()

	retrieval, turns := e.gather(ctx, sessionID, message)
	if err := ctx.Err(); err != nil {
		return Answer{}, err
	}

	pctx, err := prompt.Assemble(retrieval, turns, message, e.budget)
	if err != nil {
		return Answer{}, err
	}

	key := prompt.Fingerprint(pctx.Text, e.params)
	text, hit, err := e.cache.GetOrCompute(ctx, key, func(ctx context.Context) (string, error) {
		return e.completer.Complete(ctx, pctx.Text, e.params)
	})
	if err != nil {
		return Answer{}, err
	}

	// The exchange is recorded before the session slot is released so a
	// queued follow-up sees this turn in its history. Persistence failure
	// does not void the answer.
	if err := e.history.AppendExchange(ctx, sessionID, message, text); err != nil {
		e.logger.Error("failed to persist exchange",
			"session_id", sessionID,
			"error", err)
	}

	elapsed := time.Since(start)
	e.logger.Info("processed message",
		"session_id", sessionID,
		"cache_hit", hit,
		"chunks", len(pctx.ChunkIDs),
		"history_turns", pctx.TurnsIncluded,
		"elapsed", elapsed)

	return Answer{
		Text:          text,
		Cached:        hit,
		ChunkIDs:      pctx.ChunkIDs,
		TurnsIncluded: pctx.TurnsIncluded,
		Elapsed:       elapsed,
	}, nil
}

// gather fetches knowledge and history concurrently. Both sources degrade
// to empty on failure: a missing knowledge base or unreachable history
// narrows the context but never blocks an answer.
func (e *Engine) gather(ctx context.Context, sessionID, message string) ([]knowledge.Scored, []history.Turn) {
	type retrievalResult struct {
		chunks []knowledge.Scored
		err    error
	}
	type historyResult struct {
		turns []history.Turn
		err   error
	}

	// Buffered so the goroutines never leak if the caller bails on ctx.
	retrievalCh := make(chan retrievalResult, 1)
	historyCh := make(chan historyResult, 1)

	go func() {
		chunks, err := e.retriever.Retrieve(ctx, message, e.topK)
		retrievalCh <- retrievalResult{chunks, err}
	}()

	go func() {
		turns, err := e.history.Recent(ctx, sessionID, e.historyTurns)
		historyCh <- historyResult{turns, err}
	}()

	rr := <-retrievalCh
	if rr.err != nil {
		e.logger.Warn("retrieval degraded to empty",
			"session_id", sessionID,
			"error", rr.err)
		rr.chunks = nil
	}

	hr := <-historyCh
	if hr.err != nil {
		e.logger.Warn("history degraded to empty",
			"session_id", sessionID,
			"error", hr.err)
		hr.turns = nil
	}

	return rr.chunks, hr.turns
}

// Sessions reports how many sessions currently hold or wait on a
// processing slot.
func (e *Engine) Sessions() int {
	return e.slots.active()
}

// String identifies the engine configuration in logs.
func (e *Engine) String() string {
	return fmt.Sprintf("engine(model=%s topK=%d budget=%d)", e.params.Model, e.topK, e.budget.Total)
}
