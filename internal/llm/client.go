// Package llm wraps the completion provider behind a small interface with
// per-attempt timeouts, rate limiting, retry with backoff, and a circuit
// breaker. Callers see either an answer or ErrCompletionUnavailable; they
// never deal with provider-specific failure modes.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/prompt"
)

// ErrCompletionUnavailable is returned when the provider could not produce
// a completion within the retry budget. Transient by nature: the same
// request may succeed later.
var ErrCompletionUnavailable = errors.New("completion unavailable")

// DefaultRequestTimeout bounds a single completion attempt.
const DefaultRequestTimeout = 60 * time.Second

// fallbackAnswer covers the rare case of a successful call with an empty
// candidate.
const fallbackAnswer = "I wasn't able to generate a response. Please try again."

// Completer produces a completion for a fully assembled prompt.
type Completer interface {
	Complete(ctx context.Context, text string, params prompt.Params) (string, error)
}

// Config configures the client.
type Config struct {
	Genkit         *genkit.Genkit
	Logger         log.Logger
	Retry          RetryConfig
	Breaker        CircuitBreakerConfig
	RequestTimeout time.Duration
	// RequestsPerSecond throttles outbound attempts. Zero disables
	// throttling.
	RequestsPerSecond float64
}

// Client is the genkit-backed Completer.
type Client struct {
	g       *genkit.Genkit
	logger  log.Logger
	retry   RetryConfig
	breaker *CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
}

// NewClient creates a completion client. The genkit instance must already
// have its model plugin initialized.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Genkit == nil {
		return nil, errors.New("llm: genkit instance is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		g:       cfg.Genkit,
		logger:  cfg.Logger,
		retry:   cfg.Retry,
		breaker: NewCircuitBreaker(cfg.Breaker),
		limiter: limiter,
		timeout: cfg.RequestTimeout,
	}, nil
}

// Complete sends the prompt to the provider. Transient failures are
// retried with exponential backoff; when the budget runs out the last
// error is wrapped in ErrCompletionUnavailable. Fatal errors (bad key,
// invalid request) return immediately without burning retries.
func (c *Client) Complete(ctx context.Context, text string, params prompt.Params) (string, error) {
	if text == "" {
		return "", errors.New("llm: empty prompt")
	}

	if err := c.breaker.Allow(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletionUnavailable, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(c.retry, attempt-1)
			c.logger.Debug("retrying completion",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)
			if err := sleepCtx(ctx, delay); err != nil {
				return "", err
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		answer, err := c.generate(ctx, text, params)
		if err == nil {
			c.breaker.Success()
			return answer, nil
		}
		lastErr = err

		// The caller gave up; do not count that against the provider.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		c.breaker.Failure()
		if !retryableError(err) {
			c.logger.Error("completion failed", "error", err)
			return "", fmt.Errorf("llm: completion failed: %w", err)
		}
	}

	c.logger.Error("completion retries exhausted",
		"retries", c.retry.MaxRetries,
		"error", lastErr)
	return "", fmt.Errorf("%w: after %d retries: %w", ErrCompletionUnavailable, c.retry.MaxRetries, lastErr)
}

func (c *Client) generate(ctx context.Context, text string, params prompt.Params) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cfg := map[string]any{
		"temperature": params.Temperature,
	}
	if params.MaxTokens > 0 {
		cfg["maxOutputTokens"] = params.MaxTokens
	}

	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(params.Model),
		ai.WithMessages(ai.NewUserMessage(ai.NewTextPart(text))),
		ai.WithConfig(cfg),
	)
	if err != nil {
		return "", err
	}

	answer := resp.Text()
	if answer == "" {
		c.logger.Warn("model returned empty response", "model", params.Model)
		return fallbackAnswer, nil
	}
	return answer, nil
}
