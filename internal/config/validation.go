package config

import (
	"fmt"
	"strings"
)

// Valid PostgreSQL SSL modes.
var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// Validate checks the configuration and returns the first problem found.
// All returned errors wrap a package sentinel so callers can use errors.Is.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v not in [0, 2]", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens <= 0 || c.MaxTokens > 1_000_000 {
		return fmt.Errorf("%w: %d not in (0, 1000000]", ErrInvalidMaxTokens, c.MaxTokens)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}

	if c.TopK <= 0 || c.TopK > MaxTopK {
		return fmt.Errorf("%w: %d not in (0, %d]", ErrInvalidTopK, c.TopK, MaxTopK)
	}
	if c.ContextBudget <= 0 {
		return fmt.Errorf("%w: budget must be positive, got %d", ErrInvalidContextBudget, c.ContextBudget)
	}
	if c.ChunkCap <= 0 || c.ChunkCap > c.ContextBudget {
		return fmt.Errorf("%w: chunk cap %d must be in (0, budget %d]",
			ErrInvalidContextBudget, c.ChunkCap, c.ContextBudget)
	}
	if c.HistoryTurns <= 0 || c.HistoryTurns > MaxHistoryTurns {
		return fmt.Errorf("%w: history turns %d not in (0, %d]",
			ErrInvalidContextBudget, c.HistoryTurns, MaxHistoryTurns)
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidCacheTTL, c.CacheTTL)
	}
	if c.CacheCapacity < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCacheCapacity, c.CacheCapacity)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRetryBudget, c.MaxRetries)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d not in (0, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}
