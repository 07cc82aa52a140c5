// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest):
//  1. Environment variables (runtime override)
//  2. Config file (~/.ragline/config.yaml or ./config.yaml)
//  3. Defaults (sensible values for a local quick start)
//
// Categories:
//   - AI: provider, model, temperature, max tokens, embedder
//   - Storage: PostgreSQL connection (storage.go)
//   - Retrieval: top-K and context assembly budgets
//   - Cache: response-cache TTL and capacity
//   - Completion: retry/backoff and rate-limit settings
//   - Tracing: OTLP export endpoint
//
// Sensitive values (the Postgres password) are masked in MarshalJSON and
// String. Validation is fail-fast on Load with sentinel errors so callers
// can branch with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors returned by Validate.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature is out of [0, 2].
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates an unknown sslmode value.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidTopK indicates the retrieval top-K is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidContextBudget indicates the assembly budget is not positive
	// or smaller than the per-chunk cap.
	ErrInvalidContextBudget = errors.New("invalid context budget")

	// ErrInvalidCacheCapacity indicates a negative cache capacity.
	ErrInvalidCacheCapacity = errors.New("invalid cache capacity")

	// ErrInvalidCacheTTL indicates a negative cache TTL.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL")

	// ErrInvalidRetryBudget indicates a negative retry count.
	ErrInvalidRetryBudget = errors.New("invalid retry budget")
)

// Defaults for retrieval and context assembly. The budget unit is runes,
// not model tokens; see the assembler package for the rationale.
const (
	// DefaultTopK is the default number of knowledge chunks retrieved.
	DefaultTopK = 5

	// MaxTopK bounds retrieval fan-out.
	MaxTopK = 50

	// DefaultContextBudget is the default assembled-prompt budget in runes.
	DefaultContextBudget = 8000

	// DefaultChunkCap is the default per-chunk truncation cap in runes.
	DefaultChunkCap = 1200

	// DefaultHistoryTurns is how many recent turns are loaded per request.
	DefaultHistoryTurns = 20

	// MaxHistoryTurns is the absolute maximum to prevent unbounded loads.
	MaxHistoryTurns = 1000
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderGoogleAI = "googleai"
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON. When adding a new
// secret field, update MarshalJSON too.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Embedding model for retrieval queries
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Retrieval and context assembly
	TopK          int `mapstructure:"top_k" json:"top_k"`
	ContextBudget int `mapstructure:"context_budget" json:"context_budget"`
	ChunkCap      int `mapstructure:"chunk_cap" json:"chunk_cap"`
	HistoryTurns  int `mapstructure:"history_turns" json:"history_turns"`

	// Response cache
	CacheTTL      time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"`
	CacheCapacity int           `mapstructure:"cache_capacity" json:"cache_capacity"`

	// Completion resilience
	MaxRetries     int           `mapstructure:"max_retries" json:"max_retries"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`

	// Tracing (OTLP HTTP export; empty endpoint disables)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > config file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".ragline")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL wins over individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// AI defaults
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("embedder_model", "gemini-embedding-001")

	// Retrieval + assembly defaults
	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("context_budget", DefaultContextBudget)
	v.SetDefault("chunk_cap", DefaultChunkCap)
	v.SetDefault("history_turns", DefaultHistoryTurns)

	// Cache defaults
	v.SetDefault("cache_ttl", 15*time.Minute)
	v.SetDefault("cache_capacity", 1024)

	// Completion resilience defaults
	v.SetDefault("max_retries", 3)
	v.SetDefault("request_timeout", 60*time.Second)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "ragline")
	v.SetDefault("postgres_password", "ragline_dev_password")
	v.SetDefault("postgres_db_name", "ragline")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Server defaults
	v.SetDefault("listen_addr", "127.0.0.1:3400")

	// Tracing defaults (disabled unless an endpoint is configured)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "ragline")
	v.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY is read directly by the Genkit plugin, not via viper;
// Validate checks its presence.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys can't fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "RAGLINE_PROVIDER")
	mustBind("model_name", "RAGLINE_MODEL_NAME")
	mustBind("embedder_model", "RAGLINE_EMBEDDER_MODEL")
	mustBind("listen_addr", "RAGLINE_LISTEN_ADDR")
	mustBind("cache_ttl", "RAGLINE_CACHE_TTL")
	mustBind("tracing.endpoint", "RAGLINE_OTLP_ENDPOINT")
}

// maskedValue replaces secrets in serialized config. Full-width blocks avoid
// accidental substring matches against real secret content.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep two characters at each end for debug utility.
// This defends against accidental logging, not against compromised logs.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive fields masked.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Example: "googleai/gemini-2.5-flash". A name already containing "/" is
// returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return ProviderGoogleAI + "/" + c.ModelName
}

// String implements Stringer so accidental printing never leaks secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
