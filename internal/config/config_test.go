package config

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Provider:         ProviderGemini,
		ModelName:        "gemini-2.5-flash",
		Temperature:      0.7,
		MaxTokens:        2048,
		EmbedderModel:    "gemini-embedding-001",
		TopK:             DefaultTopK,
		ContextBudget:    DefaultContextBudget,
		ChunkCap:         DefaultChunkCap,
		HistoryTurns:     DefaultHistoryTurns,
		CacheTTL:         15 * time.Minute,
		CacheCapacity:    1024,
		MaxRetries:       3,
		RequestTimeout:   time.Minute,
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "ragline",
		PostgresPassword: "secret",
		PostgresDBName:   "ragline",
		PostgresSSLMode:  "disable",
		ListenAddr:       "127.0.0.1:3400",
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate failed on a valid config: %v", err)
	}
}

func TestValidateNil(t *testing.T) {
	t.Parallel()

	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("err = %v, want ErrConfigNil", err)
	}
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"empty model", func(c *Config) { c.ModelName = " " }, ErrInvalidModelName},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, ErrInvalidTemperature},
		{"negative temperature", func(c *Config) { c.Temperature = -0.1 }, ErrInvalidTemperature},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }, ErrInvalidMaxTokens},
		{"empty embedder", func(c *Config) { c.EmbedderModel = "" }, ErrInvalidEmbedderModel},
		{"zero top-k", func(c *Config) { c.TopK = 0 }, ErrInvalidTopK},
		{"top-k over max", func(c *Config) { c.TopK = MaxTopK + 1 }, ErrInvalidTopK},
		{"zero budget", func(c *Config) { c.ContextBudget = 0 }, ErrInvalidContextBudget},
		{"chunk cap over budget", func(c *Config) { c.ChunkCap = c.ContextBudget + 1 }, ErrInvalidContextBudget},
		{"negative cache ttl", func(c *Config) { c.CacheTTL = -time.Second }, ErrInvalidCacheTTL},
		{"negative cache capacity", func(c *Config) { c.CacheCapacity = -1 }, ErrInvalidCacheCapacity},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, ErrInvalidRetryBudget},
		{"empty host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"port out of range", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
		{"bad ssl mode", func(c *Config) { c.PostgresSSLMode = "yolo" }, ErrInvalidPostgresSSLMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPostgresConnectionString(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	dsn := cfg.PostgresConnectionString()

	for _, want := range []string{"host=localhost", "port=5432", "dbname=ragline", "sslmode=disable"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN missing %q: %s", want, dsn)
		}
	}
}

func TestPostgresConnectionStringQuoting(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PostgresPassword = "pa ss'word"
	dsn := cfg.PostgresConnectionString()

	if !strings.Contains(dsn, `password='pa ss\'word'`) {
		t.Errorf("special characters not quoted: %s", dsn)
	}
}

func TestPostgresURL(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	u := cfg.PostgresURL()

	if !strings.HasPrefix(u, "postgres://") {
		t.Errorf("URL should use postgres scheme: %s", u)
	}
	if !strings.Contains(u, "sslmode=disable") {
		t.Errorf("URL missing sslmode: %s", u)
	}
}

func TestFullModelName(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if got := cfg.FullModelName(); got != "googleai/gemini-2.5-flash" {
		t.Errorf("FullModelName = %q", got)
	}

	cfg.ModelName = "custom/model"
	if got := cfg.FullModelName(); got != "custom/model" {
		t.Errorf("qualified name should pass through, got %q", got)
	}
}

func TestMarshalJSONMasksPassword(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PostgresPassword = "supersecretpassword"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(data), "supersecretpassword") {
		t.Error("password leaked into JSON")
	}
	if !strings.Contains(string(data), maskedValue) {
		t.Error("masked marker missing from JSON")
	}
}

func TestMaskSecret(t *testing.T) {
	t.Parallel()

	if maskSecret("") != "" {
		t.Error("empty secret should stay empty")
	}
	if got := maskSecret("short"); got != maskedValue {
		t.Errorf("short secret should be fully masked, got %q", got)
	}
	long := maskSecret("abcdefghijkl")
	if !strings.HasPrefix(long, "ab") || !strings.HasSuffix(long, "kl") {
		t.Errorf("long secret should keep edges, got %q", long)
	}
	if strings.Contains(long, "cdefghij") {
		t.Errorf("middle of secret leaked: %q", long)
	}
}
