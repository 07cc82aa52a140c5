// Package log provides the logging infrastructure shared by all ragline
// components.
//
// Loggers are injected, never global: each component receives a log.Logger
// through its constructor and may narrow it with logger.With("component", ...).
// The type is a plain *slog.Logger alias so the whole slog ecosystem
// (handlers, levels, attrs) stays available without adapter layers.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger is an alias for *slog.Logger. Components accept log.Logger as a
// dependency; tests pass NewNop().
type Logger = *slog.Logger

// Config defines logger options.
type Config struct {
	// Level sets the minimum log level. Default: slog.LevelInfo.
	Level slog.Level

	// JSON enables JSON output. Default: false (text).
	JSON bool

	// AddSource annotates entries with file:line. Default: false.
	AddSource bool
}

// New creates a logger writing to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w. Useful for capturing output
// in tests.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop returns a logger that discards everything. Intended for tests.
func NewNop() Logger {
	return slog.New(slog.DiscardHandler)
}
