package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that drops all output. Tests pass
// it to components that require a logger.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
