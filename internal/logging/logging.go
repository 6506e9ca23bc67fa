// Package logging configures the process-wide structured logger.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON slog.Logger writing to stderr. The minimum level is
// taken from the LOG_LEVEL environment variable (debug, info, warn, error)
// and defaults to info.
func New() *slog.Logger {
	return NewWithLevel(os.Getenv("LOG_LEVEL"))
}

// NewWithLevel returns a JSON slog.Logger with an explicit level name.
func NewWithLevel(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
