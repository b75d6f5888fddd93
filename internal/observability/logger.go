package observability

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the JSON logger used across the process. Level comes
// from LOG_LEVEL (debug, info, warn, error), defaulting to info.
func NewLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
