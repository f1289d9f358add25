package env

import (
	"log/slog"
	"strings"
)

// ParseLogLevel reads LOG_LEVEL and maps it to a slog.Level.
// Accepts "debug", "info", "warn"/"warning" and "error" in any case;
// anything else yields fallback.
func ParseLogLevel(fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(Get("LOG_LEVEL", ""))) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
