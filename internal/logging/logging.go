// Package logging builds the slog logger shared by all binaries.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New returns a text logger, or a JSON logger when env is "production".
func New(w io.Writer, level, env string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel maps debug/info/warn/error to a slog level. Unknown values give info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
