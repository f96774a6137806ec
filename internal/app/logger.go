package app

import (
	"io"
	"log/slog"
)

// newLogger builds the logger the app threads through every run context. It
// never touches the global logger, so concurrent App instances in tests stay
// isolated. Level and format arrive pre-validated from the CLI; anything else
// falls back to info/text so programmatic callers still get a usable logger.
func newLogger(levelStr, formatStr string, logW io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(logW, opts))
	}
	return slog.New(slog.NewTextHandler(logW, opts))
}
