// Package logger provides centralized slog.Logger construction with
// configurable level and output format (text, JSON, or colored text).
package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/mashiike/slogutils"
)

// New creates a *slog.Logger configured with the given level and format.
// Level: "debug", "info", "warn", "error" (default: "info").
// Format: "json", "color" or "text" (default: "text").
// Output goes to stderr.
func New(level, format string) *slog.Logger {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter creates a *slog.Logger writing to w.
// Useful for testing or redirecting output.
func NewWithWriter(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts))
	case "color":
		return slog.New(colorHandler(w, opts))
	default:
		return slog.New(slog.NewTextHandler(w, opts))
	}
}

// colorHandler wraps a text handler so warn and error records stand out on
// an interactive terminal. Debug records also carry their source location.
func colorHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	opts.AddSource = opts.Level == slog.LevelDebug
	return slogutils.NewMiddleware(
		func(w io.Writer, ho *slog.HandlerOptions) slog.Handler {
			return slog.NewTextHandler(w, ho)
		},
		slogutils.MiddlewareOptions{
			Writer:         w,
			HandlerOptions: opts,
			ModifierFuncs: map[slog.Level]slogutils.ModifierFunc{
				slog.LevelDebug: slogutils.Color(color.FgBlack),
				slog.LevelInfo:  nil,
				slog.LevelWarn:  slogutils.Color(color.FgYellow),
				slog.LevelError: slogutils.Color(color.FgRed, color.Bold),
			},
		},
	)
}

// ParseLevel converts a level string to slog.Level.
// Recognized values: "debug", "warn", "error". Everything else returns LevelInfo.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
