// Package logging builds the process-wide slog handler. Interactive runs
// get a colored tint console handler; service deployments switch to JSON
// so log shippers can parse the output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Options selects the handler flavor and verbosity.
type Options struct {
	Level     string // debug, info, warn, error
	Format    string // console or json
	AddSource bool
}

// New builds a logger writing to w. Unknown levels default to info, unknown
// formats to console.
func New(w io.Writer, opts Options) *slog.Logger {
	level := parseLevel(opts.Level)

	var handler slog.Handler
	switch opts.Format {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: opts.AddSource,
		})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  opts.AddSource,
			TimeFormat: time.TimeOnly,
		})
	}
	return slog.New(handler)
}

// Default is the logger used before config is loaded: console at info.
func Default() *slog.Logger {
	return New(os.Stderr, Options{})
}

// Discard swallows everything. TUI commands use it so stray log lines
// cannot corrupt the alt screen.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLevel(level string) slog.Level {
	switch level {
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
