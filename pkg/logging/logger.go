// Package logging wraps slog with densityguard field names.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger with helpers for scoring runs.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler.
// If handler is nil, uses a text handler on stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger writing human-readable logs to w.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewJSONLogger creates a Logger writing JSON logs to w.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// New builds a Logger from config values: format is "text" or "json",
// level is any slog level name.
func New(w io.Writer, format, level string) (*Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	switch strings.ToLower(format) {
	case "", "text":
		return NewTextLogger(w, lvl), nil
	case "json":
		return NewJSONLogger(w, lvl), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// Noop creates a Logger that discards all output.
func Noop() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// WithRun tags every record with a run ID.
func (l *Logger) WithRun(id uuid.UUID) *Logger {
	return &Logger{Logger: l.Logger.With("run", id.String())}
}

// WithAlgorithm tags every record with the scoring algorithm.
func (l *Logger) WithAlgorithm(alg fmt.Stringer) *Logger {
	return &Logger{Logger: l.Logger.With("algorithm", alg.String())}
}

// LogPhase logs the completion or failure of a scoring phase.
func (l *Logger) LogPhase(ctx context.Context, phase string, points int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "phase failed",
			"phase", phase,
			"points", points,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "phase completed",
		"phase", phase,
		"points", points,
		"elapsed", elapsed,
	)
}

// LogReport logs a report emission.
func (l *Logger) LogReport(ctx context.Context, sink string, rows int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "report failed",
			"sink", sink,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "report written",
		"sink", sink,
		"rows", rows,
	)
}
