// Package logging provides the structured logger used across tomo.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger wraps slog.Logger with pipeline-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
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

// NewJSONLogger creates a Logger that writes JSON-formatted logs to w.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that writes human-readable logs to w.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// ParseLevel converts "debug", "info", "warn" or "error" to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// WithRun adds a run ID field.
func (l *Logger) WithRun(id string) *Logger {
	return &Logger{Logger: l.Logger.With("run", id)}
}

// WithRank adds a worker rank field.
func (l *Logger) WithRank(rank int) *Logger {
	return &Logger{Logger: l.Logger.With("rank", rank)}
}

// WithStage adds stage index and name fields.
func (l *Logger) WithStage(index int, name string) *Logger {
	return &Logger{Logger: l.Logger.With("stage", index, "plugin", name)}
}

// LogPlan logs the frame and chunk counts a stage will process and the
// number of workers sharing them.
func (l *Logger) LogPlan(ctx context.Context, pattern string, frames, chunks, workers int) {
	l.DebugContext(ctx, "stage planned",
		"pattern", pattern,
		"frames", frames,
		"chunks", chunks,
		"workers", workers,
	)
}

// LogStage logs the end of a stage on one worker.
func (l *Logger) LogStage(ctx context.Context, chunks int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "stage failed",
			"chunks", chunks,
			"elapsed", elapsed,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "stage completed",
			"chunks", chunks,
			"elapsed", elapsed,
		)
	}
}

// LogBarrier logs a worker leaving the inter-stage barrier.
func (l *Logger) LogBarrier(ctx context.Context, generation int, waited time.Duration) {
	l.DebugContext(ctx, "barrier released",
		"generation", generation,
		"waited", waited,
	)
}
