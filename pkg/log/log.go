// Package log carries a structured logger through contexts.
package log

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

var (
	defaultLogLevel slog.LevelVar
	defaultLogger   = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     &defaultLogLevel,
	}))
)

func init() {
	defaultLogLevel.Set(slog.LevelInfo)
}

type contextKey struct{}

var loggerKey = contextKey{}

// Ctx returns the logger from the context. If no logger is found, it returns the default logger.
func Ctx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return defaultLogger
}

// With returns a new context with the given logger.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithCycle tags every log line of a refresh or analysis cycle with a fresh
// cycleID and the job name.
func WithCycle(ctx context.Context, job string) (context.Context, string) {
	id := uuid.NewString()
	return With(ctx, Ctx(ctx).With(slog.String("cycleID", id), slog.String("job", job))), id
}

func SetDefaultLogLevel(level slog.Level) {
	defaultLogLevel.Set(level)
}
