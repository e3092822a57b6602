package logging

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

type contextKey struct{}

var ErrNoLoggerInContext = errors.New("no logger in context")

func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

func LoggerFromContext(ctx context.Context) (*zap.Logger, error) {
	if logger, ok := ctx.Value(contextKey{}).(*zap.Logger); ok {
		return logger, nil
	}

	return nil, ErrNoLoggerInContext
}

// LoggerOrNop returns the logger stored in ctx, or a no-op logger.
func LoggerOrNop(ctx context.Context) *zap.Logger {
	if logger, err := LoggerFromContext(ctx); err == nil {
		return logger
	}

	return zap.NewNop()
}
