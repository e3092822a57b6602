package logging

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NamedLogger returns a decorator naming the logger and attaching fields.
func NamedLogger(name string, fields ...zap.Field) func(log *zap.Logger) *zap.Logger {
	return func(log *zap.Logger) *zap.Logger {
		return log.Named(name).With(fields...)
	}
}

// DecorateLogger names the logger of every component in an fx module.
func DecorateLogger(name string, fields ...zap.Field) fx.Option {
	return fx.Decorate(NamedLogger(name, fields...))
}
