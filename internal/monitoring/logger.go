// Package monitoring provides the operational observability of the service:
// the zap-backed process logger, Prometheus metrics, and OpenTelemetry
// tracing. The audit trail is deliberately separate (internal/audit).
package monitoring

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tavnit/docshield/pkg/constants"
	"github.com/tavnit/docshield/pkg/logger"
)

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Development enables console encoding with colored levels.
	Development bool `mapstructure:"development"`
}

// zapLogger adapts zap to the logger.Logger interface.
type zapLogger struct {
	base *zap.Logger
}

// NewZapLogger builds the production logger: JSON lines, ISO8601 timestamps.
func NewZapLogger(cfg LogConfig) (logger.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("monitoring: invalid log level %q: %w", cfg.Level, err)
		}
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("monitoring: build logger: %w", err)
	}
	return &zapLogger{base: base}, nil
}

func (l *zapLogger) Debug(ctx context.Context, msg string, fields ...logger.Fields) {
	l.base.Debug(msg, l.zapFields(ctx, nil, fields)...)
}

func (l *zapLogger) Info(ctx context.Context, msg string, fields ...logger.Fields) {
	l.base.Info(msg, l.zapFields(ctx, nil, fields)...)
}

func (l *zapLogger) Warn(ctx context.Context, msg string, fields ...logger.Fields) {
	l.base.Warn(msg, l.zapFields(ctx, nil, fields)...)
}

func (l *zapLogger) Error(ctx context.Context, msg string, err error, fields ...logger.Fields) {
	l.base.Error(msg, l.zapFields(ctx, err, fields)...)
}

func (l *zapLogger) WithFields(fields logger.Fields) logger.Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return &zapLogger{base: l.base.With(zf...)}
}

// zapFields flattens variadic field bags and pulls the request and client
// identifiers out of the context so every line is correlatable.
func (l *zapLogger) zapFields(ctx context.Context, err error, bags []logger.Fields) []zap.Field {
	out := make([]zap.Field, 0, 8)
	if err != nil {
		out = append(out, zap.Error(err))
	}
	if ctx != nil {
		if requestID, ok := ctx.Value(constants.ContextKeyRequestID).(string); ok && requestID != "" {
			out = append(out, zap.String("request_id", requestID))
		}
		if clientID, ok := ctx.Value(constants.ContextKeyClientID).(string); ok && clientID != "" {
			out = append(out, zap.String("client_id", clientID))
		}
	}
	for _, bag := range bags {
		for k, v := range bag {
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
