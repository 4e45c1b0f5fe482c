// Package logger defines the structured process-logging interface used across
// DocShield. The production implementation lives in internal/monitoring and is
// backed by zap; tests use the no-op logger from this package.
//
// This is the operational log of the service itself. The tamper-evident audit
// trail is a separate component (internal/audit) with its own files.
package logger

import "context"

// Fields is a bag of structured key-value pairs attached to a log line.
type Fields map[string]interface{}

// Logger is the structured logging interface.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Fields)
	Info(ctx context.Context, msg string, fields ...Fields)
	Warn(ctx context.Context, msg string, fields ...Fields)
	Error(ctx context.Context, msg string, err error, fields ...Fields)

	// WithFields returns a derived logger that attaches the given fields to
	// every line.
	WithFields(fields Fields) Logger
}
