// Package errors defines the typed error surface of the DocShield pipeline.
// Every defense layer owns a SecurityError with a stable code so callers can
// render a specific message without seeing internal state.
package errors

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tavnit/docshield/pkg/constants"
)

// ================================================================================
// SecurityError
// ================================================================================

// SecurityError is a structured error produced by a pipeline layer.
type SecurityError struct {
	Code     constants.ErrorCode
	Layer    constants.Layer
	Message  string
	cause    error
	metadata map[string]interface{}
}

// Error implements the error interface.
func (e *SecurityError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for error-chain support.
func (e *SecurityError) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error.
func (e *SecurityError) WithCause(cause error) *SecurityError {
	e.cause = cause
	return e
}

// WithMetadata attaches additional context for diagnostics.
func (e *SecurityError) WithMetadata(key string, value interface{}) *SecurityError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

// Metadata returns all attached metadata.
func (e *SecurityError) Metadata() map[string]interface{} {
	return e.metadata
}

// HTTPStatus maps the error code to an HTTP status for the API surface.
func (e *SecurityError) HTTPStatus() int {
	switch e.Code {
	case constants.ErrCodeRateLimitExceeded,
		constants.ErrCodeConcurrentLimitExceeded,
		constants.ErrCodeInCooldown:
		return http.StatusTooManyRequests
	case constants.ErrCodePerDocumentLimitExceeded,
		constants.ErrCodeTotalLimitExceeded,
		constants.ErrCodeBatchSizeExceeded:
		return http.StatusRequestEntityTooLarge
	case constants.ErrCodeValidationFailed,
		constants.ErrCodeInvalidAllocation:
		return http.StatusBadRequest
	case constants.ErrCodePathTraversal,
		constants.ErrCodeHomographAttack,
		constants.ErrCodeTemplateChecksum:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// New creates a SecurityError with the given code, layer, and message.
func New(code constants.ErrorCode, layer constants.Layer, message string) *SecurityError {
	return &SecurityError{Code: code, Layer: layer, Message: message}
}

// ================================================================================
// Layer-Specific Constructors
// ================================================================================

// ErrRateLimitExceeded creates a token bucket exhaustion error.
func ErrRateLimitExceeded(clientID string, limit int) *SecurityError {
	return New(
		constants.ErrCodeRateLimitExceeded,
		constants.LayerRateLimiter,
		fmt.Sprintf("rate limit exceeded: %d requests per minute", limit),
	).WithMetadata("client_id", clientID).WithMetadata("limit", limit)
}

// ErrConcurrentLimitExceeded creates an in-flight ceiling error.
func ErrConcurrentLimitExceeded(clientID string, max int) *SecurityError {
	return New(
		constants.ErrCodeConcurrentLimitExceeded,
		constants.LayerRateLimiter,
		fmt.Sprintf("concurrent request limit exceeded: %d in flight", max),
	).WithMetadata("client_id", clientID).WithMetadata("max_concurrent", max)
}

// ErrInCooldown creates a cooldown window error.
func ErrInCooldown(clientID string, remainingSeconds int) *SecurityError {
	return New(
		constants.ErrCodeInCooldown,
		constants.LayerRateLimiter,
		fmt.Sprintf("client in cooldown: retry after %ds", remainingSeconds),
	).WithMetadata("client_id", clientID).WithMetadata("retry_after_seconds", remainingSeconds)
}

// ErrPathTraversal creates a path escape error.
func ErrPathTraversal(reason string) *SecurityError {
	return New(
		constants.ErrCodePathTraversal,
		constants.LayerPathSanitizer,
		fmt.Sprintf("template path rejected: %s", reason),
	)
}

// ErrPerDocumentLimit creates a per-document ceiling error. Sizes are reported
// in MB per the operator-facing contract.
func ErrPerDocumentLimit(requested, limit int64) *SecurityError {
	return New(
		constants.ErrCodePerDocumentLimitExceeded,
		constants.LayerMemoryManager,
		fmt.Sprintf("allocation of %.2f MB exceeds per-document limit of %.2f MB",
			toMB(requested), toMB(limit)),
	).WithMetadata("requested_bytes", requested).WithMetadata("limit_bytes", limit)
}

// ErrTotalLimit creates an aggregate ceiling error stating the remaining budget.
func ErrTotalLimit(requested, available int64) *SecurityError {
	return New(
		constants.ErrCodeTotalLimitExceeded,
		constants.LayerMemoryManager,
		fmt.Sprintf("allocation of %.2f MB exceeds total budget: %.2f MB available",
			toMB(requested), toMB(available)),
	).WithMetadata("requested_bytes", requested).WithMetadata("available_bytes", available)
}

// ErrInvalidAllocation rejects a non-positive size or count before any
// accounting runs. A negative size would deflate the global counter and widen
// the budget every other client is checked against.
func ErrInvalidAllocation(message string) *SecurityError {
	return New(
		constants.ErrCodeInvalidAllocation,
		constants.LayerMemoryManager,
		message,
	)
}

// ErrBatchSize creates a batch count ceiling error.
func ErrBatchSize(count, max int) *SecurityError {
	return New(
		constants.ErrCodeBatchSizeExceeded,
		constants.LayerMemoryManager,
		fmt.Sprintf("batch of %d allocations exceeds maximum of %d", count, max),
	).WithMetadata("count", count).WithMetadata("max_batch_size", max)
}

// ErrHomographAttack creates a mixed-script rejection naming the offending scripts.
func ErrHomographAttack(scripts []string) *SecurityError {
	return New(
		constants.ErrCodeHomographAttack,
		constants.LayerSanitizer,
		fmt.Sprintf("suspicious mixed-script content: %s", strings.Join(scripts, "+")),
	).WithMetadata("scripts", scripts)
}

// ErrTemplateChecksum creates a template integrity error.
func ErrTemplateChecksum(path string) *SecurityError {
	return New(
		constants.ErrCodeTemplateChecksum,
		constants.LayerVerifier,
		"template checksum does not match trusted manifest",
	).WithMetadata("path", path)
}

// ErrInternal wraps an unexpected failure without leaking its detail to callers.
func ErrInternal(layer constants.Layer, cause error) *SecurityError {
	return New(
		constants.ErrCodeInternal,
		layer,
		"internal error while validating request",
	).WithCause(cause)
}

func toMB(b int64) float64 {
	return float64(b) / (1024 * 1024)
}

// ================================================================================
// ValidationError
// ================================================================================

// FieldError describes one invalid field. Path is dotted for nested objects
// (for example "user.email").
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError aggregates every failing field of one validation pass so
// batch-correction UIs can show all problems at once.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Path, f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a field error.
func (e *ValidationError) Add(path, message string) {
	e.Fields = append(e.Fields, FieldError{Path: path, Message: message})
}

// HasErrors reports whether any field failed.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// AsSecurity converts the aggregate into a layer error for the pipeline result.
func (e *ValidationError) AsSecurity() *SecurityError {
	return New(
		constants.ErrCodeValidationFailed,
		constants.LayerValidator,
		e.Error(),
	).WithMetadata("field_count", len(e.Fields))
}

// ================================================================================
// Utilities
// ================================================================================

// AsSecurityError attempts to cast an error to *SecurityError.
func AsSecurityError(err error) (*SecurityError, bool) {
	se, ok := err.(*SecurityError)
	return se, ok
}

// AsValidationError attempts to cast an error to *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	ve, ok := err.(*ValidationError)
	return ve, ok
}
