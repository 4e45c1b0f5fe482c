// Package constants defines system-wide constants for the DocShield security
// pipeline. This package provides type-safe constant definitions used across
// all modules.
package constants

import "time"

// ================================================================================
// Security Error Codes
// ================================================================================

// ErrorCode is the stable machine-readable code surfaced to API callers.
type ErrorCode string

const (
	// ErrCodeRateLimitExceeded indicates the client's token bucket is empty
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// ErrCodeConcurrentLimitExceeded indicates the client has too many in-flight requests
	ErrCodeConcurrentLimitExceeded ErrorCode = "CONCURRENT_LIMIT_EXCEEDED"

	// ErrCodeInCooldown indicates the client is inside an error-triggered cooldown window
	ErrCodeInCooldown ErrorCode = "IN_COOLDOWN"

	// ErrCodePathTraversal indicates the template path escapes the allowed roots
	ErrCodePathTraversal ErrorCode = "PATH_TRAVERSAL"

	// ErrCodePerDocumentLimitExceeded indicates a single allocation exceeds the per-document ceiling
	ErrCodePerDocumentLimitExceeded ErrorCode = "PER_DOCUMENT_LIMIT_EXCEEDED"

	// ErrCodeTotalLimitExceeded indicates the aggregate memory ceiling would be crossed
	ErrCodeTotalLimitExceeded ErrorCode = "TOTAL_LIMIT_EXCEEDED"

	// ErrCodeBatchSizeExceeded indicates a batch allocation asks for too many members
	ErrCodeBatchSizeExceeded ErrorCode = "BATCH_SIZE_EXCEEDED"

	// ErrCodeInvalidAllocation indicates an allocation request with a non-positive size or count
	ErrCodeInvalidAllocation ErrorCode = "INVALID_ALLOCATION"

	// ErrCodeValidationFailed indicates one or more fields failed schema validation
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// ErrCodeHomographAttack indicates mutually suspicious scripts co-occur in a value
	ErrCodeHomographAttack ErrorCode = "HOMOGRAPH_ATTACK"

	// ErrCodeTemplateChecksum indicates the template digest does not match the manifest
	ErrCodeTemplateChecksum ErrorCode = "TEMPLATE_CHECKSUM_MISMATCH"

	// ErrCodeInternal indicates an unexpected failure inside the pipeline
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// ================================================================================
// Pipeline Layers
// ================================================================================

// Layer identifies which defense layer produced a decision.
type Layer string

const (
	LayerRateLimiter   Layer = "RateLimiter"
	LayerPathSanitizer Layer = "PathSanitizer"
	LayerMemoryManager Layer = "MemoryManager"
	LayerValidator     Layer = "InputValidator"
	LayerSanitizer     Layer = "HebrewSanitizer"
	LayerVerifier      Layer = "TemplateVerifier"
	LayerPIIHandler    Layer = "PIIHandler"
	LayerAuditLogger   Layer = "AuditLogger"
	LayerManager       Layer = "SecurityManager"
)

// ================================================================================
// Audit Levels and Actions
// ================================================================================

// AuditLevel is the severity of an audit trail entry.
type AuditLevel string

const (
	AuditLevelInfo     AuditLevel = "INFO"
	AuditLevelWarn     AuditLevel = "WARN"
	AuditLevelError    AuditLevel = "ERROR"
	AuditLevelSecurity AuditLevel = "SECURITY"
)

// AuditAction names the event that an audit entry records.
type AuditAction string

const (
	// ActionRequestValidated records a request that cleared every layer
	ActionRequestValidated AuditAction = "request_validated"

	// ActionSecurityViolation records a rejected or rewritten request
	ActionSecurityViolation AuditAction = "security_violation"

	// ActionRateLimitViolation records a throttled client
	ActionRateLimitViolation AuditAction = "rate_limit_violation"

	// ActionAuthAttempt records an authentication attempt against the surface
	ActionAuthAttempt AuditAction = "auth_attempt"

	// ActionDocumentAccess records access to document content (hash only)
	ActionDocumentAccess AuditAction = "document_access"

	// ActionPIIRedacted records a field whose PII was masked in place
	ActionPIIRedacted AuditAction = "pii_redacted"

	// ActionInternalError records an unexpected pipeline failure
	ActionInternalError AuditAction = "internal_error"
)

// ================================================================================
// Rate Limiting Defaults
// ================================================================================

const (
	// DefaultRequestsPerMinute is the default token bucket capacity per client
	DefaultRequestsPerMinute = 60

	// DefaultMaxConcurrent is the default in-flight request ceiling per client
	DefaultMaxConcurrent = 10

	// DefaultCooldownSeconds is the default error-triggered cooldown window
	DefaultCooldownSeconds = 300
)

// ================================================================================
// Memory Accounting Defaults
// ================================================================================

const (
	// DefaultMaxPerDocument is the default per-document allocation ceiling (50 MB)
	DefaultMaxPerDocument int64 = 50 * 1024 * 1024

	// DefaultMaxTotal is the default aggregate allocation ceiling (500 MB)
	DefaultMaxTotal int64 = 500 * 1024 * 1024

	// DefaultMaxBatchSize is the default maximum members in one batch allocation
	DefaultMaxBatchSize = 100
)

// ================================================================================
// Audit Trail Defaults
// ================================================================================

const (
	// DefaultAuditMaxFileSize is the rotation threshold for the active file (100 MB)
	DefaultAuditMaxFileSize int64 = 100 * 1024 * 1024

	// DefaultAuditRetentionDays is how long archived files are kept
	DefaultAuditRetentionDays = 30

	// DefaultAuditBufferSize is the number of buffered entries before auto-flush
	DefaultAuditBufferSize = 100

	// AuditActiveFileName is the name of the active JSONL file
	AuditActiveFileName = "audit.jsonl"

	// MachineIDFileName is the cached anonymous machine identifier file
	MachineIDFileName = ".machine-id"
)

// ================================================================================
// Service Configuration Defaults
// ================================================================================

const (
	// DefaultServicePort is the default HTTP service port
	DefaultServicePort = 8080

	// DefaultShutdownTimeout is the graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultFloodRPS is the default global ingress requests-per-second guard
	DefaultFloodRPS = 200

	// DefaultFloodBurst is the burst size of the global ingress guard
	DefaultFloodBurst = 400
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey represents keys used in context.Context.
type ContextKey string

const (
	// ContextKeyRequestID is the key for the request ID in context
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyClientID is the key for the client ID in context
	ContextKeyClientID ContextKey = "client_id"
)
