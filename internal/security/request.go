// Package security composes the defense layers into one ordered, fail-fast
// validation pipeline. A request passes rate limiting, path sanitization,
// memory accounting, schema validation, Unicode sanitization, template
// verification, and PII redaction before it is allowed near a template, and
// every decision lands in the audit trail.
package security

import (
	"github.com/tavnit/docshield/internal/validation"
	"github.com/tavnit/docshield/pkg/constants"
)

// SecurityRequest describes one document-generation attempt.
type SecurityRequest struct {
	// ClientID keys rate limiting and memory accounting.
	ClientID string `json:"clientId"`

	// TemplatePath is the caller-supplied template location, untrusted.
	TemplatePath string `json:"templatePath"`

	// FieldData is the untyped record of field values to fill in.
	FieldData map[string]interface{} `json:"fieldData"`

	// RequestSize is the declared size of the work in bytes.
	RequestSize int64 `json:"requestSize"`

	// RequestID correlates audit and log lines; generated when empty.
	RequestID string `json:"requestId,omitempty"`

	// Schema, when set, is applied by the input validator before
	// sanitization. Requests without a schema skip field validation.
	Schema validation.Schema `json:"-"`
}

// LayerError identifies which layer rejected a request and why.
type LayerError struct {
	Layer   constants.Layer     `json:"layer"`
	Code    constants.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

// SecurityResult is the outcome of one pipeline run. A rejected request
// carries a structured error; an allowed one carries the sanitized data.
type SecurityResult struct {
	Allowed       bool                   `json:"allowed"`
	Reason        string                 `json:"reason,omitempty"`
	SanitizedData map[string]interface{} `json:"sanitizedData,omitempty"`
	SanitizedPath string                 `json:"sanitizedPath,omitempty"`
	Error         *LayerError            `json:"error,omitempty"`
}

// PathSanitizer rejects template paths that escape the allowed roots.
type PathSanitizer interface {
	// Sanitize returns the canonical path or a PATH_TRAVERSAL error.
	Sanitize(path string) (string, error)
}

// TemplateVerifier checks template integrity against a trusted manifest.
type TemplateVerifier interface {
	// Verify reports whether the template digest matches the manifest.
	Verify(path string) (bool, error)
}

// PIIDetection is the outcome of scanning one value.
type PIIDetection struct {
	Detected bool
	Types    []string
}

// PIIHandler finds and masks personally identifying data in field values.
type PIIHandler interface {
	DetectPII(text string) PIIDetection
	Sanitize(text string) string
}
