// Package validation checks untrusted field records against a declarative
// schema before they are allowed near a template. Every failing field is
// collected (not just the first) so callers can correct a whole form at once.
package validation

// FieldType enumerates the supported field rule types.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeEmail   FieldType = "email"
	TypeURL     FieldType = "url"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// FieldRule declares the constraints for one field. Type-specific constraints
// are ignored for other types. A rule is read-only after construction and may
// be shared across many validation calls.
type FieldRule struct {
	Type     FieldType
	Required bool

	// String constraints. Trim defaults to true; set NoTrim to keep
	// surrounding whitespace.
	MinLength    *int
	MaxLength    *int
	Pattern      string
	NoTrim       bool
	AllowHebrew  bool
	SanitizeBiDi bool

	// Number constraints.
	Min     *float64
	Max     *float64
	Integer bool

	// Object constraints: rules for nested properties, validated recursively
	// with dotted error paths.
	Properties Schema

	// Custom runs after the built-in checks and may reject or replace the
	// value. Transform runs last and only rewrites it.
	Custom    func(value interface{}) (interface{}, error)
	Transform func(value interface{}) interface{}
}

// Schema maps field names to their rules. Fields absent from the schema are
// stripped from the validated output.
type Schema map[string]FieldRule

// IntPtr is a convenience for inline schema literals.
func IntPtr(v int) *int { return &v }

// FloatPtr is a convenience for inline schema literals.
func FloatPtr(v float64) *float64 { return &v }
