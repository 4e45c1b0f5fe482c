package validation

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	playground "github.com/go-playground/validator/v10"

	"github.com/tavnit/docshield/pkg/errors"
)

// leafValidator handles the format checks (email, url) that go-playground
// already gets right. Shared; the instance is safe for concurrent use.
var leafValidator = playground.New()

// patternCache compiles schema regexes once. Schemas are long-lived and
// shared, so the cache is keyed by the raw pattern string.
var patternCache sync.Map // pattern -> *regexp.Regexp

func compiledPattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

// Validator validates field records against a Schema.
type Validator struct{}

// New creates a Validator.
func New() *Validator {
	return &Validator{}
}

// Validate checks data against schema and returns the sanitized record. The
// output contains only declared fields; absent optional fields are omitted,
// not defaulted. On failure the returned error is a *errors.ValidationError
// with one entry per invalid field, nested paths dotted ("user.email").
func (v *Validator) Validate(data map[string]interface{}, schema Schema) (map[string]interface{}, error) {
	verr := &errors.ValidationError{}
	out := v.validateObject(data, schema, "", verr)
	if verr.HasErrors() {
		return nil, verr
	}
	return out, nil
}

func (v *Validator) validateObject(data map[string]interface{}, schema Schema, prefix string, verr *errors.ValidationError) map[string]interface{} {
	out := make(map[string]interface{}, len(schema))

	for name, rule := range schema {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		value, present := data[name]
		// A present-but-nil value is treated as absent.
		if value == nil {
			present = false
		}

		if !present {
			if rule.Required {
				verr.Add(path, "is required")
			}
			continue
		}

		checked, ok := v.validateField(value, rule, path, verr)
		if !ok {
			continue
		}

		if rule.Custom != nil {
			replaced, err := rule.Custom(checked)
			if err != nil {
				verr.Add(path, err.Error())
				continue
			}
			checked = replaced
		}
		if rule.Transform != nil {
			checked = rule.Transform(checked)
		}

		out[name] = checked
	}

	return out
}

// validateField dispatches on the rule type. It reports errors through verr
// and returns ok=false when the value must not appear in the output.
func (v *Validator) validateField(value interface{}, rule FieldRule, path string, verr *errors.ValidationError) (interface{}, bool) {
	switch rule.Type {
	case TypeString:
		return v.validateString(value, rule, path, verr)
	case TypeNumber:
		return v.validateNumber(value, rule, path, verr)
	case TypeBoolean:
		b, ok := value.(bool)
		if !ok {
			verr.Add(path, "must be a boolean")
			return nil, false
		}
		return b, true
	case TypeEmail:
		return v.validateFormat(value, "email", "must be a valid email address", path, verr)
	case TypeURL:
		return v.validateFormat(value, "url", "must be a valid URL", path, verr)
	case TypeArray:
		return v.validateArray(value, rule, path, verr)
	case TypeObject:
		obj, ok := value.(map[string]interface{})
		if !ok {
			verr.Add(path, "must be an object")
			return nil, false
		}
		before := len(verr.Fields)
		nested := v.validateObject(obj, rule.Properties, path, verr)
		if len(verr.Fields) > before {
			return nil, false
		}
		return nested, true
	default:
		verr.Add(path, fmt.Sprintf("unsupported field type %q", rule.Type))
		return nil, false
	}
}

func (v *Validator) validateString(value interface{}, rule FieldRule, path string, verr *errors.ValidationError) (interface{}, bool) {
	s, ok := value.(string)
	if !ok {
		verr.Add(path, "must be a string")
		return nil, false
	}

	if !rule.NoTrim {
		s = strings.TrimSpace(s)
	}
	if rule.SanitizeBiDi {
		s = stripBiDi(s)
	}
	if !rule.AllowHebrew && containsHebrew(s) {
		verr.Add(path, "Hebrew characters are not allowed in this field")
		return nil, false
	}

	length := len([]rune(s))
	if rule.MinLength != nil && length < *rule.MinLength {
		verr.Add(path, fmt.Sprintf("must be at least %d characters", *rule.MinLength))
		return nil, false
	}
	if rule.MaxLength != nil && length > *rule.MaxLength {
		verr.Add(path, fmt.Sprintf("must be at most %d characters", *rule.MaxLength))
		return nil, false
	}
	if rule.Pattern != "" {
		re, err := compiledPattern(rule.Pattern)
		if err != nil {
			verr.Add(path, "schema pattern is invalid")
			return nil, false
		}
		if !re.MatchString(s) {
			verr.Add(path, "does not match the required pattern")
			return nil, false
		}
	}
	return s, true
}

func (v *Validator) validateNumber(value interface{}, rule FieldRule, path string, verr *errors.ValidationError) (interface{}, bool) {
	var n float64
	switch t := value.(type) {
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int32:
		n = float64(t)
	case int64:
		n = float64(t)
	default:
		verr.Add(path, "must be a number")
		return nil, false
	}

	if rule.Integer && n != float64(int64(n)) {
		verr.Add(path, "must be an integer")
		return nil, false
	}
	if rule.Min != nil && n < *rule.Min {
		verr.Add(path, fmt.Sprintf("must be at least %v", *rule.Min))
		return nil, false
	}
	if rule.Max != nil && n > *rule.Max {
		verr.Add(path, fmt.Sprintf("must be at most %v", *rule.Max))
		return nil, false
	}
	return value, true
}

func (v *Validator) validateFormat(value interface{}, tag, message, path string, verr *errors.ValidationError) (interface{}, bool) {
	s, ok := value.(string)
	if !ok {
		verr.Add(path, "must be a string")
		return nil, false
	}
	s = strings.TrimSpace(s)
	if err := leafValidator.Var(s, tag); err != nil {
		verr.Add(path, message)
		return nil, false
	}
	return s, true
}

func (v *Validator) validateArray(value interface{}, rule FieldRule, path string, verr *errors.ValidationError) (interface{}, bool) {
	arr, ok := value.([]interface{})
	if !ok {
		verr.Add(path, "must be an array")
		return nil, false
	}
	if rule.MinLength != nil && len(arr) < *rule.MinLength {
		verr.Add(path, fmt.Sprintf("must have at least %d items", *rule.MinLength))
		return nil, false
	}
	if rule.MaxLength != nil && len(arr) > *rule.MaxLength {
		verr.Add(path, fmt.Sprintf("must have at most %d items", *rule.MaxLength))
		return nil, false
	}
	return arr, true
}

// stripBiDi removes directional control characters from a single field value.
// The full Unicode pipeline lives in internal/sanitize; this is the narrow
// per-field variant schemas can opt into.
func stripBiDi(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '\u202a' && r <= '\u202e') ||
			(r >= '\u2066' && r <= '\u2069') ||
			r == '\u200e' || r == '\u200f' || r == '\u061c' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func containsHebrew(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hebrew, r) {
			return true
		}
	}
	return false
}
