package security

import (
	"regexp"
	"strconv"
	"strings"
)

// PII categories reported by RegexPIIHandler.
const (
	PIITypeEmail      = "email"
	PIITypePhone      = "phone"
	PIITypeNationalID = "national_id"
	PIITypeCreditCard = "credit_card"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// Israeli landline/mobile formats: 0X-XXXXXXX, 05X-XXXXXXX, +972 variants.
	phonePattern = regexp.MustCompile(`(\+972[\- ]?|0)([23489]|5[0-9]|7[0-9])[\- ]?\d{3}[\- ]?\d{4}`)

	// Nine digits, optionally with separators. Validated by check digit below.
	nationalIDPattern = regexp.MustCompile(`\b\d{9}\b`)

	// 13 to 19 digits with optional separators. Validated by Luhn below.
	creditCardPattern = regexp.MustCompile(`\b(?:\d[ \-]?){13,19}\b`)
)

// RegexPIIHandler detects and masks personally identifying data with
// pattern matching plus checksum validation for identifiers that have one,
// which keeps arbitrary nine-digit numbers out of the redaction path.
type RegexPIIHandler struct{}

// NewRegexPIIHandler creates the default PII handler.
func NewRegexPIIHandler() *RegexPIIHandler {
	return &RegexPIIHandler{}
}

// DetectPII implements PIIHandler.
func (h *RegexPIIHandler) DetectPII(text string) PIIDetection {
	var types []string
	if emailPattern.MatchString(text) {
		types = append(types, PIITypeEmail)
	}
	if phonePattern.MatchString(text) {
		types = append(types, PIITypePhone)
	}
	if hasValidNationalID(text) {
		types = append(types, PIITypeNationalID)
	}
	if hasValidCreditCard(text) {
		types = append(types, PIITypeCreditCard)
	}
	return PIIDetection{Detected: len(types) > 0, Types: types}
}

// Sanitize implements PIIHandler. Each detected value is replaced by a typed
// marker so downstream templates stay renderable.
func (h *RegexPIIHandler) Sanitize(text string) string {
	text = emailPattern.ReplaceAllString(text, "[REDACTED:email]")
	text = phonePattern.ReplaceAllString(text, "[REDACTED:phone]")
	text = nationalIDPattern.ReplaceAllStringFunc(text, func(m string) string {
		if validNationalID(m) {
			return "[REDACTED:national_id]"
		}
		return m
	})
	text = creditCardPattern.ReplaceAllStringFunc(text, func(m string) string {
		if validLuhn(m) {
			return "[REDACTED:credit_card]"
		}
		return m
	})
	return text
}

func hasValidNationalID(text string) bool {
	for _, m := range nationalIDPattern.FindAllString(text, -1) {
		if validNationalID(m) {
			return true
		}
	}
	return false
}

// validNationalID applies the Israeli identity number check digit: each digit
// is weighted 1,2,1,2,... and digit products above 9 are reduced by 9; the
// total must divide by 10.
func validNationalID(s string) bool {
	if len(s) != 9 {
		return false
	}
	sum := 0
	for i, r := range s {
		d, err := strconv.Atoi(string(r))
		if err != nil {
			return false
		}
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

func hasValidCreditCard(text string) bool {
	for _, m := range creditCardPattern.FindAllString(text, -1) {
		if validLuhn(m) {
			return true
		}
	}
	return false
}

func validLuhn(s string) bool {
	s = strings.NewReplacer(" ", "", "-", "").Replace(s)
	if len(s) < 13 || len(s) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		d, err := strconv.Atoi(string(s[i]))
		if err != nil {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
