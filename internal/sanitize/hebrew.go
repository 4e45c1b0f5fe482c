// Package sanitize hardens untrusted text destined for document templates.
// Hebrew content is first-class: right-to-left text is preserved while the
// BiDi control characters that can visually disguise it are stripped, and
// mixed-script homograph spoofing is detected.
package sanitize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/tavnit/docshield/pkg/errors"
)

// Script is the coarse classification used for homograph detection.
type Script string

const (
	ScriptLatin    Script = "Latin"
	ScriptCyrillic Script = "Cyrillic"
	ScriptHebrew   Script = "Hebrew"
	ScriptDigit    Script = "Digit"
	ScriptOther    Script = "Other"
)

// ScriptPair names two scripts whose co-occurrence in one value is treated as
// a spoofing attempt.
type ScriptPair struct {
	A Script
	B Script
}

// DefaultSuspiciousPairs flags Latin+Cyrillic and Hebrew+Cyrillic. Latin+Hebrew
// is legitimate in this domain (bilingual documents) and digits mix with
// everything.
func DefaultSuspiciousPairs() []ScriptPair {
	return []ScriptPair{
		{A: ScriptLatin, B: ScriptCyrillic},
		{A: ScriptHebrew, B: ScriptCyrillic},
	}
}

// Config toggles each pipeline stage independently.
type Config struct {
	// RemoveBiDi strips directional embedding/override/isolate controls.
	RemoveBiDi bool `mapstructure:"remove_bidi"`

	// RemoveZeroWidth strips zero-width space/joiner/non-joiner.
	RemoveZeroWidth bool `mapstructure:"remove_zero_width"`

	// NormalizeUnicode applies canonical composition (NFC).
	NormalizeUnicode bool `mapstructure:"normalize_unicode"`

	// DetectHomographs rejects values mixing mutually suspicious scripts.
	DetectHomographs bool `mapstructure:"detect_homographs"`

	// SuspiciousPairs overrides the flagged script pairs. Nil means
	// DefaultSuspiciousPairs.
	SuspiciousPairs []ScriptPair `mapstructure:"-"`
}

// DefaultConfig enables every stage.
func DefaultConfig() Config {
	return Config{
		RemoveBiDi:       true,
		RemoveZeroWidth:  true,
		NormalizeUnicode: true,
		DetectHomographs: true,
	}
}

// Sanitizer applies the configured stages in a fixed order: BiDi strip,
// zero-width strip, NFC, homograph detection. The pipeline is idempotent:
// Sanitize(Sanitize(x)) == Sanitize(x).
type Sanitizer struct {
	cfg   Config
	pairs map[ScriptPair]struct{}
}

// New creates a Sanitizer.
func New(cfg Config) *Sanitizer {
	pairs := cfg.SuspiciousPairs
	if pairs == nil {
		pairs = DefaultSuspiciousPairs()
	}
	set := make(map[ScriptPair]struct{}, len(pairs)*2)
	for _, p := range pairs {
		set[p] = struct{}{}
		set[ScriptPair{A: p.B, B: p.A}] = struct{}{}
	}
	return &Sanitizer{cfg: cfg, pairs: set}
}

// isBiDiControl reports whether r overrides or isolates bidirectional
// rendering order: U+202A..U+202E (embedding/override), U+2066..U+2069
// (isolates), U+200E/U+200F (directional marks), U+061C (Arabic letter mark).
func isBiDiControl(r rune) bool {
	switch {
	case r >= '\u202a' && r <= '\u202e':
		return true
	case r >= '\u2066' && r <= '\u2069':
		return true
	case r == '\u200e' || r == '\u200f':
		return true
	case r == '\u061c':
		return true
	}
	return false
}

// isZeroWidth reports whether r is U+200B (space), U+200C (non-joiner), or
// U+200D (joiner).
func isZeroWidth(r rune) bool {
	return r == '\u200b' || r == '\u200c' || r == '\u200d'
}

// classify buckets a rune for homograph purposes. Whitespace and punctuation
// are skipped by the caller.
func classify(r rune) Script {
	switch {
	case unicode.IsDigit(r):
		return ScriptDigit
	case unicode.Is(unicode.Latin, r):
		return ScriptLatin
	case unicode.Is(unicode.Cyrillic, r):
		return ScriptCyrillic
	case unicode.Is(unicode.Hebrew, r):
		return ScriptHebrew
	default:
		return ScriptOther
	}
}

// Sanitize runs the configured pipeline over text. It returns the cleaned
// string, or a HOMOGRAPH_ATTACK error naming the offending scripts when
// detection is enabled and mutually suspicious scripts co-occur.
func (s *Sanitizer) Sanitize(text string) (string, error) {
	if s.cfg.RemoveBiDi || s.cfg.RemoveZeroWidth {
		var b strings.Builder
		b.Grow(len(text))
		for _, r := range text {
			if s.cfg.RemoveBiDi && isBiDiControl(r) {
				continue
			}
			if s.cfg.RemoveZeroWidth && isZeroWidth(r) {
				continue
			}
			b.WriteRune(r)
		}
		text = b.String()
	}

	if s.cfg.NormalizeUnicode {
		text = norm.NFC.String(text)
	}

	if s.cfg.DetectHomographs {
		if err := s.detectHomographs(text); err != nil {
			return "", err
		}
	}

	return text, nil
}

// SanitizeBatch sanitizes every value, failing on the first rejection.
func (s *Sanitizer) SanitizeBatch(texts []string) ([]string, error) {
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		clean, err := s.Sanitize(t)
		if err != nil {
			return nil, err
		}
		out = append(out, clean)
	}
	return out, nil
}

// detectHomographs classifies every non-whitespace, non-punctuation rune and
// rejects the value when any configured suspicious pair co-occurs.
func (s *Sanitizer) detectHomographs(text string) error {
	seen := make(map[Script]struct{}, 4)
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		seen[classify(r)] = struct{}{}
	}

	scripts := make([]Script, 0, len(seen))
	for sc := range seen {
		scripts = append(scripts, sc)
	}
	for i := 0; i < len(scripts); i++ {
		for j := i + 1; j < len(scripts); j++ {
			if _, bad := s.pairs[ScriptPair{A: scripts[i], B: scripts[j]}]; bad {
				return errors.ErrHomographAttack([]string{string(scripts[i]), string(scripts[j])})
			}
		}
	}
	return nil
}
