package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavnit/docshield/pkg/constants"
	"github.com/tavnit/docshield/pkg/errors"
)

func TestSanitize_StripsBiDiControls(t *testing.T) {
	s := New(DefaultConfig())

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"RTL override", "invoice\u202egnp.exe", "invoicegnp.exe"},
		{"LTR embedding", "\u202aשלום\u202c", "שלום"},
		{"isolates", "\u2066abc\u2069", "abc"},
		{"directional marks", "a\u200eb\u200fc", "abc"},
		{"arabic letter mark", "a\u061cb", "ab"},
		{"all override range", "\u202a\u202b\u202c\u202d\u202eok", "ok"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.Sanitize(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			for _, r := range got {
				assert.False(t, isBiDiControl(r), "residual BiDi control %U", r)
			}
		})
	}
}

func TestSanitize_StripsZeroWidth(t *testing.T) {
	s := New(DefaultConfig())

	got, err := s.Sanitize("pa\u200bss\u200cwo\u200drd")
	require.NoError(t, err)
	assert.Equal(t, "password", got)
}

func TestSanitize_NFC(t *testing.T) {
	s := New(DefaultConfig())

	// "é" decomposed (e + combining acute) collapses to the precomposed form.
	got, err := s.Sanitize("café")
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", got)
}

func TestSanitize_Idempotent(t *testing.T) {
	s := New(DefaultConfig())

	inputs := []string{
		"שלום עולם",
		"hello\u202e world\u200b",
		"café ordered",
		"מסמך form-7 (final)",
	}
	for _, in := range inputs {
		once, err := s.Sanitize(in)
		require.NoError(t, err)
		twice, err := s.Sanitize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestSanitize_HomographDetection(t *testing.T) {
	s := New(DefaultConfig())

	t.Run("Latin plus Cyrillic is rejected", func(t *testing.T) {
		// "pаypal" with Cyrillic а (U+0430).
		_, err := s.Sanitize("pаypal")
		require.Error(t, err)
		se, ok := errors.AsSecurityError(err)
		require.True(t, ok)
		assert.Equal(t, constants.ErrCodeHomographAttack, se.Code)
		assert.Contains(t, se.Message, "Latin")
		assert.Contains(t, se.Message, "Cyrillic")
	})

	t.Run("Hebrew plus Cyrillic is rejected", func(t *testing.T) {
		_, err := s.Sanitize("שלוםа")
		require.Error(t, err)
		se, _ := errors.AsSecurityError(err)
		assert.Equal(t, constants.ErrCodeHomographAttack, se.Code)
	})

	t.Run("permitted mixes pass through", func(t *testing.T) {
		for _, in := range []string{
			"שלום עולם",        // pure Hebrew
			"שלום hello",       // Hebrew+Latin
			"invoice 42",       // Latin+digit
			"טופס 123",         // Hebrew+digit
			"только кириллица", // pure Cyrillic
		} {
			got, err := s.Sanitize(in)
			require.NoError(t, err, "input %q", in)
			assert.Equal(t, in, got)
		}
	})

	t.Run("punctuation and whitespace are ignored", func(t *testing.T) {
		_, err := s.Sanitize("шлях, (путь)!")
		assert.NoError(t, err)
	})
}

func TestSanitize_StagesTogglable(t *testing.T) {
	t.Run("homograph detection disabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.DetectHomographs = false
		s := New(cfg)

		got, err := s.Sanitize("pаypal")
		require.NoError(t, err)
		assert.Equal(t, "pаypal", got)
	})

	t.Run("BiDi stripping disabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RemoveBiDi = false
		s := New(cfg)

		got, err := s.Sanitize("a\u202eb")
		require.NoError(t, err)
		assert.Contains(t, got, "\u202e")
	})

	t.Run("NFC disabled leaves decomposed form", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.NormalizeUnicode = false
		s := New(cfg)

		got, err := s.Sanitize("é")
		require.NoError(t, err)
		assert.Equal(t, "é", got)
	})

	t.Run("everything disabled is a passthrough", func(t *testing.T) {
		s := New(Config{})
		in := "pаypal\u202e\u200b"
		got, err := s.Sanitize(in)
		require.NoError(t, err)
		assert.Equal(t, in, got)
	})
}

func TestSanitize_ConfigurablePairs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SuspiciousPairs = []ScriptPair{{A: ScriptLatin, B: ScriptHebrew}}
	s := New(cfg)

	// With a custom table, Latin+Hebrew becomes suspicious...
	_, err := s.Sanitize("hello שלום")
	require.Error(t, err)

	// ...and Latin+Cyrillic is no longer flagged.
	_, err = s.Sanitize("pаypal")
	assert.NoError(t, err)
}

func TestSanitizeBatch(t *testing.T) {
	s := New(DefaultConfig())

	t.Run("clean batch", func(t *testing.T) {
		got, err := s.SanitizeBatch([]string{"שלום", "a\u200bb"})
		require.NoError(t, err)
		assert.Equal(t, []string{"שלום", "ab"}, got)
	})

	t.Run("fails on first bad member", func(t *testing.T) {
		_, err := s.SanitizeBatch([]string{"fine", "pаypal", "also fine"})
		require.Error(t, err)
	})
}

func TestSanitize_LongHebrewDocument(t *testing.T) {
	s := New(DefaultConfig())

	doc := strings.Repeat("חוזה שכירות סעיף 12: ", 200)
	got, err := s.Sanitize(doc)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}
