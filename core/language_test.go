package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLanguage(t *testing.T) {
	cases := []struct {
		in   string
		want Language
		ok   bool
	}{
		{"", LanguageEnglish, true},
		{"ar", LanguageArabic, true},
		{" FR ", LanguageFrench, true},
		{"pt-BR", LanguagePortuguese, true},
		{"zh_CN", LanguageChinese, true},
		{"tlh", DefaultLanguage, false},
	}
	for _, tc := range cases {
		got, err := ParseLanguage(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		if tc.ok {
			assert.NoError(t, err, tc.in)
		} else {
			assert.ErrorIs(t, err, ErrUnsupportedLanguage, tc.in)
		}
	}
}

func TestSupportedLanguages(t *testing.T) {
	langs := SupportedLanguages()
	assert.Len(t, langs, 12)
	assert.Equal(t, LanguageArabic, langs[0])
	langs[0] = "xx"
	assert.Equal(t, LanguageArabic, SupportedLanguages()[0])
}
