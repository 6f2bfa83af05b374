package core

import (
	"fmt"
	"strings"
)

// Language is a speech language code used for both transcription and
// synthesis.
type Language string

const (
	LanguageArabic     Language = "ar"
	LanguageGerman     Language = "de"
	LanguageEnglish    Language = "en"
	LanguageSpanish    Language = "es"
	LanguageFrench     Language = "fr"
	LanguageItalian    Language = "it"
	LanguageJapanese   Language = "ja"
	LanguageDutch      Language = "nl"
	LanguagePolish     Language = "pl"
	LanguagePortuguese Language = "pt"
	LanguageRussian    Language = "ru"
	LanguageChinese    Language = "zh"

	DefaultLanguage = LanguageEnglish
)

var supportedLanguages = []Language{
	LanguageArabic, LanguageGerman, LanguageEnglish, LanguageSpanish,
	LanguageFrench, LanguageItalian, LanguageJapanese, LanguageDutch,
	LanguagePolish, LanguagePortuguese, LanguageRussian, LanguageChinese,
}

// SupportedLanguages returns the selectable languages in display order.
func SupportedLanguages() []Language {
	out := make([]Language, len(supportedLanguages))
	copy(out, supportedLanguages)
	return out
}

// Valid reports whether l is one of SupportedLanguages.
func (l Language) Valid() bool {
	for _, s := range supportedLanguages {
		if l == s {
			return true
		}
	}
	return false
}

// ParseLanguage normalises a language code. An empty code selects
// DefaultLanguage; regional suffixes such as "pt-BR" are reduced to the base
// language.
func ParseLanguage(code string) (Language, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return DefaultLanguage, nil
	}
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	lang := Language(code)
	if !lang.Valid() {
		return DefaultLanguage, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	return lang, nil
}
