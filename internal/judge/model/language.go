package model

import "fmt"

// Language is a supported submission language.
type Language string

const (
	LanguageJava   Language = "JAVA"
	LanguagePython Language = "PYTHON"
	LanguageCPP    Language = "CPP"
)

// SupportedLanguages in display order.
var SupportedLanguages = []Language{LanguageJava, LanguagePython, LanguageCPP}

// ParseLanguage accepts exactly the wire names JAVA, PYTHON and CPP.
func ParseLanguage(raw string) (Language, error) {
	switch Language(raw) {
	case LanguageJava, LanguagePython, LanguageCPP:
		return Language(raw), nil
	}
	return "", fmt.Errorf("unsupported language %q", raw)
}
