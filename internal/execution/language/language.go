// Package language maps language identifiers to the commands that build and run a source file.
package language

import (
	"strings"

	appErr "coderank/pkg/errors"
)

// Language is a normalized upper-case language identifier.
type Language string

const (
	Python     Language = "PYTHON"
	Java       Language = "JAVA"
	JavaScript Language = "JAVASCRIPT"
	Cpp        Language = "CPP"
)

var builtinAliases = map[string]Language{
	"PY":      Python,
	"PYTHON3": Python,
	"JS":      JavaScript,
	"NODE":    JavaScript,
	"C++":     Cpp,
	"G++":     Cpp,
}

// Normalize trims and upper-cases a raw language name.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Parse resolves a raw name to one of the built-in languages.
func Parse(raw string) (Language, error) {
	name := Normalize(raw)
	switch Language(name) {
	case Python, Java, JavaScript, Cpp:
		return Language(name), nil
	}
	if lang, ok := builtinAliases[name]; ok {
		return lang, nil
	}
	return "", unsupported(raw)
}

func (l Language) String() string {
	return string(l)
}

func unsupported(raw string) error {
	return appErr.Newf(appErr.LanguageNotSupported, "Unsupported language: %s", strings.TrimSpace(raw)).
		WithDetail("language", raw)
}
