// Package validator screens source code against a per-language denylist before execution.
//
// The denylist is a best-effort filter and not an isolation boundary: a
// forbidden token inside a comment or string literal is still rejected, and
// obfuscated calls are not caught.
package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"coderank/internal/execution/language"
	appErr "coderank/pkg/errors"
)

// DefaultMaxLength is the default source length limit in characters.
const DefaultMaxLength = 10000

// Validator checks source code against length and rule constraints. It is safe for concurrent use.
type Validator struct {
	rules     *RuleSet
	maxLength int
}

// New returns a validator. A nil rule set means DefaultRuleSet; a non-positive maxLength means DefaultMaxLength.
func New(rules *RuleSet, maxLength int) *Validator {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Validator{rules: rules, maxLength: maxLength}
}

// MaxLength returns the configured length limit.
func (v *Validator) MaxLength() int {
	return v.maxLength
}

// RuleSetVersion returns the version of the active rule set.
func (v *Validator) RuleSetVersion() string {
	return v.rules.version
}

// Validate returns nil when source is accepted and a SecurityViolation error otherwise.
// Languages without rules only get the empty and length checks.
func (v *Validator) Validate(source string, lang language.Language) error {
	if strings.TrimSpace(source) == "" {
		return v.reject("Code cannot be empty", "empty", "")
	}

	if n := utf8.RuneCountInString(source); n > v.maxLength {
		return v.reject(fmt.Sprintf("Code exceeds maximum length of %d characters", v.maxLength), "max_length", "").
			WithDetail("length", n)
	}

	for _, rule := range v.rules.rules[lang] {
		if rule.re.MatchString(source) {
			return v.reject("Code contains forbidden operation: "+rule.Pattern, rule.Pattern, rule.Description)
		}
	}
	return nil
}

func (v *Validator) reject(message, rule, description string) *appErr.Error {
	err := appErr.New(appErr.SecurityViolation).
		WithMessage(message).
		WithDetail("rule", rule).
		WithDetail("ruleset_version", v.rules.version)
	if description != "" {
		err = err.WithDetail("description", description)
	}
	return err
}
