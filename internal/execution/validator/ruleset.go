package validator

import (
	"fmt"
	"os"
	"regexp"

	"coderank/internal/execution/language"

	"gopkg.in/yaml.v3"
)

// DefaultRuleSetVersion identifies the built-in rule table.
const DefaultRuleSetVersion = "builtin-1"

// Rule is one forbidden pattern.
type Rule struct {
	Pattern     string `yaml:"pattern"`
	Description string `yaml:"description"`

	re *regexp.Regexp
}

// RuleSet is an immutable, versioned table of ordered rules per language.
type RuleSet struct {
	version string
	rules   map[language.Language][]Rule
}

type ruleSetFile struct {
	Version string            `yaml:"version"`
	Rules   map[string][]Rule `yaml:"rules"`
}

// NewRuleSet compiles rules. Language keys are normalized.
func NewRuleSet(version string, rules map[language.Language][]Rule) (*RuleSet, error) {
	if version == "" {
		return nil, fmt.Errorf("rule set version is required")
	}
	compiled := make(map[language.Language][]Rule, len(rules))
	for lang, list := range rules {
		key := language.Language(language.Normalize(string(lang)))
		out := make([]Rule, 0, len(list))
		for _, rule := range list {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %q for %s: %w", rule.Pattern, key, err)
			}
			rule.re = re
			out = append(out, rule)
		}
		compiled[key] = append(compiled[key], out...)
	}
	return &RuleSet{version: version, rules: compiled}, nil
}

// ParseRuleSet reads a YAML rule set:
//
//	version: "2026-01"
//	rules:
//	  PYTHON:
//	    - pattern: 'import\s+os'
//	      description: operating system access
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var file ruleSetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rule set failed: %w", err)
	}
	rules := make(map[language.Language][]Rule, len(file.Rules))
	for lang, list := range file.Rules {
		rules[language.Language(lang)] = list
	}
	return NewRuleSet(file.Version, rules)
}

// LoadRuleSet reads a YAML rule set from path.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set failed: %w", err)
	}
	return ParseRuleSet(data)
}

// Version returns the rule set version.
func (s *RuleSet) Version() string {
	return s.version
}

// Rules returns the ordered rules for lang.
func (s *RuleSet) Rules(lang language.Language) []Rule {
	list := s.rules[lang]
	out := make([]Rule, len(list))
	copy(out, list)
	return out
}

// DefaultRuleSet returns the built-in rules.
func DefaultRuleSet() *RuleSet {
	set, err := NewRuleSet(DefaultRuleSetVersion, defaultRules())
	if err != nil {
		panic(err)
	}
	return set
}

func defaultRules() map[language.Language][]Rule {
	return map[language.Language][]Rule{
		language.Python: {
			{Pattern: `import\s+os`, Description: "operating system access"},
			{Pattern: `import\s+subprocess`, Description: "process spawning"},
			{Pattern: `import\s+socket`, Description: "network access"},
			{Pattern: `import\s+requests`, Description: "network access"},
			{Pattern: `__import__`, Description: "dynamic import"},
			{Pattern: `exec\s*\(`, Description: "dynamic code execution"},
			{Pattern: `eval\s*\(`, Description: "dynamic code execution"},
			{Pattern: `compile\s*\(`, Description: "dynamic code compilation"},
			{Pattern: `open\s*\(`, Description: "file access"},
		},
		language.Java: {
			{Pattern: `import\s+java\.io\.File`, Description: "file access"},
			{Pattern: `import\s+java\.lang\.Runtime`, Description: "runtime access"},
			{Pattern: `import\s+java\.lang\.Process`, Description: "process spawning"},
			{Pattern: `import\s+java\.net`, Description: "network access"},
			{Pattern: `Runtime\.getRuntime`, Description: "runtime access"},
			{Pattern: `ProcessBuilder`, Description: "process spawning"},
			{Pattern: `System\.exit`, Description: "virtual machine exit"},
		},
		language.JavaScript: {
			{Pattern: `require\s*\(\s*['"]fs['"]`, Description: "file access"},
			{Pattern: `require\s*\(\s*['"]child_process['"]`, Description: "process spawning"},
			{Pattern: `require\s*\(\s*['"]net['"]`, Description: "network access"},
			{Pattern: `require\s*\(\s*['"]http['"]`, Description: "network access"},
			{Pattern: `eval\s*\(`, Description: "dynamic code execution"},
			{Pattern: `Function\s*\(`, Description: "dynamic code execution"},
		},
		language.Cpp: {
			{Pattern: `#include\s*<fstream>`, Description: "file access"},
			{Pattern: `#include\s*<filesystem>`, Description: "file access"},
			{Pattern: `system\s*\(`, Description: "shell command execution"},
			{Pattern: `popen\s*\(`, Description: "process spawning"},
			{Pattern: `fork\s*\(`, Description: "process spawning"},
		},
	}
}
