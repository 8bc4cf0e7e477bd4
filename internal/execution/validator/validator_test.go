package validator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"coderank/internal/execution/language"
	appErr "coderank/pkg/errors"
)

func TestValidateAcceptsSafeCode(t *testing.T) {
	t.Parallel()
	v := New(nil, 0)
	tests := []struct {
		lang   language.Language
		source string
	}{
		{language.Python, "print('hello')"},
		{language.Java, "public class Main { public static void main(String[] a) { System.out.println(1); } }"},
		{language.JavaScript, "console.log([1,2].map(x => x * 2))"},
		{language.Cpp, "#include <iostream>\nint main() { std::cout << 1; }"},
		{"RUBY", "system('ls')"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.lang), func(t *testing.T) {
			t.Parallel()
			if err := v.Validate(tt.source, tt.lang); err != nil {
				t.Fatalf("expected accept, got %v", err)
			}
		})
	}
}

func TestValidateRejectsEveryBuiltinRule(t *testing.T) {
	t.Parallel()
	v := New(nil, 0)
	samples := map[string]string{
		`import\s+os`:                   "import os\nprint(os.getcwd())",
		`import\s+subprocess`:           "import  subprocess",
		`import\s+socket`:               "import socket",
		`import\s+requests`:             "import requests",
		`__import__`:                    "x = __import__('o' + 's')",
		`exec\s*\(`:                     "exec ('1')",
		`eval\s*\(`:                     "eval('1')",
		`compile\s*\(`:                  "compile('1', 'f', 'exec')",
		`open\s*\(`:                     "open('/etc/passwd')",
		`import\s+java\.io\.File`:       "import java.io.File;",
		`import\s+java\.lang\.Runtime`:  "import java.lang.Runtime;",
		`import\s+java\.lang\.Process`:  "import java.lang.Process;",
		`import\s+java\.net`:            "import java.net.Socket;",
		`Runtime\.getRuntime`:           "Runtime.getRuntime().exec(\"ls\");",
		`ProcessBuilder`:                "new ProcessBuilder(\"ls\");",
		`System\.exit`:                  "System.exit(0);",
		`require\s*\(\s*['"]fs['"]`:            "const fs = require('fs')",
		`require\s*\(\s*['"]child_process['"]`: "require( \"child_process\" )",
		`require\s*\(\s*['"]net['"]`:           "require('net')",
		`require\s*\(\s*['"]http['"]`:          "require(\"http\")",
		`Function\s*\(`:                  "new Function('return 1')()",
		`#include\s*<fstream>`:           "#include <fstream>",
		`#include\s*<filesystem>`:        "#include<filesystem>",
		`system\s*\(`:                    "int main() { system(\"ls\"); }",
		`popen\s*\(`:                     "popen(\"ls\", \"r\");",
		`fork\s*\(`:                      "fork();",
	}

	set := DefaultRuleSet()
	for _, lang := range []language.Language{language.Python, language.Java, language.JavaScript, language.Cpp} {
		for _, rule := range set.Rules(lang) {
			lang, rule := lang, rule
			t.Run(string(lang)+"/"+rule.Pattern, func(t *testing.T) {
				t.Parallel()
				source, ok := samples[rule.Pattern]
				if !ok {
					t.Fatalf("no sample for rule %s", rule.Pattern)
				}
				err := v.Validate(source, lang)
				if !appErr.Is(err, appErr.SecurityViolation) {
					t.Fatalf("expected SecurityViolation, got %v", err)
				}
				want := "Code contains forbidden operation: " + rule.Pattern
				if err.Error() != want {
					t.Fatalf("expected %q, got %q", want, err.Error())
				}
			})
		}
	}
}

func TestValidateFirstMatchWins(t *testing.T) {
	t.Parallel()
	v := New(nil, 0)
	err := v.Validate("eval(x)\nimport os", language.Python)
	if err == nil || err.Error() != `Code contains forbidden operation: import\s+os` {
		t.Fatalf("expected first rule in table order, got %v", err)
	}
	details := appErr.GetError(err).Details
	if details["rule"] != `import\s+os` || details["ruleset_version"] != DefaultRuleSetVersion {
		t.Fatalf("unexpected details: %v", details)
	}
	if details["description"] != "operating system access" {
		t.Fatalf("expected description detail, got %v", details)
	}
}

func TestValidateEmpty(t *testing.T) {
	t.Parallel()
	v := New(nil, 0)
	for _, src := range []string{"", "   ", "\n\t\n", " \r\n "} {
		err := v.Validate(src, language.Python)
		if err == nil || err.Error() != "Code cannot be empty" {
			t.Fatalf("expected empty rejection for %q, got %v", src, err)
		}
		if appErr.GetCode(err) != appErr.SecurityViolation {
			t.Fatalf("expected security violation for %q, got %v", src, appErr.GetCode(err))
		}
	}
	if err := v.Validate("  print(1)  ", language.Python); err != nil {
		t.Fatalf("expected padded source to pass, got %v", err)
	}
}

func TestValidateLengthBoundary(t *testing.T) {
	t.Parallel()
	v := New(nil, 0)

	atLimit := strings.Repeat("a", DefaultMaxLength)
	if err := v.Validate(atLimit, language.Python); err != nil {
		t.Fatalf("expected exactly max length to pass, got %v", err)
	}

	err := v.Validate(atLimit+"a", language.Python)
	want := "Code exceeds maximum length of 10000 characters"
	if err == nil || err.Error() != want {
		t.Fatalf("expected %q, got %v", want, err)
	}
}

func TestValidateCountsCharactersNotBytes(t *testing.T) {
	t.Parallel()
	v := New(nil, 5)
	if err := v.Validate("ééééé", language.JavaScript); err != nil {
		t.Fatalf("expected five runes to pass, got %v", err)
	}
	if err := v.Validate("éééééé", language.JavaScript); err == nil {
		t.Fatalf("expected six runes to fail")
	}
}

func TestValidateRejectsForbiddenTokenInComment(t *testing.T) {
	t.Parallel()
	err := New(nil, 0).Validate("# never import os here\nprint(1)", language.Python)
	if !appErr.Is(err, appErr.SecurityViolation) {
		t.Fatalf("expected comment match to be rejected, got %v", err)
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	t.Parallel()
	v := New(nil, 0)
	inputs := []string{"print(1)", "import os", "", strings.Repeat("x", 10001)}
	for _, in := range inputs {
		first := v.Validate(in, language.Python)
		for i := 0; i < 5; i++ {
			again := v.Validate(in, language.Python)
			if (first == nil) != (again == nil) {
				t.Fatalf("expected same verdict for %q", in)
			}
			if first != nil && first.Error() != again.Error() {
				t.Fatalf("expected same reason for %q, got %q and %q", in, first.Error(), again.Error())
			}
		}
	}
}

func TestLoadRuleSet(t *testing.T) {
	t.Parallel()
	data := `
version: "2026-10"
rules:
  python:
    - pattern: 'import\s+ctypes'
      description: native calls
  RUBY:
    - pattern: 'system\s*\('
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write rules failed: %v", err)
	}
	set, err := LoadRuleSet(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if set.Version() != "2026-10" {
		t.Fatalf("expected version 2026-10, got %s", set.Version())
	}

	v := New(set, 0)
	if err := v.Validate("import os", language.Python); err != nil {
		t.Fatalf("expected custom rule set to replace defaults, got %v", err)
	}
	err = v.Validate("import ctypes", language.Python)
	if err == nil || appErr.GetError(err).Details["ruleset_version"] != "2026-10" {
		t.Fatalf("expected rejection tagged with version, got %v", err)
	}
	if err := v.Validate("system('ls')", "RUBY"); err == nil {
		t.Fatalf("expected ruby rule to apply")
	}
}

func TestParseRuleSetErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
	}{
		{name: "missing version", data: "rules: {}"},
		{name: "bad regexp", data: "version: v1\nrules:\n  PYTHON:\n    - pattern: '('"},
		{name: "bad yaml", data: "version: [unterminated"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseRuleSet([]byte(tt.data)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
