// Package validator performs structural, best-effort checks on proposed
// code changes. It is stateless and pure: no I/O, never panics, only ever
// returns a result describing what it found.
package validator

import (
	"fmt"
	"strings"

	"github.com/coderun/orchestrator/domain"
)

// Result is the outcome of validating a set of changes.
type Result struct {
	Success bool
	Errors  []string
}

// Validate performs structural checks only: non-empty file path,
// non-empty content on non-Delete changes, and a best-effort per-language
// syntax sanity check. The core never relies on this to catch semantic
// bugs.
func Validate(changes []domain.CodeChange) Result {
	var errs []string
	for i, c := range changes {
		if strings.TrimSpace(c.FilePath) == "" {
			errs = append(errs, fmt.Sprintf("change %d: file path is empty", i))
			continue
		}
		if c.Kind != domain.ChangeDelete && c.Content == "" {
			errs = append(errs, fmt.Sprintf("%s: empty content for a non-delete change", c.FilePath))
			continue
		}
		if c.Kind == domain.ChangeDelete {
			continue
		}
		if err := checkSyntax(c.FilePath, c.Language, c.Content); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", c.FilePath, err))
		}
	}
	return Result{Success: len(errs) == 0, Errors: errs}
}

// checkSyntax applies a best-effort, language-specific sanity check: brace,
// bracket, and paren balance. It never rejects a language it does not
// recognize, and it never claims more than "structurally plausible."
func checkSyntax(path, language, content string) error {
	lang := resolveLanguage(path, language)
	switch lang {
	case "go", "javascript", "typescript", "java", "c", "cpp", "csharp", "rust", "json":
		return checkBalance(content)
	default:
		return nil
	}
}

func resolveLanguage(path, declared string) string {
	if declared != "" {
		return strings.ToLower(declared)
	}
	ext := ""
	if i := strings.LastIndex(path, "."); i >= 0 {
		ext = path[i+1:]
	}
	switch strings.ToLower(ext) {
	case "go":
		return "go"
	case "js", "jsx":
		return "javascript"
	case "ts", "tsx":
		return "typescript"
	case "java":
		return "java"
	case "c", "h":
		return "c"
	case "cc", "cpp", "hpp":
		return "cpp"
	case "cs":
		return "csharp"
	case "rs":
		return "rust"
	case "json":
		return "json"
	default:
		return ""
	}
}

// checkBalance verifies braces, brackets, and parens are balanced, ignoring
// characters inside single/double/backtick-quoted strings. It is a
// heuristic, not a parser: it cannot catch every syntax error and does not
// try to.
func checkBalance(content string) error {
	var stack []byte
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}
	inString := byte(0)
	escaped := false
	for i := 0; i < len(content); i++ {
		ch := content[i]
		if inString != 0 {
			if escaped {
				escaped = false
				continue
			}
			if ch == '\\' {
				escaped = true
				continue
			}
			if ch == inString {
				inString = 0
			}
			continue
		}
		switch ch {
		case '"', '\'', '`':
			inString = ch
		case '(', '[', '{':
			stack = append(stack, ch)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[ch] {
				return fmt.Errorf("unbalanced %c", ch)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) != 0 {
		return fmt.Errorf("unbalanced %c", stack[len(stack)-1])
	}
	return nil
}
