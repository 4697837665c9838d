// Package changeparser extracts domain.CodeChanges from LLM output in the
// shared grammar every strategy uses:
//
//	FILE: <path>
//	```<lang>
//	<content>
//	```
//
// For each FILE: directive, the parser associates the nearest subsequent
// fenced code block; unmatched directives are logged and dropped, never
// thrown.
// Regex operations run under an explicit timeout so pathological input
// cannot hang a strategy.
package changeparser

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/telemetry"
)

// DefaultTimeout is the regex-matching budget; callers needing a shorter
// one can pass their own to ParseWithTimeout.
const DefaultTimeout = 2 * time.Second

var (
	filePattern  = regexp.MustCompile(`(?m)^FILE:\s*(.+?)\s*$`)
	fencePattern = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)\\n(.*?)\\n?```")
)

// Parse extracts CodeChanges from raw LLM output using the default timeout.
func Parse(raw string, logger telemetry.Logger) []domain.CodeChange {
	return ParseWithTimeout(raw, DefaultTimeout, logger)
}

// ParseWithTimeout is Parse with an explicit regex-matching budget. If the
// budget elapses, parsing is abandoned and no changes are returned — it
// never hangs and never panics.
func ParseWithTimeout(raw string, timeout time.Duration, logger telemetry.Logger) []domain.CodeChange {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type result struct {
		changes []domain.CodeChange
	}
	done := make(chan result, 1)
	go func() {
		done <- result{changes: parse(raw, logger)}
	}()

	select {
	case r := <-done:
		return r.changes
	case <-ctx.Done():
		logger.Warn(context.Background(), "changeparser: regex timeout, returning no changes", "timeout", timeout)
		return nil
	}
}

func parse(raw string, logger telemetry.Logger) []domain.CodeChange {
	fileMatches := filePattern.FindAllStringSubmatchIndex(raw, -1)
	fenceMatches := fencePattern.FindAllStringSubmatch(raw, -1)
	fenceIdx := fencePattern.FindAllStringIndex(raw, -1)

	var changes []domain.CodeChange
	fenceCursor := 0
	for _, m := range fileMatches {
		path := strings.TrimSpace(raw[m[2]:m[3]])
		directiveEnd := m[1]

		// Advance to the nearest fenced block starting at or after the
		// directive; unmatched directives (no following fence) are logged
		// and dropped rather than failing the parse.
		found := false
		for fenceCursor < len(fenceIdx) {
			if fenceIdx[fenceCursor][0] >= directiveEnd {
				found = true
				break
			}
			fenceCursor++
		}
		if !found {
			logger.Warn(context.Background(), "changeparser: unmatched FILE directive, dropping", "path", path)
			continue
		}

		lang := fenceMatches[fenceCursor][1]
		content := fenceMatches[fenceCursor][2]
		if lang == "" {
			lang = inferLanguage(path)
		}
		kind := domain.ChangeModify
		if content == "" {
			kind = domain.ChangeDelete
		}
		changes = append(changes, domain.CodeChange{
			FilePath: path,
			Language: lang,
			Content:  content,
			Kind:     kind,
		})
		fenceCursor++
	}
	return changes
}

func inferLanguage(path string) string {
	ext := ""
	if i := strings.LastIndex(path, "."); i >= 0 {
		ext = strings.ToLower(path[i+1:])
	}
	switch ext {
	case "go":
		return "go"
	case "js", "jsx":
		return "javascript"
	case "ts", "tsx":
		return "typescript"
	case "py":
		return "python"
	case "java":
		return "java"
	case "rb":
		return "ruby"
	case "rs":
		return "rust"
	case "md":
		return "markdown"
	case "json":
		return "json"
	case "yaml", "yml":
		return "yaml"
	default:
		return ""
	}
}
