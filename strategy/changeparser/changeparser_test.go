package changeparser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSingleFile(t *testing.T) {
	raw := "FILE: README.md\n```md\nhello world\n```\n"
	changes := Parse(raw, nil)
	require.Len(t, changes, 1)
	require.Equal(t, "README.md", changes[0].FilePath)
	require.Equal(t, "md", changes[0].Language)
	require.Equal(t, "hello world", changes[0].Content)
}

func TestParseUsesDeclaredLanguageOverExtension(t *testing.T) {
	raw := "FILE: main.go\n```python\nprint(1)\n```\n"
	changes := Parse(raw, nil)
	require.Len(t, changes, 1)
	require.Equal(t, "python", changes[0].Language)
}

func TestParseMultipleFiles(t *testing.T) {
	raw := "FILE: a.go\n```go\npackage a\n```\nFILE: b.go\n```go\npackage b\n```\n"
	changes := Parse(raw, nil)
	require.Len(t, changes, 2)
	require.Equal(t, "a.go", changes[0].FilePath)
	require.Equal(t, "b.go", changes[1].FilePath)
}

func TestParseDropsUnmatchedTrailingDirective(t *testing.T) {
	raw := "FILE: real.go\n```go\npackage real\n```\nFILE: orphan.go\nno fence follows this one\n"
	changes := Parse(raw, nil)
	require.Len(t, changes, 1)
	require.Equal(t, "real.go", changes[0].FilePath)
}

func TestParseNoDirectivesReturnsEmpty(t *testing.T) {
	changes := Parse("just some prose, no directives here", nil)
	require.Empty(t, changes)
}
