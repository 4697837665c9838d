package multiagent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/llm"
	"github.com/coderun/orchestrator/llm/mock"
	"github.com/coderun/orchestrator/strategy"
)

const planJSON = `{"subtasks":[
	{"id":"1","title":"add handler","description":"add the HTTP handler","affected_files":["handler.go"],"estimated_complexity":3,"depends_on":[]},
	{"id":"2","title":"wire route","description":"register the route","affected_files":["routes.go"],"estimated_complexity":2,"depends_on":["1"]}
],"strategy_note":"two sequential subtasks"}`

func responder(t *testing.T) func(req *llm.Request) (string, error) {
	return func(req *llm.Request) (string, error) {
		sys := ""
		if len(req.Messages) > 0 {
			sys = req.Messages[0].Content
		}
		switch {
		case strings.Contains(sys, "decomposing"):
			return planJSON, nil
		case strings.Contains(sys, "implementing one subtask"):
			var file string
			last := req.Messages[len(req.Messages)-1].Content
			switch {
			case strings.Contains(last, "handler.go"):
				file = "handler.go"
			default:
				file = "routes.go"
			}
			return "FILE: " + file + "\n```go\npackage app\n```\n", nil
		case strings.Contains(sys, "code reviewer"):
			b, err := json.Marshal(map[string]any{"is_approved": true, "issues": []any{}})
			require.NoError(t, err)
			return string(b), nil
		case strings.Contains(sys, "test engineer"):
			return "PASS\n", nil
		default:
			t.Fatalf("unexpected system prompt: %s", sys)
			return "", nil
		}
	}
}

func TestExecuteRunsFullPipelineSuccessfully(t *testing.T) {
	client := mock.New()
	client.Responder = responder(t)
	s := New(client, "mock-model", Config{}, nil, nil)
	task := domain.NewCodingTask("user-1", "add endpoint", "add a new HTTP endpoint")

	result := s.Execute(context.Background(), task, strategy.TaskExecutionContext{})

	require.True(t, result.Success)
	require.Len(t, result.Changes, 2)
	require.Greater(t, result.TotalTokens, 0)
}

func TestExecuteFailsWhenReviewerRejects(t *testing.T) {
	client := mock.New()
	client.Responder = func(req *llm.Request) (string, error) {
		sys := req.Messages[0].Content
		switch {
		case strings.Contains(sys, "decomposing"):
			return planJSON, nil
		case strings.Contains(sys, "implementing one subtask"):
			last := req.Messages[len(req.Messages)-1].Content
			file := "routes.go"
			if strings.Contains(last, "handler.go") {
				file = "handler.go"
			}
			return "FILE: " + file + "\n```go\npackage app\n```\n", nil
		case strings.Contains(sys, "code reviewer"):
			b, _ := json.Marshal(map[string]any{
				"is_approved": false,
				"issues":      []map[string]string{{"file_path": "handler.go", "severity": "major", "message": "missing error handling"}},
			})
			return string(b), nil
		default:
			return "PASS\n", nil
		}
	}
	s := New(client, "mock-model", Config{}, nil, nil)
	task := domain.NewCodingTask("user-1", "add endpoint", "add a new HTTP endpoint")

	result := s.Execute(context.Background(), task, strategy.TaskExecutionContext{})

	require.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
}

func TestExecuteResolvesFileConflictLastWriteWins(t *testing.T) {
	conflictPlan := `{"subtasks":[
		{"id":"1","title":"first pass","description":"write version A","affected_files":["src/a.go"],"estimated_complexity":2,"depends_on":[]},
		{"id":"2","title":"second pass","description":"write version B","affected_files":["src/a.go"],"estimated_complexity":2,"depends_on":["1"]}
	],"strategy_note":"both subtasks touch the same file"}`
	client := mock.New()
	client.Responder = func(req *llm.Request) (string, error) {
		sys := req.Messages[0].Content
		last := req.Messages[len(req.Messages)-1].Content
		switch {
		case strings.Contains(sys, "decomposing"):
			return conflictPlan, nil
		case strings.Contains(sys, "implementing one subtask"):
			content := "package a // A"
			if strings.Contains(last, "second pass") {
				content = "package a // B"
			}
			return "FILE: src/a.go\n```go\n" + content + "\n```\n", nil
		case strings.Contains(sys, "code reviewer"):
			return `{"is_approved": true, "issues": []}`, nil
		default:
			return "PASS\n", nil
		}
	}
	s := New(client, "mock-model", Config{}, nil, nil)
	task := domain.NewCodingTask("user-1", "rework file", "rework the same file twice")

	result := s.Execute(context.Background(), task, strategy.TaskExecutionContext{})

	require.True(t, result.Success)
	require.Len(t, result.Changes, 1)
	require.Equal(t, "src/a.go", result.Changes[0].FilePath)
	require.Equal(t, "package a // B", result.Changes[0].Content)
}

func TestSameWaveConflictMergesByCompletionOrder(t *testing.T) {
	// Both subtasks touch the same file with no dependency edge between
	// them, so they race within one wave. The slower coder finishes last
	// and must win the merge.
	sameWavePlan := `{"subtasks":[
		{"id":"1","title":"fast pass","description":"write version A","affected_files":["src/a.go"],"estimated_complexity":2,"depends_on":[]},
		{"id":"2","title":"slow pass","description":"write version B","affected_files":["src/a.go"],"estimated_complexity":2,"depends_on":[]}
	],"strategy_note":"racing subtasks"}`
	client := mock.New()
	client.Responder = func(req *llm.Request) (string, error) {
		sys := req.Messages[0].Content
		last := req.Messages[len(req.Messages)-1].Content
		switch {
		case strings.Contains(sys, "decomposing"):
			return sameWavePlan, nil
		case strings.Contains(sys, "implementing one subtask"):
			content := "package a // A"
			if strings.Contains(last, "slow pass") {
				time.Sleep(50 * time.Millisecond)
				content = "package a // B"
			}
			return "FILE: src/a.go\n```go\n" + content + "\n```\n", nil
		case strings.Contains(sys, "code reviewer"):
			return `{"is_approved": true, "issues": []}`, nil
		default:
			return "PASS\n", nil
		}
	}
	s := New(client, "mock-model", Config{}, nil, nil)
	task := domain.NewCodingTask("user-1", "rework file", "rework the same file concurrently")

	result := s.Execute(context.Background(), task, strategy.TaskExecutionContext{})

	require.True(t, result.Success)
	require.Len(t, result.Changes, 1)
	require.Equal(t, "package a // B", result.Changes[0].Content)
}

func TestExecuteReturnsCancelledWhenContextAlreadyDone(t *testing.T) {
	client := mock.New()
	s := New(client, "mock-model", Config{}, nil, nil)
	task := domain.NewCodingTask("user-1", "add endpoint", "add a new HTTP endpoint")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := s.Execute(ctx, task, strategy.TaskExecutionContext{})

	require.False(t, result.Success)
	require.Equal(t, []string{"cancelled"}, result.Errors)
}

func TestBuildWavesOrdersByDependency(t *testing.T) {
	subtasks := []domain.SubTask{
		{ID: "3", DependsOn: []string{"1", "2"}},
		{ID: "1"},
		{ID: "2", DependsOn: []string{"1"}},
	}
	waves := buildWaves(subtasks)
	require.Len(t, waves, 3)
	require.Equal(t, "1", waves[0][0].ID)
	require.Equal(t, "2", waves[1][0].ID)
	require.Equal(t, "3", waves[2][0].ID)
}
