package resilience

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coderun/orchestrator/domain/orcherrors"
	"github.com/coderun/orchestrator/llm"
)

type stubLLMClient struct {
	err error
}

func (s *stubLLMClient) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Text: "ok", ResolvedModel: req.Model}, nil
}

func TestAdaptiveRateLimiterWrapsGenerate(t *testing.T) {
	lim := NewAdaptiveRateLimiter(60000, 60000)
	client := lim.Wrap(&stubLLMClient{})

	resp, err := client.Generate(context.Background(), &llm.Request{
		Model:     "m",
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
		MaxTokens: 100,
	})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text)
}

func TestAdaptiveRateLimiterBacksOffOnServiceUnavailable(t *testing.T) {
	lim := NewAdaptiveRateLimiter(1000, 1000)
	initial := lim.CurrentTPM()
	client := lim.Wrap(&stubLLMClient{err: orcherrors.New(orcherrors.KindServiceUnavailable, "quota exhausted")})

	_, err := client.Generate(context.Background(), &llm.Request{
		Model:     "m",
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
		MaxTokens: 100,
	})
	require.Error(t, err)
	require.Less(t, lim.CurrentTPM(), initial)
}

func TestAdaptiveRateLimiterProbesUpOnSuccess(t *testing.T) {
	lim := NewAdaptiveRateLimiter(1000, 2000)
	lim.backoff()
	afterBackoff := lim.CurrentTPM()
	client := lim.Wrap(&stubLLMClient{})

	_, err := client.Generate(context.Background(), &llm.Request{
		Model:     "m",
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
		MaxTokens: 100,
	})
	require.NoError(t, err)
	require.Greater(t, lim.CurrentTPM(), afterBackoff)
}

func TestAdaptiveRateLimiterCancellation(t *testing.T) {
	lim := NewAdaptiveRateLimiter(1, 1)
	client := lim.Wrap(&stubLLMClient{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Generate(ctx, &llm.Request{
		Model:     "m",
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: string(make([]byte, 10000))}},
		MaxTokens: 100,
	})
	require.Error(t, err)
	kind, ok := orcherrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, orcherrors.KindCancelled, kind)
}
