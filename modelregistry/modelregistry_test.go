package modelregistry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coderun/orchestrator/domain"
)

type fakeProvider struct {
	name   string
	models []domain.ModelInfo
	err    error
	calls  int64
}

func (p *fakeProvider) Provider() string { return p.name }

func (p *fakeProvider) ListModels(context.Context) ([]domain.ModelInfo, error) {
	atomic.AddInt64(&p.calls, 1)
	if p.err != nil {
		return nil, p.err
	}
	return p.models, nil
}

func TestListIncludesDefaultCloudModels(t *testing.T) {
	r := New(Config{}, nil, nil)
	models := r.List(context.Background())
	names := make(map[string]bool, len(models))
	for _, m := range models {
		names[m.Name] = true
	}
	require.True(t, names["gpt-4o-mini"])
	require.True(t, names["claude-3-5-sonnet-latest"])
}

func TestRefreshMergesProviderModels(t *testing.T) {
	p := &fakeProvider{name: "local", models: []domain.ModelInfo{
		{Name: "local-coder", Provider: "local", Available: true},
	}}
	r := New(Config{}, []ProviderLister{p}, nil)

	r.Refresh(context.Background())

	require.True(t, r.IsAvailable(context.Background(), "local-coder"))
	require.True(t, r.IsAvailable(context.Background(), "gpt-4o"))
}

func TestRefreshSkipsFailingProvider(t *testing.T) {
	ok := &fakeProvider{name: "ok", models: []domain.ModelInfo{
		{Name: "ok-model", Provider: "ok", Available: true},
	}}
	bad := &fakeProvider{name: "bad", err: errors.New("listing failed")}
	r := New(Config{}, []ProviderLister{bad, ok}, nil)

	r.Refresh(context.Background())

	// The failing provider is skipped; the registry stays usable with
	// partial results.
	require.True(t, r.IsAvailable(context.Background(), "ok-model"))
	require.True(t, r.IsAvailable(context.Background(), "gpt-4o-mini"))
}

func TestListByProviderFilters(t *testing.T) {
	r := New(Config{}, nil, nil)
	anthropic := r.ListByProvider(context.Background(), "anthropic")
	require.NotEmpty(t, anthropic)
	for _, m := range anthropic {
		require.Equal(t, "anthropic", m.Provider)
	}
}

func TestIsAvailableFalseForUnknownModel(t *testing.T) {
	r := New(Config{}, nil, nil)
	require.False(t, r.IsAvailable(context.Background(), "no-such-model"))
}

func TestListWithinTTLDoesNotRefreshAgain(t *testing.T) {
	p := &fakeProvider{name: "local"}
	r := New(Config{RefreshTTL: time.Hour}, []ProviderLister{p}, nil)

	r.Refresh(context.Background())
	r.List(context.Background())
	r.List(context.Background())

	require.Equal(t, int64(1), atomic.LoadInt64(&p.calls))
}

func TestConcurrentRefreshIsSingleFlight(t *testing.T) {
	p := &fakeProvider{name: "local"}
	r := New(Config{RefreshTTL: time.Hour}, []ProviderLister{p}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.List(context.Background())
		}()
	}
	wg.Wait()

	// All 16 stale List calls collapse onto a bounded number of provider
	// queries; a stampede would produce one call each.
	require.LessOrEqual(t, atomic.LoadInt64(&p.calls), int64(2))
}
