// Package modelregistry discovers and caches the set of models available
// from configured LLM providers: an in-memory map guarded by a mutex, a
// TTL past which the snapshot is considered stale, and a refresh path that
// only one caller may run at a time. The registry refreshes its whole
// snapshot on demand (or lazily on a stale List()), so the single-flight
// guard is a plain mutex plus in-flight flag rather than a per-key
// channel loop.
package modelregistry

import (
	"context"
	"sync"
	"time"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/telemetry"
)

// ProviderLister discovers the models available from one provider. A
// concrete LLM provider adapter (or a thin wrapper around it) implements
// this to participate in registry refresh.
type ProviderLister interface {
	Provider() string
	ListModels(ctx context.Context) ([]domain.ModelInfo, error)
}

// Config configures a Registry.
type Config struct {
	RefreshTTL time.Duration // default 5 minutes
}

// Registry maintains an in-memory, TTL-cached view of available models
// across providers plus a static default set.
type Registry struct {
	mu         sync.RWMutex
	models     map[string]domain.ModelInfo
	lastLoaded time.Time
	ttl        time.Duration

	providers []ProviderLister
	log       telemetry.Logger

	refreshMu   sync.Mutex
	refreshing  bool
	refreshDone chan struct{}
}

// New constructs a Registry seeded with the static default cloud models.
// logger may be nil.
func New(cfg Config, providers []ProviderLister, logger telemetry.Logger) *Registry {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	ttl := cfg.RefreshTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	r := &Registry{
		models:    make(map[string]domain.ModelInfo),
		ttl:       ttl,
		providers: providers,
		log:       logger,
	}
	for _, m := range DefaultCloudModels() {
		r.models[m.Name] = m
	}
	return r
}

// List returns every known model, refreshing first if the cache is stale.
func (r *Registry) List(ctx context.Context) []domain.ModelInfo {
	r.maybeRefresh(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ModelInfo, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	return out
}

// ListByProvider filters List by provider name.
func (r *Registry) ListByProvider(ctx context.Context, provider string) []domain.ModelInfo {
	all := r.List(ctx)
	out := make([]domain.ModelInfo, 0, len(all))
	for _, m := range all {
		if m.Provider == provider {
			out = append(out, m)
		}
	}
	return out
}

// IsAvailable reports whether name is a known, available model.
func (r *Registry) IsAvailable(ctx context.Context, name string) bool {
	r.maybeRefresh(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return ok && m.Available
}

func (r *Registry) maybeRefresh(ctx context.Context) {
	r.mu.RLock()
	stale := time.Since(r.lastLoaded) > r.ttl
	r.mu.RUnlock()
	if stale {
		r.Refresh(ctx)
	}
}

// Refresh queries every configured provider and merges the result with the
// static default set. A single in-flight refresh is allowed at a time;
// concurrent callers wait for it rather than triggering a duplicate.
// Failures from individual providers are logged and skipped — the registry
// stays usable with partial results.
func (r *Registry) Refresh(ctx context.Context) {
	r.refreshMu.Lock()
	if r.refreshing {
		done := r.refreshDone
		r.refreshMu.Unlock()
		<-done
		return
	}
	r.refreshing = true
	r.refreshDone = make(chan struct{})
	r.refreshMu.Unlock()

	defer func() {
		r.refreshMu.Lock()
		r.refreshing = false
		close(r.refreshDone)
		r.refreshMu.Unlock()
	}()

	merged := make(map[string]domain.ModelInfo)
	for _, m := range DefaultCloudModels() {
		merged[m.Name] = m
	}
	for _, p := range r.providers {
		models, err := p.ListModels(ctx)
		if err != nil {
			r.log.Warn(ctx, "model registry: provider refresh failed", "provider", p.Provider(), "error", err)
			continue
		}
		for _, m := range models {
			merged[m.Name] = m
		}
	}

	r.mu.Lock()
	r.models = merged
	r.lastLoaded = time.Now()
	r.mu.Unlock()
}

// DefaultCloudModels is the hardcoded, always-available fallback set.
func DefaultCloudModels() []domain.ModelInfo {
	now := time.Now()
	all := domain.CapabilityAll
	return []domain.ModelInfo{
		{Name: "claude-3-5-sonnet-latest", Provider: "anthropic", DisplayName: "Claude 3.5 Sonnet", Capabilities: all, Available: true, LastUpdated: now},
		{Name: "claude-3-5-haiku-latest", Provider: "anthropic", DisplayName: "Claude 3.5 Haiku", Capabilities: all, Available: true, LastUpdated: now},
		{Name: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o", Capabilities: all, Available: true, LastUpdated: now},
		{Name: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o mini", Capabilities: all, Available: true, LastUpdated: now},
		{Name: "anthropic.claude-3-sonnet", Provider: "bedrock", DisplayName: "Claude 3 Sonnet (Bedrock)", Capabilities: all, Available: true, LastUpdated: now},
	}
}
