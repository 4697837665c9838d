package resilience

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/coderun/orchestrator/domain/orcherrors"
	"github.com/coderun/orchestrator/llm"
)

// AdaptiveRateLimiter applies an AIMD-style adaptive token bucket in front of
// an llm.Client: it estimates the token cost of a request, blocks the caller
// until capacity is available, and halves its effective tokens-per-minute
// budget whenever the provider reports quota exhaustion, recovering it
// gradually on successful calls. The budget is process-local; there is no
// cross-process coordination.
type AdaptiveRateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM   float64
	minTPM       float64
	maxTPM       float64
	recoveryRate float64
}

// NewAdaptiveRateLimiter constructs a limiter with an initial and maximum
// tokens-per-minute budget. maxTPM is clamped up to initialTPM when lower.
func NewAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &AdaptiveRateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Wrap returns an llm.Client that enforces the adaptive budget before
// delegating Generate to next.
func (l *AdaptiveRateLimiter) Wrap(next llm.Client) llm.Client {
	return &limitedClient{next: next, limiter: l}
}

type limitedClient struct {
	next    llm.Client
	limiter *AdaptiveRateLimiter
}

// Generate implements llm.Client.
func (c *limitedClient) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindCancelled, "rate limit wait cancelled", err)
	}
	resp, err := c.next.Generate(ctx, req)
	c.limiter.observe(err)
	return resp, err
}

func (l *AdaptiveRateLimiter) wait(ctx context.Context, req *llm.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := estimateTokens(req)
	if burst := l.limiter.Burst(); n > burst {
		n = burst
	}
	return l.limiter.WaitN(ctx, n)
}

func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if kind, ok := orcherrors.KindOf(err); ok && kind == orcherrors.KindServiceUnavailable {
		l.backoff()
	}
}

func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	l.setTPMLocked(newTPM)
}

func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	l.setTPMLocked(newTPM)
}

func (l *AdaptiveRateLimiter) setTPMLocked(tpm float64) {
	if tpm == l.currentTPM {
		return
	}
	l.currentTPM = tpm
	l.limiter.SetLimit(rate.Limit(tpm / 60.0))
	l.limiter.SetBurst(int(tpm))
}

// CurrentTPM returns the limiter's current tokens-per-minute budget.
func (l *AdaptiveRateLimiter) CurrentTPM() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}

// estimateTokens computes a cheap heuristic for the number of tokens a
// request will consume: characters across all message content divided by a
// fixed ratio, plus a fixed buffer for system-prompt and provider framing
// overhead that the estimate otherwise misses.
func estimateTokens(req *llm.Request) int {
	if req == nil {
		return 500
	}
	charCount := 0
	for _, m := range req.Messages {
		charCount += len(m.Content)
	}
	if charCount <= 0 {
		return 500
	}
	tokens := charCount / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
