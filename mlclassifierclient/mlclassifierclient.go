// Package mlclassifierclient is a resilient HTTP client for the external ML
// classifier service, composing the three decorators from the resilience
// package: 2 attempts at 50ms base delay, a 100ms per-call timeout, and a
// breaker that opens after 3 consecutive failures with a 30s half-open
// cooldown.
package mlclassifierclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coderun/orchestrator/domain/orcherrors"
	"github.com/coderun/orchestrator/mlclassifier"
	"github.com/coderun/orchestrator/resilience"
	"github.com/coderun/orchestrator/telemetry"
)

// HTTPDoer is the subset of *http.Client this package depends on.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration // default 100ms
}

// Client is a resilient outbound client to the ML classifier service.
type Client struct {
	http    HTTPDoer
	baseURL string
	timeout time.Duration
	retry   resilience.RetryConfig
	cb      *resilience.CircuitBreaker
	log     telemetry.Logger
}

// New constructs a Client. logger may be nil.
func New(httpClient HTTPDoer, cfg Config, logger telemetry.Logger) *Client {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	return &Client{
		http:    httpClient,
		baseURL: cfg.BaseURL,
		timeout: timeout,
		retry:   resilience.MLClassifierRetryConfig(),
		cb:      resilience.NewCircuitBreaker(resilience.MLClassifierCircuitConfig(), logger),
		log:     logger,
	}
}

// Classify calls POST /classify/ with the task description.
func (c *Client) Classify(ctx context.Context, req mlclassifier.Request) (*mlclassifier.Response, error) {
	return resilience.Execute(c.cb, func() (*mlclassifier.Response, error) {
		return resilience.Retry(ctx, c.retry, func(ctx context.Context) (*mlclassifier.Response, error) {
			return resilience.WithTimeout(ctx, c.timeout, func(ctx context.Context) (*mlclassifier.Response, error) {
				return c.doClassify(ctx, req)
			})
		})
	})
}

func (c *Client) doClassify(ctx context.Context, req mlclassifier.Request) (*mlclassifier.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindInternal, "marshal classify request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify/", bytes.NewReader(body))
	if err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindInternal, "build classify request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, orcherrors.Wrap(orcherrors.KindCancelled, "classify request cancelled", ctx.Err())
		}
		return nil, orcherrors.Wrap(orcherrors.KindTransport, "classify request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, orcherrors.New(orcherrors.KindServiceUnavailable, remoteErrorMessage(resp.StatusCode, respBody))
	}

	var out mlclassifier.Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindInternal, "decode classify response", err)
	}
	return &out, nil
}

// IsAvailable issues a lightweight health check and never returns an error:
// any failure simply reports unavailable.
func (c *Client) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// SubmitTrainingFeedback posts one feedback record to the classifier's
// training endpoint. Best-effort: callers are expected to log and swallow
// any error.
func (c *Client) SubmitTrainingFeedback(ctx context.Context, fb mlclassifier.TrainingFeedback) error {
	body, err := json.Marshal(fb)
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindInternal, "marshal training feedback", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/training/feedback", bytes.NewReader(body))
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindInternal, "build training feedback request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindTransport, "training feedback request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return orcherrors.New(orcherrors.KindServiceUnavailable, remoteErrorMessage(resp.StatusCode, respBody))
	}
	return nil
}

// Retrain triggers the classifier's retrain endpoint, used by the feedback
// service. Best-effort: callers are expected to log and
// swallow any error.
func (c *Client) Retrain(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/training/retrain", nil)
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindInternal, "build retrain request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return orcherrors.Wrap(orcherrors.KindTransport, "retrain request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return orcherrors.New(orcherrors.KindServiceUnavailable, remoteErrorMessage(resp.StatusCode, body))
	}
	return nil
}

func remoteErrorMessage(status int, body []byte) string {
	return fmt.Sprintf("remote error: status=%d body=%s", status, truncate(body, 256))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
