// Package githubclient is a resilient HTTP client for the external GitHub
// wrapper service, composing retry (3 attempts, 200ms base), a 5s per-call
// timeout, and the shared breaker parameters (open after 3 consecutive
// failures, 30s half-open cooldown).
package githubclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coderun/orchestrator/domain/orcherrors"
	"github.com/coderun/orchestrator/resilience"
	"github.com/coderun/orchestrator/telemetry"
)

// HTTPDoer is the subset of *http.Client this package depends on.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	ServiceURL string
	Timeout    time.Duration // default 5s
}

// PullRequest is the request body for opening a PR via the GitHub wrapper.
type PullRequest struct {
	Owner   string `json:"owner"`
	Repo    string `json:"repo"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Head    string `json:"head"`
	Base    string `json:"base"`
	IsDraft bool   `json:"isDraft"`
}

// PullRequestResult is the GitHub wrapper's response to a PR creation call.
type PullRequestResult struct {
	Number  int    `json:"number"`
	URL     string `json:"url"`
	HTMLURL string `json:"htmlUrl"`
	State   string `json:"state"`
}

// Client is a resilient outbound client to the GitHub wrapper service.
type Client struct {
	http       HTTPDoer
	serviceURL string
	timeout    time.Duration
	retry      resilience.RetryConfig
	cb         *resilience.CircuitBreaker
	log        telemetry.Logger
}

// New constructs a Client. logger may be nil.
func New(httpClient HTTPDoer, cfg Config, logger telemetry.Logger) *Client {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http:       httpClient,
		serviceURL: cfg.ServiceURL,
		timeout:    timeout,
		retry:      resilience.GitHubRetryConfig(),
		cb:         resilience.NewCircuitBreaker(resilience.GitHubCircuitConfig(), logger),
		log:        logger,
	}
}

// CreatePullRequest opens a pull request through the GitHub wrapper service.
func (c *Client) CreatePullRequest(ctx context.Context, pr PullRequest) (*PullRequestResult, error) {
	return resilience.Execute(c.cb, func() (*PullRequestResult, error) {
		return resilience.Retry(ctx, c.retry, func(ctx context.Context) (*PullRequestResult, error) {
			return resilience.WithTimeout(ctx, c.timeout, func(ctx context.Context) (*PullRequestResult, error) {
				return c.doCreatePullRequest(ctx, pr)
			})
		})
	})
}

func (c *Client) doCreatePullRequest(ctx context.Context, pr PullRequest) (*PullRequestResult, error) {
	body, err := json.Marshal(pr)
	if err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindInternal, "marshal pull request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL+"/pulls", bytes.NewReader(body))
	if err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindInternal, "build pull request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, orcherrors.Wrap(orcherrors.KindCancelled, "pull request cancelled", ctx.Err())
		}
		return nil, orcherrors.Wrap(orcherrors.KindTransport, "pull request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, orcherrors.New(orcherrors.KindServiceUnavailable, fmt.Sprintf("remote error: status=%d body=%s", resp.StatusCode, truncate(respBody, 256)))
	}

	var out PullRequestResult
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindInternal, "decode pull request response", err)
	}
	return &out, nil
}

// IsAvailable issues a lightweight health check and never returns an error.
func (c *Client) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serviceURL+"/health", nil)
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

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
