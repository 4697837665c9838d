package githubclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreatePullRequestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pulls", r.URL.Path)
		var got PullRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		require.Equal(t, "acme", got.Owner)
		_ = json.NewEncoder(w).Encode(PullRequestResult{Number: 42, HTMLURL: "https://github.com/acme/repo/pull/42", State: "open"})
	}))
	defer srv.Close()

	c := New(http.DefaultClient, Config{ServiceURL: srv.URL, Timeout: time.Second}, nil)
	pr, err := c.CreatePullRequest(t.Context(), PullRequest{Owner: "acme", Repo: "repo", Title: "t", Body: "b", Head: "h", Base: "main"})
	require.NoError(t, err)
	require.Equal(t, 42, pr.Number)
}

func TestCreatePullRequestRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"bad ref"}`))
	}))
	defer srv.Close()

	c := New(http.DefaultClient, Config{ServiceURL: srv.URL, Timeout: time.Second}, nil)
	_, err := c.CreatePullRequest(t.Context(), PullRequest{Owner: "acme", Repo: "repo"})
	require.Error(t, err)
}

func TestIsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(http.DefaultClient, Config{ServiceURL: srv.URL, Timeout: time.Second}, nil)
	require.True(t, c.IsAvailable(t.Context()))
}

func TestCreatePullRequestCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(http.DefaultClient, Config{ServiceURL: srv.URL, Timeout: time.Second}, nil)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := c.CreatePullRequest(ctx, PullRequest{Owner: "acme", Repo: "repo"})
	require.Error(t, err)
}
