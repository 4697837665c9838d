package mlclassifierclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/domain/orcherrors"
	"github.com/coderun/orchestrator/mlclassifier"
)

func TestClassifySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/classify/", r.URL.Path)
		_ = json.NewEncoder(w).Encode(mlclassifier.Response{
			TaskType:   "BugFix",
			Complexity: "Simple",
			Confidence: 0.9,
		})
	}))
	defer srv.Close()

	c := New(http.DefaultClient, Config{BaseURL: srv.URL, Timeout: time.Second}, nil)
	resp, err := c.Classify(t.Context(), mlclassifier.Request{TaskDescription: "fix typo"})
	require.NoError(t, err)
	require.Equal(t, domain.ComplexitySimple, resp.Complexity)
}

func TestClassifyRetriesThenSucceeds(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(mlclassifier.Response{Complexity: "Medium"})
	}))
	defer srv.Close()

	c := New(http.DefaultClient, Config{BaseURL: srv.URL, Timeout: time.Second}, nil)
	resp, err := c.Classify(t.Context(), mlclassifier.Request{TaskDescription: "x"})
	require.NoError(t, err)
	require.Equal(t, domain.ComplexityMedium, resp.Complexity)
	require.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestClassifyExhaustsRetriesAndOpensBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(http.DefaultClient, Config{BaseURL: srv.URL, Timeout: time.Second}, nil)

	// The breaker opens after 3 consecutive failures. Each Classify call
	// already retries internally (2 attempts), so 3 calls here trip it.
	for i := 0; i < 3; i++ {
		_, err := c.Classify(t.Context(), mlclassifier.Request{TaskDescription: "x"})
		require.Error(t, err)
	}

	_, err := c.Classify(t.Context(), mlclassifier.Request{TaskDescription: "x"})
	require.Error(t, err)
	kind, ok := orcherrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, orcherrors.KindServiceUnavailable, kind)
}

func TestIsAvailableNeverErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(http.DefaultClient, Config{BaseURL: srv.URL, Timeout: time.Second}, nil)
	require.True(t, c.IsAvailable(t.Context()))

	c2 := New(http.DefaultClient, Config{BaseURL: "http://127.0.0.1:1", Timeout: 50 * time.Millisecond}, nil)
	require.False(t, c2.IsAvailable(t.Context()))
}

func TestClassifyPerCallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(mlclassifier.Response{Complexity: "Medium"})
	}))
	defer srv.Close()

	c := New(http.DefaultClient, Config{BaseURL: srv.URL, Timeout: 10 * time.Millisecond}, nil)
	_, err := c.Classify(t.Context(), mlclassifier.Request{TaskDescription: "x"})
	require.Error(t, err)
}
