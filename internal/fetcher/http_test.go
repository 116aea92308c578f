package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestFetcher(opts HTTPOptions) *HTTPFetcher {
	f := NewHTTPFetcher(opts)
	f.retry.InitialBackoff = 0
	f.retry.MaxBackoff = 0
	f.retry.MaxJitter = 0
	return f
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "ar-SA", r.Header.Get("Accept-Language"))
		w.Write([]byte("<table></table>"))
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{UserAgent: "test-agent", Headers: map[string]string{"Accept-Language": "ar-SA"}})
	body, err := f.Download(context.Background(), srv.URL+"/foreign-ownership")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "<table></table>", string(data))
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, DefaultUserAgent, f.opts.UserAgent)
	assert.Equal(t, 30*time.Second, f.client.Timeout)
	assert.Equal(t, 3, f.opts.MaxRetries)
	assert.Equal(t, rate.Inf, f.limiter.Limit())

	f = NewHTTPFetcher(HTTPOptions{Delay: time.Second})
	assert.Equal(t, rate.Limit(1), f.limiter.Limit())
}

func TestDownload_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(HTTPOptions{MaxRetries: 3}).Download(context.Background(), srv.URL)
	require.NoError(t, err)
	body.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownload_RetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestFetcher(HTTPOptions{MaxRetries: 2}).Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all retries exhausted")
	assert.Contains(t, err.Error(), "http 503")
}

func TestDownload_RateLimitedSlowsDown(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{Delay: time.Millisecond})
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	body.Close()
	assert.Less(t, float64(f.limiter.Limit()), float64(rate.Every(time.Millisecond)))
}

func TestDownload_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestFetcher(HTTPOptions{}).Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestDownload_InvalidURL(t *testing.T) {
	_, err := newTestFetcher(HTTPOptions{}).Download(context.Background(), "://bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create request")
}

func TestAdaptiveLimiter(t *testing.T) {
	a := NewAdaptiveLimiter(4, 1)
	a.OnRateLimit()
	assert.Equal(t, rate.Limit(2), a.Limit())
	a.OnRateLimit()
	a.OnRateLimit()
	assert.Equal(t, rate.Limit(1), a.Limit(), "floor is a quarter of the initial rate")
	for range 20 {
		a.OnSuccess()
	}
	assert.Equal(t, rate.Limit(4), a.Limit(), "never above the configured rate")
}

func TestDownload_ContextCancelled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestFetcher(HTTPOptions{MaxRetries: 5}).Download(ctx, srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(0), calls.Load())
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&statusError{code: 503, url: "x"}))
	assert.True(t, retryable(errors.New("connection reset by peer")))
	assert.False(t, retryable(context.Canceled))
	assert.False(t, retryable(&limiterError{err: errors.New("burst exceeded")}))
}
