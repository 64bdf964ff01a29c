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
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:         "test-agent",
		Timeout:           5 * time.Second,
		MaxAttempts:       3,
		RequestsPerSecond: 100,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
	})
}

// flaky fails with status for the first n requests, then serves body.
func flaky(n int32, status int, body string) (*httptest.Server, *atomic.Int32) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= n {
			w.WriteHeader(status)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	return srv, &calls
}

func TestHTTPFetcher_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, "company\nAcme Corp\n")
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL+"/entities.csv")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "company\nAcme Corp\n", string(data))
}

func TestHTTPFetcher_RetriesTransientStatus(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv, calls := flaky(2, status, "ok")
			defer srv.Close()

			body, err := newTestFetcher().Download(context.Background(), srv.URL)
			require.NoError(t, err)
			data, _ := io.ReadAll(body)
			_ = body.Close()

			assert.Equal(t, "ok", string(data))
			assert.Equal(t, int32(3), calls.Load())
		})
	}
}

func TestHTTPFetcher_RetriesExhausted(t *testing.T) {
	srv, calls := flaky(100, http.StatusServiceUnavailable, "")
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL+"/fail")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.HTTPStatusCode())
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcher_ClientErrorNotRetried(t *testing.T) {
	srv, calls := flaky(100, http.StatusNotFound, "")
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL+"/missing.csv")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, se.Error(), "/missing.csv")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcher_ContextCancelled(t *testing.T) {
	srv, calls := flaky(0, 0, "ok")
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher().Download(ctx, srv.URL+"/data")
	require.Error(t, err)
	assert.Equal(t, int32(0), calls.Load())
}

func TestHTTPFetcher_BadURL(t *testing.T) {
	_, err := newTestFetcher().Download(context.Background(), "http://[::1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse url")
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, "enrich-cli/1.0", f.userAgent)
	assert.Equal(t, 30*time.Second, f.client.Timeout)
	assert.Equal(t, 3, f.retry.MaxAttempts)
	assert.Equal(t, time.Second, f.retry.InitialBackoff)
	assert.InDelta(t, 5.0, f.rps, 0.001)
}

func TestHTTPFetcher_LimiterPerHost(t *testing.T) {
	f := newTestFetcher()
	a := f.limiter("a.example.com")
	assert.Same(t, a, f.limiter("a.example.com"))
	assert.NotSame(t, a, f.limiter("b.example.com"))
	assert.InDelta(t, 100, float64(a.Limit()), 0.001)
}

func TestRemote_UnsupportedScheme(t *testing.T) {
	r := NewRemote(HTTPOptions{}, FTPOptions{})
	_, err := r.Download(context.Background(), "s3://bucket/key.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestReadAll_Limit(t *testing.T) {
	srv, _ := flaky(0, 0, "0123456789")
	defer srv.Close()

	r := &Remote{HTTP: newTestFetcher(), FTP: NewFTPFetcher(FTPOptions{})}

	data, err := ReadAll(context.Background(), r, srv.URL, 10)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	_, err = ReadAll(context.Background(), r, srv.URL, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 5 bytes")
}
