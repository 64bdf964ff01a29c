package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/enrich-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent         string
	Timeout           time.Duration // whole request, default 30s
	MaxAttempts       int           // default 3
	RequestsPerSecond float64       // per host, default 5
	InitialBackoff    time.Duration // default 1s
	MaxBackoff        time.Duration // default 30s
}

// StatusError is a final non-200 response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: status %d from %s", e.StatusCode, e.URL)
}

// HTTPStatusCode lets the resilience package decide whether to retry.
func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

// HTTPFetcher downloads over http(s). Requests to one host share a rate
// limiter; 429, 5xx and network failures are retried with backoff.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	rps       float64
	retry     resilience.RetryConfig

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

// NewHTTPFetcher creates an HTTPFetcher, filling unset options with defaults.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "enrich-cli/1.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}

	retry := resilience.DefaultRetryConfig()
	retry.InitialBackoff = opts.InitialBackoff
	if opts.MaxAttempts > 0 {
		retry.MaxAttempts = opts.MaxAttempts
	}
	if opts.MaxBackoff > 0 {
		retry.MaxBackoff = opts.MaxBackoff
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: opts.UserAgent,
		rps:       opts.RequestsPerSecond,
		retry:     retry,
		hosts:     make(map[string]*rate.Limiter),
	}
}

func (f *HTTPFetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.hosts[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(f.rps), max(int(f.rps), 1))
		f.hosts[host] = lim
	}
	return lim
}

// Download GETs rawURL and returns the body of a 200 response. A non-200
// status that survives retries is returned as *StatusError.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	lim := f.limiter(u.Host)

	cfg := f.retry
	cfg.OnRetry = resilience.RetryLogger("fetcher", "download", zap.String("url", rawURL))

	body, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (io.ReadCloser, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limit")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: build request")
		}
		req.Header.Set("User-Agent", f.userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
		}
		return resp.Body, nil
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, eris.Wrapf(err, "fetcher: download %s", rawURL)
	}
	return body, nil
}
