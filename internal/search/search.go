// Package search runs entity queries against a web search provider with
// call spacing, retry with backoff, a per-call timeout and a circuit breaker.
package search

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

// Provider is a web search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, num int) ([]model.Snippet, error)
}

// PageReader returns the cleaned text of a web page.
type PageReader interface {
	ReadPage(ctx context.Context, url string) (string, error)
}

// Option configures a Client.
type Option func(*Client)

// WithPageReader sets the reader used by FetchPage.
func WithPageReader(r PageReader) Option {
	return func(c *Client) { c.pages = r }
}

// WithMinInterval enforces a minimum spacing between provider calls.
// Zero disables spacing.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithRetry sets the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithBreaker sets the circuit breaker guarding the provider.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithTimeout bounds a single provider call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxResults caps the snippets requested per query.
func WithMaxResults(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithClock overrides the time source used for FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client is the rate-limited search client shared by all workers of a run.
type Client struct {
	provider   Provider
	pages      PageReader
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
	timeout    time.Duration
	maxResults int
	now        func() time.Time
}

// New creates a Client for p. Defaults: 5 results, 30s per call, the default
// retry policy and a breaker named after the provider.
func New(p Provider, opts ...Option) *Client {
	c := &Client{
		provider:   p,
		retry:      resilience.DefaultRetryConfig(),
		timeout:    30 * time.Second,
		maxResults: 5,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker(p.Name(), resilience.DefaultCircuitBreakerConfig())
	}
	return c
}

// ProviderName returns the name of the underlying provider.
func (c *Client) ProviderName() string { return c.provider.Name() }

// Search runs query against the provider. A query with no hits yields a
// result with zero snippets. Failures that survive the retry budget are
// returned as *model.SearchError.
func (c *Client) Search(ctx context.Context, query string) (*model.SearchResult, error) {
	cfg := c.retry
	cfg.ShouldRetry = func(err error) bool {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return false
		}
		return resilience.IsTransient(err)
	}
	cfg.OnRetry = resilience.RetryLogger("search", c.provider.Name(), zap.String("query", query))

	snippets, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]model.Snippet, error) {
		return c.attempt(ctx, query)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "search: cancelled")
		}
		kind := searchKind(err)
		zap.L().Warn("search: giving up",
			zap.String("provider", c.provider.Name()),
			zap.String("query", query),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return nil, &model.SearchError{Kind: kind, Query: query, Err: err}
	}

	if len(snippets) > c.maxResults {
		snippets = snippets[:c.maxResults]
	}
	return &model.SearchResult{
		Query:     query,
		Snippets:  snippets,
		FetchedAt: c.now(),
	}, nil
}

func (c *Client) attempt(ctx context.Context, query string) ([]model.Snippet, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "search: rate limiter wait")
		}
	}
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]model.Snippet, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		snippets, err := c.provider.Search(callCtx, query, c.maxResults)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, resilience.NewTransientError(eris.Wrap(err, "search: call timed out"), 0)
		}
		return snippets, err
	})
}

// FetchPage returns the cleaned text of url using the configured reader.
func (c *Client) FetchPage(ctx context.Context, url string) (string, error) {
	if c.pages == nil {
		return "", eris.New("search: no page reader configured")
	}
	return c.pages.ReadPage(ctx, url)
}

// Enrich fetches the pages behind the first topN snippets of res and stores
// their text in Snippet.Content. Pages that cannot be read keep only their
// snippet text. It returns the number of pages fetched.
func (c *Client) Enrich(ctx context.Context, res *model.SearchResult, topN, concurrency int) int {
	if c.pages == nil || res.Empty() || topN <= 0 {
		return 0
	}
	n := min(topN, len(res.Snippets))
	fetched := make([]bool, n)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i := range n {
		url := res.Snippets[i].URL
		if url == "" {
			continue
		}
		g.Go(func() error {
			text, err := c.pages.ReadPage(gCtx, url)
			if err != nil {
				zap.L().Debug("search: page fetch failed, keeping snippet",
					zap.String("url", url),
					zap.Error(err),
				)
				return nil
			}
			if text != "" {
				res.Snippets[i].Content = text
				fetched[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	for _, ok := range fetched {
		if ok {
			count++
		}
	}
	return count
}

func searchKind(err error) model.SearchErrorKind {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return model.SearchTransient
	}
	switch resilience.Classify(err) {
	case model.CategoryQuotaExceeded:
		return model.SearchQuotaExceeded
	case model.CategoryNotFound:
		return model.SearchNotFound
	default:
		return model.SearchTransient
	}
}
