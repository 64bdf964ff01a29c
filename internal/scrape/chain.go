// Package scrape fetches result pages for prompt context, trying a direct
// HTTP fetch first and falling back to the Jina Reader.
package scrape

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// defaultMaxChars is the page text cap applied by ReadPage.
const defaultMaxChars = 5000

// Chain reads a page with the first scraper that supports its URL and
// returns usable text. A scraper that errors or yields an empty page hands
// over to the next one.
type Chain struct {
	PathMatcher *PathMatcher
	scrapers    []Scraper
	maxChars    int
}

// NewChain creates a Chain that tries scrapers in the given order. A nil
// matcher excludes nothing.
func NewChain(matcher *PathMatcher, scrapers ...Scraper) *Chain {
	return &Chain{PathMatcher: matcher, scrapers: scrapers, maxChars: defaultMaxChars}
}

// WithMaxChars sets the length cap applied by ReadPage. Zero disables it.
func (c *Chain) WithMaxChars(n int) *Chain {
	c.maxChars = n
	return c
}

// Scrape returns the first non-empty page for targetURL.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	if c.PathMatcher.IsExcluded(targetURL) {
		return nil, eris.Errorf("scrape: %s excluded by path matcher", targetURL)
	}

	var failures []string
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "scrape: cancelled")
		}

		result, err := s.Scrape(ctx, targetURL)
		switch {
		case err != nil:
			failures = append(failures, fmt.Sprintf("%s: %v", s.Name(), err))
		case result == nil || strings.TrimSpace(result.Page.Text) == "":
			failures = append(failures, s.Name()+": empty page")
		default:
			return result, nil
		}
		zap.L().Debug("scrape: falling back",
			zap.String("scraper", s.Name()),
			zap.String("url", targetURL),
			zap.String("reason", failures[len(failures)-1]),
		)
	}

	if len(failures) == 0 {
		return nil, eris.Errorf("scrape: no scraper supports %s", targetURL)
	}
	return nil, eris.Errorf("scrape: %s unreadable (%s)", targetURL, strings.Join(failures, "; "))
}

// ReadPage returns the page text of targetURL cut to the configured cap.
func (c *Chain) ReadPage(ctx context.Context, targetURL string) (string, error) {
	result, err := c.Scrape(ctx, targetURL)
	if err != nil {
		return "", err
	}
	return truncateRunes(result.Page.Text, c.maxChars), nil
}
