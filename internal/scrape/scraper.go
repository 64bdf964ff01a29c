package scrape

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Page is the cleaned text of one fetched web page.
type Page struct {
	URL        string
	Title      string
	Text       string
	StatusCode int
}

// Result holds a scraped page with the scraper that produced it.
type Result struct {
	Page   Page
	Source string // e.g. "local_http", "jina"
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}

// collapseWhitespace joins the words of s with single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes cuts s to at most n runes. n <= 0 means no limit.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
