package scrape

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockScraper implements Scraper for testing.
type mockScraper struct {
	name     string
	supports bool
	result   *Result
	err      error
	calls    int
}

func (m *mockScraper) Name() string           { return m.name }
func (m *mockScraper) Supports(_ string) bool { return m.supports }
func (m *mockScraper) Scrape(_ context.Context, _ string) (*Result, error) {
	m.calls++
	return m.result, m.err
}

func page(source, text string) *Result {
	return &Result{Page: Page{URL: "https://acme.com", Title: "Home", Text: text}, Source: source}
}

func TestChain_Scrape_FirstSuccess(t *testing.T) {
	s1 := &mockScraper{name: "primary", supports: true, result: page("primary", "content")}
	s2 := &mockScraper{name: "fallback", supports: true}

	result, err := NewChain(nil, s1, s2).Scrape(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "primary", result.Source)
	assert.Equal(t, 0, s2.calls)
}

func TestChain_Scrape_FallbackOnError(t *testing.T) {
	s1 := &mockScraper{name: "primary", supports: true, err: errors.New("failed")}
	s2 := &mockScraper{name: "fallback", supports: true, result: page("fallback", "content")}

	result, err := NewChain(nil, s1, s2).Scrape(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "fallback", result.Source)
}

func TestChain_Scrape_SkipsUnsupported(t *testing.T) {
	s1 := &mockScraper{name: "primary", supports: false, result: page("primary", "x")}
	s2 := &mockScraper{name: "fallback", supports: true, result: page("fallback", "y")}

	result, err := NewChain(nil, s1, s2).Scrape(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "fallback", result.Source)
	assert.Equal(t, 0, s1.calls)
}

func TestChain_Scrape_AllFail(t *testing.T) {
	s1 := &mockScraper{name: "a", supports: true, err: errors.New("a down")}
	s2 := &mockScraper{name: "b", supports: true, err: errors.New("b down")}

	_, err := NewChain(nil, s1, s2).Scrape(context.Background(), "https://acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable")
	assert.Contains(t, err.Error(), "a: a down")
	assert.Contains(t, err.Error(), "b: b down")
}

func TestChain_Scrape_EmptyPageFallsBack(t *testing.T) {
	s1 := &mockScraper{name: "local_http", supports: true, result: page("local_http", "   ")}
	s2 := &mockScraper{name: "jina", supports: true, result: page("jina", "Acme Corp is headquartered in Springfield.")}

	result, err := NewChain(nil, s1, s2).Scrape(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "jina", result.Source)
	assert.Equal(t, 1, s1.calls)
}

func TestChain_Scrape_OnlyEmptyPages(t *testing.T) {
	s1 := &mockScraper{name: "local_http", supports: true, result: page("local_http", "")}

	_, err := NewChain(nil, s1).Scrape(context.Background(), "https://acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local_http: empty page")
}

func TestChain_Scrape_NoneSupported(t *testing.T) {
	s1 := &mockScraper{name: "a", supports: false}
	_, err := NewChain(nil, s1).Scrape(context.Background(), "https://acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scraper supports")
}

func TestChain_Scrape_Excluded(t *testing.T) {
	s1 := &mockScraper{name: "a", supports: true, result: page("a", "x")}
	_, err := NewChain(NewPathMatcher(nil), s1).Scrape(context.Background(), "https://acme.com/brochure.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "excluded")
	assert.Equal(t, 0, s1.calls)
}

func TestChain_Scrape_Cancelled(t *testing.T) {
	s1 := &mockScraper{name: "a", supports: true, result: page("a", "x")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewChain(nil, s1).Scrape(ctx, "https://acme.com")
	require.Error(t, err)
	assert.Equal(t, 0, s1.calls)
}

func TestChain_ReadPage_Truncates(t *testing.T) {
	s1 := &mockScraper{name: "a", supports: true, result: page("a", strings.Repeat("é", 6000))}

	text, err := NewChain(nil, s1).ReadPage(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, 5000, len([]rune(text)))

	text, err = NewChain(nil, s1).WithMaxChars(10).ReadPage(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 10), text)
}
