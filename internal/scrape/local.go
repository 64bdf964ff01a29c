package scrape

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// LocalScraper fetches HTML directly and reduces it to visible text. It
// costs no API calls; blocked pages fall through to the next scraper.
type LocalScraper struct {
	client    *http.Client
	userAgent string
}

// NewLocalScraper creates a LocalScraper with a per-request timeout.
// A zero timeout defaults to 10s.
func NewLocalScraper(timeout time.Duration) *LocalScraper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LocalScraper{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: timeout,
				}).DialContext,
				TLSHandshakeTimeout: timeout,
			},
		},
		userAgent: "Mozilla/5.0 (compatible; enrich-cli/1.0)",
	}
}

func (l *LocalScraper) Name() string { return "local_http" }

// Supports accepts http and https URLs.
func (l *LocalScraper) Supports(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// Scrape fetches a URL, rejects blocked pages, and returns its text.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("local_http: blocked (%s)", blockType)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}

	var title, text string
	if isPlainText(resp.Header.Get("Content-Type")) {
		text = collapseWhitespace(string(body))
	} else {
		title, text, err = htmlText(body)
		if err != nil {
			return nil, err
		}
	}
	if len(text) < 50 {
		return nil, eris.New("local_http: empty page")
	}

	return &Result{
		Page: Page{
			URL:        targetURL,
			Title:      title,
			Text:       text,
			StatusCode: resp.StatusCode,
		},
		Source: "local_http",
	}, nil
}

func isPlainText(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "text/plain"
}

// htmlText drops non-content elements and returns the page title and its
// visible text with whitespace collapsed.
func htmlText(body []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", eris.Wrap(err, "local_http: parse html")
	}
	title := collapseWhitespace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, template, svg, iframe, nav, footer").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	return title, collapseWhitespace(root.Text()), nil
}
