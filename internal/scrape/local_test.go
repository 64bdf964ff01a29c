package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHTML(t *testing.T, status int, header http.Header, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for k, v := range header {
			w.Header()[k] = v
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLocalScraper_CleanHTML(t *testing.T) {
	t.Parallel()
	srv := serveHTML(t, 200, http.Header{"Content-Type": {"text/html"}}, `<html><head><title> Acme   Corp </title>
<style>body{color:red}</style></head>
<body><nav>Menu</nav><script>alert('hi')</script><h1>Welcome</h1>
<p>We build   great products &amp; tools.
Contact us at info@acme.com.</p>
<footer>Copyright 2024</footer></body></html>`)

	s := NewLocalScraper(5 * time.Second)
	result, err := s.Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "local_http", result.Source)
	assert.Equal(t, "Acme Corp", result.Page.Title)
	assert.Equal(t, 200, result.Page.StatusCode)
	assert.Equal(t, "Welcome We build great products & tools. Contact us at info@acme.com.", result.Page.Text)
}

func TestLocalScraper_PlainText(t *testing.T) {
	t.Parallel()
	srv := serveHTML(t, 200, http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		"Globex Corporation\n\nHeadquarters: Cypress Creek, Springfield\n")

	result, err := NewLocalScraper(0).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Globex Corporation Headquarters: Cypress Creek, Springfield", result.Page.Text)
	assert.Empty(t, result.Page.Title)
}

func TestLocalScraper_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   string
	}{
		{"cloudflare", 403, http.Header{"Cf-Ray": {"abc123"}}, "<html><body>Access denied</body></html>", "blocked"},
		{"captcha", 200, http.Header{}, "<html><body>Please complete the reCAPTCHA to continue</body></html>", "blocked"},
		{"empty", 200, http.Header{}, "<html></html>", "empty"},
		{"not found", 404, http.Header{}, "<html><body>" + strings.Repeat("missing ", 20) + "</body></html>", "status 404"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := serveHTML(t, tt.status, tt.header, tt.body)
			_, err := NewLocalScraper(time.Second).Scrape(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLocalScraper_Supports(t *testing.T) {
	s := NewLocalScraper(0)
	assert.Equal(t, "local_http", s.Name())
	assert.True(t, s.Supports("https://example.com"))
	assert.True(t, s.Supports("http://localhost"))
	assert.False(t, s.Supports("ftp://example.com/file"))
	assert.False(t, s.Supports("mailto:info@acme.com"))
}

func TestHTMLText_NoBody(t *testing.T) {
	title, text, err := htmlText([]byte(`<title>T</title>Loose text`))
	require.NoError(t, err)
	assert.Equal(t, "T", title)
	assert.Contains(t, text, "Loose text")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", truncateRunes("héllo wörld", 5))
	assert.Equal(t, "short", truncateRunes("short", 10))
	assert.Equal(t, "unbounded", truncateRunes("unbounded", 0))
}
