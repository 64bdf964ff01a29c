// Package serpapi provides a client for SerpAPI Google web search.
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://serpapi.com"

// Client performs SerpAPI searches.
type Client interface {
	Search(ctx context.Context, query string, num int) (*SearchResponse, error)
}

// SearchResponse is the subset of a SerpAPI response the pipeline reads.
type SearchResponse struct {
	OrganicResults []OrganicResult `json:"organic_results"`
	Error          string          `json:"error,omitempty"`
}

// OrganicResult is one ranked web result.
type OrganicResult struct {
	Position      int    `json:"position"`
	Title         string `json:"title"`
	Link          string `json:"link"`
	Snippet       string `json:"snippet"`
	DisplayedLink string `json:"displayed_link"`
}

// APIError is a non-2xx response from SerpAPI.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("serpapi: status %d: %s", e.StatusCode, e.Message)
}

// HTTPStatusCode returns the HTTP status of the failed call.
func (e *APIError) HTTPStatusCode() int { return e.StatusCode }

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithLocale sets the hl and gl parameters. Default: en, us.
func WithLocale(hl, gl string) Option {
	return func(c *httpClient) {
		c.hl, c.gl = hl, gl
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	hl, gl  string
	http    *http.Client
}

// NewClient creates a SerpAPI client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		hl:      "en",
		gl:      "us",
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, num int) (*SearchResponse, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("hl", c.hl)
	params.Set("gl", c.gl)
	params.Set("api_key", c.apiKey)
	if num > 0 {
		params.Set("num", strconv.Itoa(num))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: read response")
	}

	var result SearchResponse
	if jsonErr := json.Unmarshal(body, &result); jsonErr != nil && resp.StatusCode == http.StatusOK {
		return nil, eris.Wrap(jsonErr, "serpapi: unmarshal response")
	}

	if resp.StatusCode != http.StatusOK {
		msg := result.Error
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	// An empty result set is reported as an error string with status 200.
	if result.Error != "" && !isEmptyResultsMessage(result.Error) {
		return nil, &APIError{StatusCode: http.StatusOK, Message: result.Error}
	}
	if num > 0 && len(result.OrganicResults) > num {
		result.OrganicResults = result.OrganicResults[:num]
	}
	return &result, nil
}

func isEmptyResultsMessage(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "hasn't returned any results")
}
