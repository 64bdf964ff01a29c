package search

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/jina"
	"github.com/sells-group/enrich-cli/pkg/serpapi"
)

// SerpAPI adapts a SerpAPI client to Provider.
type SerpAPI struct {
	client serpapi.Client
}

// NewSerpAPI wraps c as a Provider.
func NewSerpAPI(c serpapi.Client) *SerpAPI {
	return &SerpAPI{client: c}
}

func (s *SerpAPI) Name() string { return "serpapi" }

// Search returns the organic results in rank order.
func (s *SerpAPI) Search(ctx context.Context, query string, num int) ([]model.Snippet, error) {
	resp, err := s.client.Search(ctx, query, num)
	if err != nil {
		return nil, err
	}
	snippets := make([]model.Snippet, 0, len(resp.OrganicResults))
	for _, r := range resp.OrganicResults {
		snippets = append(snippets, model.Snippet{
			Title: strings.TrimSpace(r.Title),
			URL:   r.Link,
			Text:  strings.TrimSpace(r.Snippet),
		})
	}
	return snippets, nil
}

// Jina adapts the Jina Search endpoint to Provider.
type Jina struct {
	client jina.Client
}

// NewJina wraps c as a Provider.
func NewJina(c jina.Client) *Jina {
	return &Jina{client: c}
}

func (j *Jina) Name() string { return "jina" }

// Search returns Jina results. The description is used as snippet text,
// falling back to the returned page content.
func (j *Jina) Search(ctx context.Context, query string, num int) ([]model.Snippet, error) {
	resp, err := j.client.Search(ctx, query, jina.WithNum(num))
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, eris.New("jina: empty search response")
	}
	snippets := make([]model.Snippet, 0, len(resp.Data))
	for _, r := range resp.Data {
		text := strings.TrimSpace(r.Description)
		if text == "" {
			text = strings.TrimSpace(r.Content)
		}
		snippets = append(snippets, model.Snippet{
			Title: strings.TrimSpace(r.Title),
			URL:   r.URL,
			Text:  text,
		})
	}
	return snippets, nil
}

// NewProvider builds the provider named by name.
func NewProvider(name string, serp serpapi.Client, jc jina.Client) (Provider, error) {
	switch name {
	case "", "serpapi":
		if serp == nil {
			return nil, eris.New("search: serpapi client not configured")
		}
		return NewSerpAPI(serp), nil
	case "jina":
		if jc == nil {
			return nil, eris.New("search: jina client not configured")
		}
		return NewJina(jc), nil
	default:
		return nil, eris.Errorf("search: unknown provider %q", name)
	}
}
