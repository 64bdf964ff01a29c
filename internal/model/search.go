package model

import "time"

// Snippet is one ranked search hit. Content holds cleaned page text when
// the page was fetched.
type Snippet struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Text    string `json:"text"`
	Content string `json:"content,omitempty"`
}

// SearchResult is the ranked result set for one query.
type SearchResult struct {
	Query     string    `json:"query"`
	Snippets  []Snippet `json:"snippets"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Empty reports whether the search produced no snippets.
func (r *SearchResult) Empty() bool {
	return r == nil || len(r.Snippets) == 0
}

// MergeResults combines results from several queries for one entity, keeping
// rank order and dropping repeated URLs.
func MergeResults(results ...*SearchResult) *SearchResult {
	merged := &SearchResult{}
	seen := make(map[string]bool)
	for _, r := range results {
		if r == nil {
			continue
		}
		if merged.Query == "" {
			merged.Query = r.Query
		} else {
			merged.Query += " | " + r.Query
		}
		if r.FetchedAt.After(merged.FetchedAt) {
			merged.FetchedAt = r.FetchedAt
		}
		for _, s := range r.Snippets {
			key := s.URL
			if key == "" {
				key = s.Title + "\x00" + s.Text
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			merged.Snippets = append(merged.Snippets, s)
		}
	}
	return merged
}
