package scrape

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns skip documents that cannot be reduced to page text.
var defaultExcludePatterns = []string{
	"*.pdf",
	"*.doc",
	"*.docx",
	"*.xls",
	"*.xlsx",
	"*.ppt",
	"*.pptx",
	"*.zip",
}

// PathMatcher filters URLs by glob-style path patterns. Patterns starting
// with "/" match the path from the root, and "/dir/*" also matches deeper
// paths under dir. Patterns starting with "*." match the file extension at
// any depth.
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher from glob patterns (e.g. "/login/*",
// "*.pdf"). Falls back to the default patterns if none are provided.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return &PathMatcher{patterns: lowered}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded checks whether a URL matches any exclude pattern. Unparseable
// URLs are excluded.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	if m == nil {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	urlPath := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if matchSegmented(pattern, urlPath) {
			return true
		}
	}
	return false
}

func matchSegmented(pattern, urlPath string) bool {
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(urlPath, pattern[1:])
	}
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	return false
}
