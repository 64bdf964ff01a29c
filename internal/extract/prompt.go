package extract

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/enrich-cli/internal/model"
)

const systemPrompt = "You are a precise information extraction assistant. Always respond with valid JSON."

const extractionPrompt = `Task: Extract structured information about %s from the following search results.

Search Results:
%s

Extract the following information in JSON format:
%s

Format as valid JSON. Use null for missing information. Include confidence scores (0-1) for each field.
Return one JSON object with exactly these keys: %s, plus "confidence_scores" mapping each of those keys to a number between 0 and 1.`

const reformatPrompt = `Your previous answer about %s could not be used: %s.

Respond again with ONLY a JSON object. No prose, no markdown, no code fences.
The object must have exactly these keys: %s, plus "confidence_scores" mapping each of those keys to a number between 0 and 1. Use null for anything not found.

Search Results:
%s

Previous answer:
%s`

const verifyPrompt = `Verify the following information extracted about %s against the search results.

Extracted information:
%s

Search Results:
%s

For each field:
1. Verify the format (email, URL, phone number, etc.)
2. Check that the search results support the value; replace unsupported values with null
3. Provide a confidence score (0-1)

Respond with ONLY a JSON object with the keys %s, plus "confidence_scores".`

// defaultDescriptions describe the common contact fields when the user
// gives no description.
var defaultDescriptions = map[string]string{
	"email":           "Any email addresses found",
	"location":        "Physical location or address",
	"headquarters":    "Location of the headquarters",
	"address":         "Physical street address",
	"website":         "Main website URL",
	"description":     "Brief description",
	"social_media":    "Object mapping social media platforms to their links",
	"phone":           "Contact phone numbers",
	"additional_info": "Any other relevant information",
}

func describe(f model.FieldSpec) string {
	desc := strings.TrimSpace(f.Description)
	if desc == "" {
		desc = defaultDescriptions[strings.ToLower(f.Name)]
	}
	if desc == "" {
		desc = "The " + strings.ReplaceAll(f.Name, "_", " ")
	}
	switch f.Type {
	case "number":
		desc += " (number)"
	case "list":
		desc += " (list of strings)"
	}
	return desc
}

func fieldList(fields []model.FieldSpec) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: %s", f.Name, describe(f))
	}
	return b.String()
}

func keyList(fields []model.FieldSpec) string {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = fmt.Sprintf("%q", f.Name)
	}
	return strings.Join(keys, ", ")
}

// BuildPrompt renders the extraction prompt for entity from the snippets of
// res. Each result contributes its fetched content when present, else its
// snippet text, cut to maxPerResult characters around the passages most
// relevant to the requested fields. Results stop once maxTotal characters
// of context are used.
func BuildPrompt(entity string, spec model.QuerySpec, res *model.SearchResult, maxPerResult, maxTotal int) string {
	return renderPrompt(entity, spec, buildContext(entity, spec.Fields, res, maxPerResult, maxTotal))
}

func renderPrompt(entity string, spec model.QuerySpec, contextText string) string {
	return fmt.Sprintf(extractionPrompt, entity, contextText, fieldList(spec.Fields), keyList(spec.Fields))
}

func buildReformatPrompt(entity string, spec model.QuerySpec, contextText, reason, raw string) string {
	return fmt.Sprintf(reformatPrompt, entity, reason, keyList(spec.Fields), contextText, cutRunes(raw, 2000))
}

func buildVerifyPrompt(entity string, spec model.QuerySpec, extractedJSON, contextText string) string {
	return fmt.Sprintf(verifyPrompt, entity, extractedJSON, contextText, keyList(spec.Fields))
}

func buildContext(entity string, fields []model.FieldSpec, res *model.SearchResult, maxPerResult, maxTotal int) string {
	if res == nil {
		return ""
	}
	var topic strings.Builder
	topic.WriteString(entity)
	for _, f := range fields {
		topic.WriteString(" " + strings.ReplaceAll(f.Name, "_", " ") + " " + f.Description)
	}
	keywords := extractKeywords(topic.String())

	var parts []string
	used := 0
	for _, s := range res.Snippets {
		content := s.Content
		if strings.TrimSpace(content) == "" {
			content = s.Text
		}
		if maxPerResult > 0 {
			content = truncateByRelevance(content, keywords, maxPerResult)
		}
		if maxTotal > 0 {
			remaining := maxTotal - used
			if remaining <= 0 {
				break
			}
			content = cutRunes(content, remaining)
		}
		used += utf8.RuneCountInString(content)
		parts = append(parts, fmt.Sprintf("Title: %s\nURL: %s\nContent: %s", s.Title, s.URL, content))
	}
	return strings.Join(parts, "\n\n")
}

// cutRunes cuts s to at most n runes.
func cutRunes(s string, n int) string {
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

// truncateByRelevance keeps the sections of content that mention the most
// keywords, in their original order, within limit runes. Content without
// sections or keywords is cut at the limit.
func truncateByRelevance(content string, keywords []string, limit int) string {
	if utf8.RuneCountInString(content) <= limit {
		return content
	}
	sections := splitSections(content)
	if len(keywords) == 0 || len(sections) <= 1 {
		return cutRunes(content, limit)
	}

	type scored struct {
		idx   int
		size  int
		score int
	}
	ranked := make([]scored, len(sections))
	for i, sec := range sections {
		lower := strings.ToLower(sec)
		score := 0
		for _, kw := range keywords {
			score += strings.Count(lower, kw)
		}
		ranked[i] = scored{idx: i, size: utf8.RuneCountInString(sec), score: score}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	selected := make(map[int]bool)
	total := 0
	for _, s := range ranked {
		if total+s.size > limit {
			continue
		}
		selected[s.idx] = true
		total += s.size + 2
	}
	if len(selected) == 0 {
		return cutRunes(content, limit)
	}

	var b strings.Builder
	for i, sec := range sections {
		if !selected[i] {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(sec)
	}
	return b.String()
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"were": true, "been": true, "have": true, "has": true, "had": true,
	"this": true, "that": true, "with": true, "from": true, "what": true,
	"how": true, "does": true, "which": true, "where": true, "when": true,
	"who": true, "why": true, "can": true, "will": true, "not": true,
	"any": true, "found": true, "brief": true,
}

func extractKeywords(text string) []string {
	var keywords []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, "?.,!;:'\"()[]{}")
		if len(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}

// splitSections splits text at markdown headers, blank lines and, for
// single-line page text, sentence ends.
func splitSections(content string) []string {
	var sections []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sections = append(sections, s)
		}
		current.Reset()
	}

	lines := strings.Split(content, "\n")
	if len(lines) == 1 {
		for _, sentence := range strings.SplitAfter(content, ". ") {
			if s := strings.TrimSpace(sentence); s != "" {
				sections = append(sections, s)
			}
		}
		return sections
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			flush()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()
	return sections
}
