package extract

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

// ParseResult is the outcome of reading a model response: Parsed or
// Unparseable.
type ParseResult interface {
	isParseResult()
}

// Parsed holds the requested fields found in a response. Fields has an
// entry for every requested field (nil when missing). Confidence holds only
// the scores the model reported.
type Parsed struct {
	Fields     map[string]any
	Confidence map[string]float64
}

// Unparseable is a response that does not fit the expected structure.
type Unparseable struct {
	Raw    string
	Reason string
}

func (Parsed) isParseResult()      {}
func (Unparseable) isParseResult() {}

// Parse reads text as a JSON object holding the requested fields. It accepts
// code-fenced output, keys in any letter case, fields nested under "fields"
// or "data", and per-field {"value", "confidence"} objects. A validator, when
// given, checks the normalized object.
func Parse(text string, fields []model.FieldSpec, v *Validator) ParseResult {
	cleaned := cleanJSON(text)
	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return Unparseable{Raw: text, Reason: "response is not a JSON object"}
	}

	obj := raw
	if !hasAnyField(obj, fields) {
		for _, key := range []string{"fields", "data", "result", "information"} {
			if inner, ok := lookup(obj, key).(map[string]any); ok && hasAnyField(inner, fields) {
				obj = inner
				break
			}
		}
	}
	if !hasAnyField(obj, fields) {
		return Unparseable{Raw: text, Reason: "response has none of the requested fields"}
	}

	conf := make(map[string]float64)
	if scores, ok := lookup(raw, confidenceKey).(map[string]any); ok {
		collectScores(scores, conf)
	} else if scores, ok := lookup(raw, "confidence").(map[string]any); ok {
		collectScores(scores, conf)
	}

	values := make(map[string]any, len(fields))
	for _, f := range fields {
		val := lookup(obj, f.Name)
		if m, ok := val.(map[string]any); ok {
			if inner, has := m["value"]; has {
				val = inner
				if c, ok := toFloat(m["confidence"]); ok {
					conf[strings.ToLower(f.Name)] = c
				}
			}
		}
		values[f.Name] = coerce(val, f.Type)
	}

	if v != nil {
		doc := make(map[string]any, len(values)+1)
		for k, val := range values {
			doc[k] = val
		}
		scores := make(map[string]any, len(conf))
		for k, c := range conf {
			scores[k] = c
		}
		doc[confidenceKey] = scores
		if err := v.Validate(doc); err != nil {
			return Unparseable{Raw: text, Reason: "response does not match the field schema: " + firstLine(err.Error())}
		}
	}

	reported := make(map[string]float64, len(fields))
	for _, f := range fields {
		if c, ok := conf[strings.ToLower(f.Name)]; ok {
			reported[f.Name] = c
		}
	}
	return Parsed{Fields: values, Confidence: reported}
}

// cleanJSON strips code fences and prose around the outermost object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func lookup(obj map[string]any, key string) any {
	if v, ok := obj[key]; ok {
		return v
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func hasAnyField(obj map[string]any, fields []model.FieldSpec) bool {
	for _, f := range fields {
		for k := range obj {
			if strings.EqualFold(k, f.Name) {
				return true
			}
		}
	}
	return false
}

func collectScores(scores map[string]any, into map[string]float64) {
	for k, v := range scores {
		if c, ok := toFloat(v); ok {
			into[strings.ToLower(k)] = c
		}
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		if err != nil {
			return 0, false
		}
		if strings.HasSuffix(strings.TrimSpace(n), "%") {
			f /= 100
		}
		return f, true
	default:
		return 0, false
	}
}

// coerce normalizes a value to the declared field type where that is
// lossless: placeholder strings become null, numeric strings become numbers
// and a lone string becomes a one-element list.
func coerce(v any, typ string) any {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		switch strings.ToLower(s) {
		case "", "null", "none", "n/a", "not found", "unknown":
			return nil
		}
		switch typ {
		case "number":
			if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
				return f
			}
		case "list":
			return []any{s}
		}
		return s
	}
	if l, ok := v.([]any); ok && len(l) == 0 {
		return nil
	}
	if m, ok := v.(map[string]any); ok && len(m) == 0 {
		return nil
	}
	return v
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
