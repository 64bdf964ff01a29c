package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ScoreInput is what a Scorer sees for one extracted field.
type ScoreInput struct {
	Field string
	Value any
	// SelfReported is the model's own score; HasSelfReported is false when
	// the model gave none.
	SelfReported    float64
	HasSelfReported bool
	// Evidence is the lowercased source text the model was shown.
	Evidence string
}

// Scorer assigns a confidence in [0,1] to a non-null field value.
type Scorer interface {
	Name() string
	Score(in ScoreInput) float64
}

// NewScorer returns the scorer named by name: self_reported, evidence or
// blended.
func NewScorer(name string) (Scorer, error) {
	switch name {
	case "", "self_reported":
		return SelfReported{}, nil
	case "evidence":
		return Evidence{}, nil
	case "blended":
		return Blended{SelfWeight: 0.5}, nil
	default:
		return nil, eris.Errorf("extract: unknown confidence scorer %q", name)
	}
}

// SelfReported trusts the model's score. A missing score is 0.
type SelfReported struct{}

func (SelfReported) Name() string { return "self_reported" }

func (SelfReported) Score(in ScoreInput) float64 {
	if !in.HasSelfReported {
		return 0
	}
	return clamp(in.SelfReported)
}

// Evidence scores a value by how much of it appears verbatim in the source
// text: 1 for an exact match of the whole value, otherwise the share of its
// tokens found.
type Evidence struct{}

func (Evidence) Name() string { return "evidence" }

func (Evidence) Score(in ScoreInput) float64 {
	terms := valueTerms(in.Value)
	if len(terms) == 0 || in.Evidence == "" {
		return 0
	}
	total := 0.0
	for _, term := range terms {
		total += termScore(term, in.Evidence)
	}
	return clamp(total / float64(len(terms)))
}

// Blended mixes the model's score with the evidence score. Without a
// self-reported score only the evidence counts.
type Blended struct {
	SelfWeight float64
}

func (Blended) Name() string { return "blended" }

func (b Blended) Score(in ScoreInput) float64 {
	ev := Evidence{}.Score(in)
	if !in.HasSelfReported {
		return ev
	}
	w := clamp(b.SelfWeight)
	return clamp(w*clamp(in.SelfReported) + (1-w)*ev)
}

func clamp(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}@.+-]+`)

func termScore(term, evidence string) float64 {
	if strings.Contains(evidence, term) {
		return 1
	}
	tokens := tokenRe.FindAllString(term, -1)
	if len(tokens) == 0 {
		return 0
	}
	found := 0
	for _, tok := range tokens {
		if strings.Contains(evidence, tok) {
			found++
		}
	}
	return float64(found) / float64(len(tokens))
}

// valueTerms flattens a value into lowercased strings to look for.
func valueTerms(v any) []string {
	var out []string
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case nil:
		case string:
			if s := strings.ToLower(strings.TrimSpace(t)); s != "" {
				out = append(out, s)
			}
		case []any:
			for _, e := range t {
				walk(e)
			}
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(t[k])
			}
		default:
			out = append(out, strings.ToLower(fmt.Sprint(t)))
		}
	}
	walk(v)
	return out
}
