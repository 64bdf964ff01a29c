// Package query renders search queries from user templates.
//
// A template holds placeholders in braces. {entity} binds to the entity
// value, {field} to the field currently being researched (underscores read
// as spaces), and any other name
// to a sibling column of the entity's source row, matched without regard to
// case. Doubled braces ({{ and }}) stand for literal braces.
package query

import (
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

const (
	entityPlaceholder = "entity"
	fieldPlaceholder  = "field"
)

// Bindings supplies placeholder values for one render.
type Bindings struct {
	Entity string
	// Field is the current field name; empty leaves {field} unbound.
	Field string
	Attrs map[string]string
}

type segment struct {
	literal     string
	placeholder string
	isVar       bool
}

// parse splits a template into literal and placeholder segments.
func parse(template string) ([]segment, error) {
	var segs []segment
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(template); i++ {
		c := template[i]
		switch c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexAny(template[i+1:], "{}")
			if end < 0 || template[i+1+end] != '}' {
				return nil, &model.TemplateError{Template: template, Reason: "unterminated placeholder"}
			}
			name := strings.TrimSpace(template[i+1 : i+1+end])
			if name == "" {
				return nil, &model.TemplateError{Template: template, Reason: "empty placeholder"}
			}
			flush()
			segs = append(segs, segment{placeholder: name, isVar: true})
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, &model.TemplateError{Template: template, Reason: "unmatched closing brace"}
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return segs, nil
}

// Render substitutes every placeholder. A placeholder with no binding is a
// *model.TemplateError.
func Render(template string, b Bindings) (string, error) {
	segs, err := parse(template)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, s := range segs {
		if !s.isVar {
			out.WriteString(s.literal)
			continue
		}
		v, ok := lookup(s.placeholder, b)
		if !ok {
			return "", &model.TemplateError{Template: template, Placeholder: s.placeholder, Reason: "no binding for"}
		}
		out.WriteString(v)
	}
	return strings.Join(strings.Fields(out.String()), " "), nil
}

func lookup(name string, b Bindings) (string, bool) {
	switch strings.ToLower(name) {
	case entityPlaceholder:
		return b.Entity, true
	case fieldPlaceholder:
		if b.Field == "" {
			return "", false
		}
		return strings.ReplaceAll(b.Field, "_", " "), true
	}
	if v, ok := b.Attrs[name]; ok {
		return v, true
	}
	for k, v := range b.Attrs {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Placeholders returns the distinct placeholder names in template order.
func Placeholders(template string) ([]string, error) {
	segs, err := parse(template)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var names []string
	for _, s := range segs {
		key := strings.ToLower(s.placeholder)
		if s.isVar && !seen[key] {
			seen[key] = true
			names = append(names, s.placeholder)
		}
	}
	return names, nil
}

// IsPerField reports whether the template renders once per field.
func IsPerField(template string) bool {
	names, err := Placeholders(template)
	if err != nil {
		return false
	}
	for _, n := range names {
		if strings.EqualFold(n, fieldPlaceholder) {
			return true
		}
	}
	return false
}

// Validate checks template syntax and that it references {entity} or
// {field}. Attribute placeholders are checked against header when header is
// non-nil.
func Validate(template string, header []string) error {
	names, err := Placeholders(template)
	if err != nil {
		return err
	}
	var hasAnchor bool
	for _, n := range names {
		switch strings.ToLower(n) {
		case entityPlaceholder, fieldPlaceholder:
			hasAnchor = true
			continue
		}
		if header != nil && !containsFold(header, n) {
			return &model.TemplateError{Template: template, Placeholder: n, Reason: "no column for"}
		}
	}
	if !hasAnchor {
		return &model.TemplateError{Template: template, Reason: "must reference {entity} or {field}"}
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Expand renders the queries for one record: one per field when the template
// uses {field}, otherwise a single query.
func Expand(spec model.QuerySpec, rec model.EntityRecord) ([]string, error) {
	b := Bindings{Entity: rec.Value, Attrs: rec.Attributes}
	if !IsPerField(spec.Template) {
		q, err := Render(spec.Template, b)
		if err != nil {
			return nil, err
		}
		return []string{q}, nil
	}

	queries := make([]string, 0, len(spec.Fields))
	for _, f := range spec.Fields {
		b.Field = f.Name
		q, err := Render(spec.Template, b)
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, nil
}
