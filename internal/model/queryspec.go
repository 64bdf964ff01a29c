package model

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FieldSpec names one attribute to extract per entity.
type FieldSpec struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"` // string, number, list
}

// Result table columns that are not fields. Field names may not reuse them.
const (
	ColumnEntity     = "entity"
	ColumnStatus     = "status"
	ColumnError      = "error"
	ConfidencePrefix = "confidence_"
)

// IsReservedName reports whether a field name would collide with a result
// column: entity, status, error or any confidence_ column.
func IsReservedName(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case ColumnEntity, ColumnStatus, ColumnError:
		return true
	}
	return strings.HasPrefix(name, ConfidencePrefix)
}

// QuerySpec is the per-run search template plus the ordered fields to extract.
type QuerySpec struct {
	Template string      `yaml:"template" json:"template"`
	Fields   []FieldSpec `yaml:"fields" json:"fields"`
}

// FieldNames returns the field names in declaration order.
func (q QuerySpec) FieldNames() []string {
	names := make([]string, len(q.Fields))
	for i, f := range q.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks that the spec has a template and a non-empty set of
// uniquely named fields, none of which shadows a result column.
func (q QuerySpec) Validate() error {
	if strings.TrimSpace(q.Template) == "" {
		return &TemplateError{Reason: "template is empty"}
	}
	if len(q.Fields) == 0 {
		return eris.New("model: query spec has no fields")
	}
	seen := make(map[string]bool, len(q.Fields))
	for _, f := range q.Fields {
		name := strings.ToLower(strings.TrimSpace(f.Name))
		if name == "" {
			return eris.New("model: field with empty name")
		}
		if seen[name] {
			return eris.Errorf("model: duplicate field %q", f.Name)
		}
		if IsReservedName(name) {
			return eris.Errorf("model: field %q is a reserved result column", f.Name)
		}
		seen[name] = true
		switch f.Type {
		case "", "string", "number", "list":
		default:
			return eris.Errorf("model: field %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

// ParseFieldList parses a comma-separated field list. Each entry is either
// "name" or "name:description".
func ParseFieldList(s string) []FieldSpec {
	var fields []FieldSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, desc, _ := strings.Cut(part, ":")
		fields = append(fields, FieldSpec{
			Name:        strings.TrimSpace(name),
			Description: strings.TrimSpace(desc),
		})
	}
	return fields
}

// LoadQuerySpec reads a YAML query spec from path.
func LoadQuerySpec(path string) (*QuerySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "model: read query spec %s", path)
	}
	var spec QuerySpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, eris.Wrapf(err, "model: parse query spec %s", path)
	}
	return &spec, nil
}
