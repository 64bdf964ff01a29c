package extract

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/enrich-cli/internal/model"
)

const confidenceKey = "confidence_scores"

// SchemaFor returns the JSON Schema a normalized response for fields must
// satisfy. Untyped fields accept any JSON value.
func SchemaFor(fields []model.FieldSpec) map[string]any {
	props := make(map[string]any, len(fields)+1)
	for _, f := range fields {
		switch f.Type {
		case "string":
			props[f.Name] = map[string]any{"type": []string{"string", "null"}}
		case "number":
			props[f.Name] = map[string]any{"type": []string{"number", "null"}}
		case "list":
			props[f.Name] = map[string]any{
				"type":  []string{"array", "null"},
				"items": map[string]any{"type": []string{"string", "number", "object"}},
			}
		default:
			props[f.Name] = map[string]any{}
		}
	}
	props[confidenceKey] = map[string]any{
		"type":                 "object",
		"additionalProperties": map[string]any{"type": []string{"number", "null"}},
	}
	return map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": props,
	}
}

// Validator checks normalized responses against the schema of a field set.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the schema for fields.
func NewValidator(fields []model.FieldSpec) (*Validator, error) {
	b, err := json.Marshal(SchemaFor(fields))
	if err != nil {
		return nil, eris.Wrap(err, "extract: marshal schema")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response.json", bytes.NewReader(b)); err != nil {
		return nil, eris.Wrap(err, "extract: add schema")
	}
	schema, err := compiler.Compile("response.json")
	if err != nil {
		return nil, eris.Wrap(err, "extract: compile schema")
	}
	return &Validator{schema: schema}, nil
}

// Validate checks doc, a value decoded from JSON.
func (v *Validator) Validate(doc map[string]any) error {
	return v.schema.Validate(doc)
}

// specKey identifies a field set for validator caching.
func specKey(fields []model.FieldSpec) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f.Name)
		b.WriteByte(':')
		b.WriteString(f.Type)
		b.WriteByte(';')
	}
	return b.String()
}
