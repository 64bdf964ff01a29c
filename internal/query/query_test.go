package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func TestRender(t *testing.T) {
	t.Parallel()

	attrs := map[string]string{"City": "Springfield"}
	tests := []struct {
		name     string
		template string
		b        Bindings
		want     string
	}{
		{name: "entity only", template: "{entity} headquarters location", b: Bindings{Entity: "Acme Corp"}, want: "Acme Corp headquarters location"},
		{name: "field and entity", template: "Find the {field} of {entity}", b: Bindings{Entity: "Acme", Field: "ceo"}, want: "Find the ceo of Acme"},
		{name: "underscored field", template: "{entity} {field}", b: Bindings{Entity: "Acme", Field: "social_media"}, want: "Acme social media"},
		{name: "attribute case-insensitive", template: "{entity} {city}", b: Bindings{Entity: "Acme", Attrs: attrs}, want: "Acme Springfield"},
		{name: "placeholder case", template: "{Entity}", b: Bindings{Entity: "Acme"}, want: "Acme"},
		{name: "escaped braces", template: "{{literal}} {entity}", b: Bindings{Entity: "Acme"}, want: "{literal} Acme"},
		{name: "whitespace collapsed", template: "  {entity}   ceo ", b: Bindings{Entity: "Acme"}, want: "Acme ceo"},
		{name: "no placeholders", template: "static query", b: Bindings{}, want: "static query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Render(tt.template, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_Deterministic(t *testing.T) {
	t.Parallel()

	b := Bindings{Entity: "Globex", Attrs: map[string]string{"a": "1", "b": "2", "c": "3"}}
	first, err := Render("{entity} {a} {b} {c}", b)
	require.NoError(t, err)
	for range 50 {
		again, err := Render("{entity} {a} {b} {c}", b)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRender_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		template    string
		b           Bindings
		placeholder string
		reason      string
	}{
		{name: "unknown placeholder", template: "{entity} {ceo_name}", b: Bindings{Entity: "Acme"}, placeholder: "ceo_name", reason: "no binding for"},
		{name: "unbound field", template: "{field} of {entity}", b: Bindings{Entity: "Acme"}, placeholder: "field", reason: "no binding for"},
		{name: "unterminated", template: "{entity", reason: "unterminated placeholder"},
		{name: "nested open", template: "{ent{ity}", reason: "unterminated placeholder"},
		{name: "empty", template: "{} {entity}", reason: "empty placeholder"},
		{name: "stray close", template: "entity}", reason: "unmatched closing brace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Render(tt.template, tt.b)

			var te *model.TemplateError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.placeholder, te.Placeholder)
			assert.Equal(t, tt.reason, te.Reason)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Validate("Find the {field} of {entity}", nil))
	assert.NoError(t, Validate("{entity} in {city}", []string{"Company", "City"}))

	err := Validate("{entity} in {state}", []string{"Company", "City"})
	var te *model.TemplateError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "state", te.Placeholder)

	err = Validate("{city} businesses", nil)
	require.True(t, errors.As(err, &te))
	assert.Contains(t, te.Reason, "must reference")

	assert.Error(t, Validate("{entity", nil))
}

func TestExpand(t *testing.T) {
	t.Parallel()

	rec := model.EntityRecord{ID: 0, Value: "Acme"}
	fields := []model.FieldSpec{{Name: "ceo"}, {Name: "founded_year"}}

	queries, err := Expand(model.QuerySpec{Template: "{entity} company", Fields: fields}, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme company"}, queries)

	queries, err = Expand(model.QuerySpec{Template: "{entity} {field}", Fields: fields}, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme ceo", "Acme founded year"}, queries)
}

func TestPlaceholders(t *testing.T) {
	t.Parallel()

	names, err := Placeholders("{entity} {City} {{x}} {entity} {city}")
	require.NoError(t, err)
	assert.Equal(t, []string{"entity", "City"}, names)
	assert.True(t, IsPerField("{FIELD} of {entity}"))
	assert.False(t, IsPerField("{entity}"))
}
