package notion

import (
	"context"
	"strings"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func text(s string) []notionapi.RichText {
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, PlainText: s}}
}

func TestPagesToRows(t *testing.T) {
	t.Parallel()

	pages := []notionapi.Page{
		{ID: "p1", Properties: notionapi.Properties{
			"Company":  &notionapi.TitleProperty{Title: text("Acme")},
			"Website":  &notionapi.URLProperty{URL: "https://acme.com"},
			"Industry": &notionapi.SelectProperty{Select: notionapi.Option{Name: "Manufacturing"}},
		}},
		{ID: "p2", Properties: notionapi.Properties{
			"Company":   &notionapi.TitleProperty{Title: text("Globex")},
			"Employees": &notionapi.NumberProperty{Number: 120},
		}},
	}

	header, rows := PagesToRows(pages)
	assert.Equal(t, []string{"Company", "Employees", "Industry", "Website"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Acme", "", "Manufacturing", "https://acme.com"}, rows[0])
	assert.Equal(t, []string{"Globex", "120", "", ""}, rows[1])
}

func TestPropertyText_RichTextFallsBackToContent(t *testing.T) {
	t.Parallel()

	prop := notionapi.RichTextProperty{RichText: []notionapi.RichText{
		{Text: &notionapi.Text{Content: "Spring"}},
		{PlainText: "field"},
	}}
	assert.Equal(t, "Springfield", PropertyText(prop))
	assert.Equal(t, "true", PropertyText(&notionapi.CheckboxProperty{Checkbox: true}))
	assert.Equal(t, "a, b", PropertyText(&notionapi.MultiSelectProperty{
		MultiSelect: []notionapi.Option{{Name: "a"}, {Name: "b"}},
	}))
}

func TestMapRow_ShortRow(t *testing.T) {
	t.Parallel()

	got := MapRow([]string{"a", "b", "c"}, []string{"1"})
	assert.Equal(t, map[string]string{"a": "1", "b": "", "c": ""}, got)
}

func TestWriteRows(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		if req.Parent.DatabaseID != notionapi.DatabaseID("db-out") {
			return false
		}
		title, ok := req.Properties["entity"].(notionapi.TitleProperty)
		if !ok || len(title.Title) != 1 {
			return false
		}
		_, ok = req.Properties["ceo"].(notionapi.RichTextProperty)
		return ok
	})).Return(&notionapi.Page{ID: "new"}, nil).Twice()

	n, err := WriteRows(ctx, mc, "db-out", []string{"entity", "ceo"}, [][]string{
		{"Acme", "Wile E."},
		{"Globex", "Hank"},
	}, "entity")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	mc.AssertExpectations(t)
}

func TestWriteRows_StopsOnError(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("CreatePage", ctx, mock.Anything).Return(nil, assert.AnError).Once()

	n, err := WriteRows(ctx, mc, "db", []string{"entity"}, [][]string{{"a"}, {"b"}}, "entity")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, n)
	mc.AssertExpectations(t)
}

func TestBuildPageProperties_TruncatesLongText(t *testing.T) {
	t.Parallel()

	props := buildPageProperties(map[string]string{"notes": strings.Repeat("x", 2500)}, "entity")
	rt := props["notes"].(notionapi.RichTextProperty)
	assert.Len(t, rt.RichText[0].Text.Content, 2000)
}

func TestAPIErrorConversion(t *testing.T) {
	t.Parallel()

	err := apiError(&notionapi.Error{Status: 429, Code: "rate_limited", Message: "slow down"}, "notion: query")
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, 429, apiErr.HTTPStatusCode())

	err = apiError(assert.AnError, "notion: query")
	assert.Contains(t, err.Error(), "notion: query")
}
