package notion

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// PagesToRows flattens database pages into a header and string rows. The
// title property comes first and the remaining properties follow in name
// order. Unsupported property types render as empty strings.
func PagesToRows(pages []notionapi.Page) ([]string, [][]string) {
	names := map[string]bool{}
	title := ""
	for _, p := range pages {
		for name, prop := range p.Properties {
			names[name] = true
			if title == "" && isTitle(prop) {
				title = name
			}
		}
	}

	header := make([]string, 0, len(names))
	for name := range names {
		if name != title {
			header = append(header, name)
		}
	}
	sort.Strings(header)
	if title != "" {
		header = append([]string{title}, header...)
	}

	rows := make([][]string, 0, len(pages))
	for _, p := range pages {
		row := make([]string, len(header))
		for i, name := range header {
			if prop, ok := p.Properties[name]; ok {
				row[i] = PropertyText(prop)
			}
		}
		rows = append(rows, row)
	}
	return header, rows
}

func isTitle(prop notionapi.Property) bool {
	switch prop.(type) {
	case notionapi.TitleProperty, *notionapi.TitleProperty:
		return true
	}
	return false
}

// PropertyText renders a page property as plain text.
func PropertyText(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		return richText(p.Title)
	case notionapi.TitleProperty:
		return richText(p.Title)
	case *notionapi.RichTextProperty:
		return richText(p.RichText)
	case notionapi.RichTextProperty:
		return richText(p.RichText)
	case *notionapi.URLProperty:
		return p.URL
	case notionapi.URLProperty:
		return p.URL
	case *notionapi.EmailProperty:
		return p.Email
	case *notionapi.NumberProperty:
		return strconv.FormatFloat(p.Number, 'f', -1, 64)
	case *notionapi.CheckboxProperty:
		return strconv.FormatBool(p.Checkbox)
	case *notionapi.SelectProperty:
		return p.Select.Name
	case *notionapi.StatusProperty:
		return p.Status.Name
	case *notionapi.MultiSelectProperty:
		opts := make([]string, 0, len(p.MultiSelect))
		for _, o := range p.MultiSelect {
			opts = append(opts, o.Name)
		}
		return strings.Join(opts, ", ")
	}
	return ""
}

func richText(parts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range parts {
		if rt.PlainText != "" {
			b.WriteString(rt.PlainText)
		} else if rt.Text != nil {
			b.WriteString(rt.Text.Content)
		}
	}
	return b.String()
}

// MapRow pairs each header with the corresponding value in the row.
// Missing values become empty strings.
func MapRow(headers []string, row []string) map[string]string {
	result := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(row) {
			result[h] = row[i]
		} else {
			result[h] = ""
		}
	}
	return result
}

// WriteRows creates one page per row in the database. titleColumn names the
// header that becomes the page title; every other column is stored as
// rich_text. Returns the number of pages created.
func WriteRows(ctx context.Context, c Client, dbID string, header []string, rows [][]string, titleColumn string) (int, error) {
	created := 0
	for _, row := range rows {
		if ctx.Err() != nil {
			return created, eris.Wrap(ctx.Err(), "notion: write rows cancelled")
		}

		req := &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(dbID),
			},
			Properties: buildPageProperties(MapRow(header, row), titleColumn),
		}

		if _, err := c.CreatePage(ctx, req); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func buildPageProperties(row map[string]string, titleColumn string) notionapi.Properties {
	props := make(notionapi.Properties, len(row))
	for k, v := range row {
		text := []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: truncateText(v)}},
		}
		if strings.EqualFold(k, titleColumn) {
			props[k] = notionapi.TitleProperty{Type: notionapi.PropertyTypeTitle, Title: text}
			continue
		}
		props[k] = notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: text}
	}
	return props
}

// Notion rejects rich_text content longer than 2000 characters.
const maxTextLen = 2000

func truncateText(s string) string {
	r := []rune(s)
	if len(r) <= maxTextLen {
		return s
	}
	return string(r[:maxTextLen])
}
