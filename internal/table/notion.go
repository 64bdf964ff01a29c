package table

import (
	"context"

	"github.com/sells-group/enrich-cli/pkg/notion"
)

// NotionTable is a Notion database. Reading flattens page properties. Writing
// creates one page per row; the first column fills the database's title
// property whatever it is named.
type NotionTable struct {
	Client     notion.Client
	DatabaseID string
}

func (t *NotionTable) Location() string { return "notion://" + t.DatabaseID }

func (t *NotionTable) ReadTable(ctx context.Context) (*Grid, error) {
	pages, err := notion.ReadAll(ctx, t.Client, t.DatabaseID, 0)
	if err != nil {
		return nil, err
	}
	header, rows := notion.PagesToRows(pages)
	return &Grid{Header: header, Rows: rows}, nil
}

func (t *NotionTable) WriteTable(ctx context.Context, g *Grid) error {
	if len(g.Header) == 0 {
		return nil
	}
	title, err := notion.TitleProperty(ctx, t.Client, t.DatabaseID)
	if err != nil {
		return err
	}
	header := append([]string{title}, g.Header[1:]...)
	_, err = notion.WriteRows(ctx, t.Client, t.DatabaseID, header, g.Rows, title)
	return err
}
