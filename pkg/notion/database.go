package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// maxPageSize is the largest page the query endpoint returns.
const maxPageSize = 100

// ReadAll returns every page of a database in creation order, following
// cursors until the last page. limit caps the number of pages returned;
// zero means no cap.
func ReadAll(ctx context.Context, c Client, dbID string, limit int) ([]notionapi.Page, error) {
	var (
		pages  []notionapi.Page
		cursor notionapi.Cursor
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "notion: read database")
		}
		resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
			Sorts: []notionapi.SortObject{{
				Timestamp: notionapi.TimestampCreated,
				Direction: notionapi.SortOrderASC,
			}},
			StartCursor: cursor,
			PageSize:    maxPageSize,
		})
		if err != nil {
			return nil, err
		}
		pages = append(pages, resp.Results...)
		if limit > 0 && len(pages) >= limit {
			return pages[:limit], nil
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return pages, nil
		}
		cursor = resp.NextCursor
	}
}

// TitleProperty returns the name of the database's title property. Every
// Notion database has exactly one.
func TitleProperty(ctx context.Context, c Client, dbID string) (string, error) {
	db, err := c.GetDatabase(ctx, dbID)
	if err != nil {
		return "", err
	}
	for name, prop := range db.Properties {
		if prop != nil && prop.GetType() == notionapi.PropertyConfigTypeTitle {
			return name, nil
		}
	}
	return "", eris.Errorf("notion: database %s has no title property", dbID)
}
