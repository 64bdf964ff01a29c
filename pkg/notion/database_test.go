package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func byCursor(cursor string) any {
	return mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == notionapi.Cursor(cursor)
	})
}

func TestReadAll_FollowsCursors(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", byCursor("")).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "p1"}, {ID: "p2"}},
		HasMore:    true,
		NextCursor: "c-2",
	}, nil).Once()
	mc.On("QueryDatabase", ctx, "db-1", byCursor("c-2")).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "p3"}},
	}, nil).Once()

	pages, err := ReadAll(ctx, mc, "db-1", 0)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, notionapi.ObjectID("p3"), pages[2].ID)
	mc.AssertExpectations(t)
}

func TestReadAll_CreationOrder(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return len(req.Sorts) == 1 &&
			req.Sorts[0].Timestamp == notionapi.TimestampCreated &&
			req.Sorts[0].Direction == notionapi.SortOrderASC &&
			req.PageSize == maxPageSize
	})).Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "p1"}}}, nil).Once()

	_, err := ReadAll(ctx, mc, "db-1", 0)
	require.NoError(t, err)
	mc.AssertExpectations(t)
}

func TestReadAll_Limit(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", byCursor("")).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}},
		HasMore:    true,
		NextCursor: "c-2",
	}, nil).Once()

	pages, err := ReadAll(ctx, mc, "db-1", 2)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	mc.AssertExpectations(t)
}

func TestReadAll_Error(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.Anything).Return(nil, &APIError{StatusCode: 404, Code: "object_not_found"}).Once()

	pages, err := ReadAll(ctx, mc, "db-1", 0)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.HTTPStatusCode())
	assert.Nil(t, pages)
}

func TestReadAll_ContextCancelled(t *testing.T) {
	mc := new(MockClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pages, err := ReadAll(ctx, mc, "db-1", 0)
	assert.Error(t, err)
	assert.Nil(t, pages)
	mc.AssertNotCalled(t, "QueryDatabase", mock.Anything, mock.Anything, mock.Anything)
}

func TestTitleProperty(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("GetDatabase", ctx, "db-1").Return(&notionapi.Database{
		Properties: notionapi.PropertyConfigs{
			"City":    &notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			"Company": &notionapi.TitlePropertyConfig{Type: notionapi.PropertyConfigTypeTitle},
		},
	}, nil).Once()

	name, err := TitleProperty(ctx, mc, "db-1")
	require.NoError(t, err)
	assert.Equal(t, "Company", name)
	mc.AssertExpectations(t)
}

func TestTitleProperty_Missing(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("GetDatabase", ctx, "db-1").Return(&notionapi.Database{
		Properties: notionapi.PropertyConfigs{
			"City": &notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
		},
	}, nil).Once()

	_, err := TitleProperty(ctx, mc, "db-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no title property")
}
