package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetValues(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v4/spreadsheets/sheet-1/values/Sheet1!A1:Z1000", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"range":"Sheet1!A1:Z1000","values":[["company","city"],["Acme",""],["Globex",42]]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(StaticToken("tok"), WithBaseURL(srv.URL))
	rows, err := c.GetValues(context.Background(), "sheet-1", "Sheet1!A1:Z1000")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"company", "city"}, rows[0])
	assert.Equal(t, []string{"Globex", "42"}, rows[2])
}

func TestUpdateValues_Raw(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "RAW", r.URL.Query().Get("valueInputOption"))

		body, _ := io.ReadAll(r.Body)
		var vr valueRange
		require.NoError(t, json.Unmarshal(body, &vr))
		assert.Equal(t, "ROWS", vr.MajorDimension)
		require.Len(t, vr.Values, 2)
		assert.Equal(t, "=SUM(A1)", vr.Values[1][0])
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(StaticToken("tok"), WithBaseURL(srv.URL))
	err := c.UpdateValues(context.Background(), "s", "A1", [][]string{{"entity"}, {"=SUM(A1)"}})
	require.NoError(t, err)
}

func TestAppendValues(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "INSERT_ROWS", r.URL.Query().Get("insertDataOption"))
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(StaticToken("tok"), WithBaseURL(srv.URL))
	require.NoError(t, c.AppendValues(context.Background(), "s", "Results", [][]string{{"a"}}))
	assert.Equal(t, "/v4/spreadsheets/s/values/Results:append", gotPath)
}

func TestCreateSpreadsheetAndBoldHeader(t *testing.T) {
	t.Parallel()

	var batchBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v4/spreadsheets":
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), `"title":"AI Agent Results"`)
			w.Write([]byte(`{"spreadsheetId":"new-id","spreadsheetUrl":"https://docs.google.com/spreadsheets/d/new-id","sheets":[{"properties":{"sheetId":0,"title":"Sheet1"}}]}`)) //nolint:errcheck
		case "/v4/spreadsheets/new-id:batchUpdate":
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &batchBody))
			w.Write([]byte(`{}`)) //nolint:errcheck
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(StaticToken("tok"), WithBaseURL(srv.URL))
	ss, err := c.CreateSpreadsheet(context.Background(), "AI Agent Results")
	require.NoError(t, err)
	assert.Equal(t, "new-id", ss.SpreadsheetID)
	require.Len(t, ss.Sheets, 1)
	assert.Equal(t, "Sheet1", ss.Sheets[0].Properties.Title)

	require.NoError(t, c.BoldHeaderRow(context.Background(), ss.SpreadsheetID, 0))
	assert.Contains(t, batchBody, "requests")
}

func TestAPIError_PassesThrough(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"The caller does not have permission","status":"PERMISSION_DENIED"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(StaticToken("tok"), WithBaseURL(srv.URL))
	_, err := c.GetValues(context.Background(), "s", "A1:Z1000")

	apiErr, ok := err.(*APIError)
	require.True(t, ok, "expected *APIError, got %T", err)
	assert.Equal(t, http.StatusForbidden, apiErr.HTTPStatusCode())
	assert.Equal(t, "The caller does not have permission", apiErr.Message)
}
