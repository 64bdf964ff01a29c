package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/table"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entities.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOpen_ByName(t *testing.T) {
	path := writeCSV(t, "Company,City\nAcme,Springfield\n,Nowhere\n  Globex  ,Cypress Creek\n")

	src, err := Open(context.Background(), Descriptor{Location: path, Column: "company"}, table.Deps{})
	require.NoError(t, err)

	assert.Equal(t, "Company", src.Column())
	assert.Equal(t, 2, src.Len())

	recs := src.All()
	assert.Equal(t, model.EntityRecord{ID: 0, Value: "Acme", Attributes: map[string]string{"City": "Springfield"}}, recs[0])
	assert.Equal(t, 1, recs[1].ID)
	assert.Equal(t, "Globex", recs[1].Value)
}

func TestOpen_ByIndex(t *testing.T) {
	path := writeCSV(t, "id,name\n1,Acme\n2,Globex\n")

	src, err := Open(context.Background(), Descriptor{Location: path, Column: "1"}, table.Deps{})
	require.NoError(t, err)
	assert.Equal(t, "name", src.Column())
	assert.Equal(t, "Acme", src.All()[0].Value)
}

func TestOpen_SingleColumnDefault(t *testing.T) {
	path := writeCSV(t, "company\nAcme\n")

	src, err := Open(context.Background(), Descriptor{Location: path}, table.Deps{})
	require.NoError(t, err)
	assert.Equal(t, 1, src.Len())
}

func TestRecords_Restartable(t *testing.T) {
	path := writeCSV(t, "company\nAcme\nGlobex\nInitech\n")
	src, err := Open(context.Background(), Descriptor{Location: path, Column: "company"}, table.Deps{})
	require.NoError(t, err)

	var first []string
	for r := range src.Records() {
		first = append(first, r.Value)
		if len(first) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"Acme", "Globex"}, first)

	all := slices.Collect(src.Records())
	require.Len(t, all, 3)
	assert.Equal(t, "Acme", all[0].Value)
}

func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		column  string
		reason  string
	}{
		{name: "missing column", content: "company,city\nAcme,X\n", column: "ceo", reason: `column "ceo" not found`},
		{name: "index out of range", content: "company\nAcme\n", column: "3", reason: "out of range"},
		{name: "empty column", content: "company,city\n,X\n  ,Y\n", column: "company", reason: "no entity values"},
		{name: "ambiguous default", content: "a,b\n1,2\n", column: "", reason: "entity column required"},
		{name: "no header", content: "", column: "company", reason: "no header row"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCSV(t, tt.content)
			_, err := Open(context.Background(), Descriptor{Location: path, Column: tt.column}, table.Deps{})

			var se *model.SourceError
			require.True(t, errors.As(err, &se))
			assert.Contains(t, se.Reason, tt.reason)
		})
	}
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(context.Background(), Descriptor{Location: "/nonexistent/entities.csv", Column: "x"}, table.Deps{})

	var se *model.SourceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "unreadable", se.Reason)
	assert.Error(t, se.Err)
}

func TestOpen_UnsupportedLocation(t *testing.T) {
	_, err := Open(context.Background(), Descriptor{Location: "entities.parquet", Column: "x"}, table.Deps{})

	var se *model.SourceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "unsupported location", se.Reason)
}

func TestPreview(t *testing.T) {
	path := writeCSV(t, "company,city\nA,1\nB,2\nC,3\n")
	g, err := Preview(context.Background(), path, 2, table.Deps{})
	require.NoError(t, err)
	assert.Equal(t, []string{"company", "city"}, g.Header)
	assert.Len(t, g.Rows, 2)
}
