package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/table"
	"github.com/sells-group/enrich-cli/pkg/sheets"
)

func acmeGlobexRun() *model.BatchRun {
	s := model.QuerySpec{
		Template: "{entity} headquarters location",
		Fields:   []model.FieldSpec{{Name: "headquarters"}},
	}
	globex := model.NewOutcome(model.EntityRecord{ID: 1, Value: "Globex"}, s.FieldNames())
	globex.ErrorCategory = model.CategoryTransient
	globex.Error = "search: transient"

	acme := model.NewOutcome(model.EntityRecord{ID: 0, Value: "Acme Corp"}, s.FieldNames())
	acme.Fields["headquarters"] = "Springfield, IL"
	acme.Confidence["headquarters"] = 0.875
	acme.ResolveStatus()

	return &model.BatchRun{
		ID:        "run-1",
		Spec:      s,
		Total:     2,
		Completed: 2,
		// Out of order on purpose.
		Outcomes: []model.ExtractionOutcome{globex, acme},
	}
}

func TestColumns(t *testing.T) {
	s := model.QuerySpec{Fields: []model.FieldSpec{{Name: "email"}, {Name: "phone"}}}
	assert.Equal(t,
		[]string{"entity", "email", "phone", "confidence_email", "confidence_phone", "status", "error"},
		Columns(s))
}

func TestGrid_AcmeGlobex(t *testing.T) {
	g := Grid(acmeGlobexRun())
	assert.Equal(t, []string{"entity", "headquarters", "confidence_headquarters", "status", "error"}, g.Header)
	require.Len(t, g.Rows, 2)
	assert.Equal(t, []string{"Acme Corp", "Springfield, IL", "0.88", "ok", ""}, g.Rows[0])
	assert.Equal(t, []string{"Globex", "", "0.00", "failed", "search: transient"}, g.Rows[1])
}

func TestGrid_DoesNotReorderRun(t *testing.T) {
	run := acmeGlobexRun()
	Grid(run)
	assert.Equal(t, "Globex", run.Outcomes[0].Entity)
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"a@b.com", "a@b.com"},
		{float64(1200), "1200"},
		{1.5, "1.5"},
		{true, "true"},
		{[]any{"a@b.com", "c@d.com"}, "a@b.com; c@d.com"},
		{[]any{"a", nil, ""}, "a"},
		{map[string]any{"linkedin": "https://linkedin.com/company/acme"}, `{"linkedin":"https://linkedin.com/company/acme"}`},
		{[]any{map[string]any{"city": "Springfield"}}, `[{"city":"Springfield"}]`},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(context.Background(), acmeGlobexRun(), &buf))
	assert.Equal(t,
		"\"entity\",\"headquarters\",\"confidence_headquarters\",\"status\",\"error\"\r\n"+
			"\"Acme Corp\",\"Springfield, IL\",\"0.88\",\"ok\",\"\"\r\n"+
			"\"Globex\",\"\",\"0.00\",\"failed\",\"search: transient\"\r\n",
		buf.String())
}

func TestExport_CSVFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	written, err := Export(context.Background(), acmeGlobexRun(), path, table.Deps{})
	require.NoError(t, err)
	assert.Equal(t, path, written)

	tb, err := table.Parse(path, table.Deps{})
	require.NoError(t, err)
	g, err := tb.ReadTable(context.Background())
	require.NoError(t, err)
	assert.Len(t, g.Rows, 2)
	assert.Equal(t, "Springfield, IL", g.Rows[0][1])
}

func TestExport_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xlsx")
	_, err := Export(context.Background(), acmeGlobexRun(), path, table.Deps{})
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestExport_BadDestination(t *testing.T) {
	_, err := Export(context.Background(), acmeGlobexRun(), "results.json", table.Deps{})
	var ee *model.ExportError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, model.ExportIO, ee.Kind)
	assert.Equal(t, "results.json", ee.Destination)
}

type failingTable struct{ err error }

func (f failingTable) ReadTable(context.Context) (*table.Grid, error) { return nil, f.err }
func (f failingTable) WriteTable(context.Context, *table.Grid) error  { return f.err }
func (f failingTable) Location() string                               { return "fake://dest" }

func TestTo_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ExportErrorKind
	}{
		{"read only", table.ErrReadOnly, model.ExportPermissionDenied},
		{"fs permission", &os.PathError{Op: "open", Path: "/x", Err: os.ErrPermission}, model.ExportPermissionDenied},
		{"forbidden", &sheets.APIError{StatusCode: 403}, model.ExportPermissionDenied},
		{"unauthorized", &sheets.APIError{StatusCode: 401}, model.ExportPermissionDenied},
		{"rate limited", &sheets.APIError{StatusCode: 429}, model.ExportQuotaExceeded},
		{"server error", &sheets.APIError{StatusCode: 503}, model.ExportNetwork},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, model.ExportNetwork},
		{"other", errors.New("disk full"), model.ExportIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := To(context.Background(), acmeGlobexRun(), failingTable{err: tt.err})
			var ee *model.ExportError
			require.True(t, errors.As(err, &ee))
			assert.Equal(t, tt.want, ee.Kind)
			assert.Equal(t, "fake://dest", ee.Destination)
		})
	}
}

func TestSummary(t *testing.T) {
	s := Summary(acmeGlobexRun())
	assert.Equal(t, model.Summary{Total: 2, OK: 1, Failed: 1}, s)
	assert.Equal(t, "2 entities: 1 ok, 0 partial, 1 failed", FormatSummary(s))
}

// newSheet stands in for a table that creates a document on write.
type newSheet struct {
	url  string
	rows int
}

func (n *newSheet) ReadTable(context.Context) (*table.Grid, error) { return nil, table.ErrReadOnly }
func (n *newSheet) WriteTable(_ context.Context, g *table.Grid) error {
	n.rows = len(g.Rows)
	n.url = "https://docs.google.com/spreadsheets/d/sheet-123/edit"
	return nil
}
func (n *newSheet) Location() string   { return "sheets://new/Results" }
func (n *newSheet) CreatedURL() string { return n.url }

func TestTo_ReportsCreatedURL(t *testing.T) {
	dest := &newSheet{}
	written, err := To(context.Background(), acmeGlobexRun(), dest)
	require.NoError(t, err)
	assert.Equal(t, 2, dest.rows)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/sheet-123/edit", written)
}
