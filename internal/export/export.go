// Package export flattens a batch run into a results table and writes it to
// a destination.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
	"github.com/sells-group/enrich-cli/internal/table"
)

// Columns returns the result header for spec: entity, the fields, one
// confidence column per field, status and error.
func Columns(spec model.QuerySpec) []string {
	names := spec.FieldNames()
	cols := make([]string, 0, 2*len(names)+3)
	cols = append(cols, model.ColumnEntity)
	cols = append(cols, names...)
	for _, n := range names {
		cols = append(cols, model.ConfidencePrefix+n)
	}
	return append(cols, model.ColumnStatus, model.ColumnError)
}

// Grid flattens run into one row per outcome in entity order.
func Grid(run *model.BatchRun) *table.Grid {
	names := run.Spec.FieldNames()
	outcomes := make([]model.ExtractionOutcome, len(run.Outcomes))
	copy(outcomes, run.Outcomes)
	sorted := model.BatchRun{Outcomes: outcomes}
	sorted.SortOutcomes()

	g := &table.Grid{Header: Columns(run.Spec), Rows: make([][]string, 0, len(outcomes))}
	for _, o := range sorted.Outcomes {
		row := make([]string, 0, len(g.Header))
		row = append(row, o.Entity)
		for _, n := range names {
			row = append(row, FormatValue(o.Fields[n]))
		}
		for _, n := range names {
			row = append(row, formatConfidence(o, n))
		}
		row = append(row, string(o.Status), o.Error)
		g.Rows = append(g.Rows, row)
	}
	return g
}

// FormatValue renders an extracted value as a single cell. Lists of scalars
// are joined with "; ", objects are written as JSON and nil is empty.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			switch item.(type) {
			case map[string]any, []any:
				return marshal(t)
			}
			if s := FormatValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		return marshal(t)
	}
}

func marshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func formatConfidence(o model.ExtractionOutcome, field string) string {
	if model.IsEmptyValue(o.Fields[field]) {
		return "0.00"
	}
	return strconv.FormatFloat(o.Confidence[field], 'f', 2, 64)
}

// Export writes run to the table at destination and returns where the rows
// landed (see To). Failures are returned as *model.ExportError.
func Export(ctx context.Context, run *model.BatchRun, destination string, deps table.Deps) (string, error) {
	t, err := table.Parse(destination, deps)
	if err != nil {
		return "", &model.ExportError{Kind: model.ExportIO, Destination: destination, Err: err}
	}
	return To(ctx, run, t)
}

// creator is implemented by tables that make a new document on write.
type creator interface {
	CreatedURL() string
}

// To writes run to t and returns the written location: the URL of a newly
// created spreadsheet, otherwise t's location.
func To(ctx context.Context, run *model.BatchRun, t table.Table) (string, error) {
	g := Grid(run)
	if err := t.WriteTable(ctx, g); err != nil {
		kind := Classify(err)
		zap.L().Error("export: write failed",
			zap.String("destination", t.Location()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return "", &model.ExportError{Kind: kind, Destination: t.Location(), Err: err}
	}

	written := t.Location()
	if c, ok := t.(creator); ok && c.CreatedURL() != "" {
		written = c.CreatedURL()
	}
	zap.L().Info("export: results written",
		zap.String("run_id", run.ID),
		zap.String("destination", written),
		zap.Int("rows", len(g.Rows)),
	)
	return written, nil
}

// WriteCSV writes run as CSV to w.
func WriteCSV(ctx context.Context, run *model.BatchRun, w io.Writer) error {
	t, err := table.Parse("-", table.Deps{Stdout: w})
	if err != nil {
		return eris.Wrap(err, "export: csv writer")
	}
	_, err = To(ctx, run, t)
	return err
}

// Classify maps a destination write failure to an export error kind.
func Classify(err error) model.ExportErrorKind {
	if errors.Is(err, table.ErrReadOnly) || errors.Is(err, fs.ErrPermission) {
		return model.ExportPermissionDenied
	}
	switch code := resilience.StatusCode(err); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return model.ExportPermissionDenied
	case code == http.StatusTooManyRequests:
		return model.ExportQuotaExceeded
	case code >= 500:
		return model.ExportNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return model.ExportNetwork
	}
	return model.ExportIO
}

// Summary tallies the outcomes of run.
func Summary(run *model.BatchRun) model.Summary {
	return run.Summary()
}

// FormatSummary renders s as a one-line report.
func FormatSummary(s model.Summary) string {
	return fmt.Sprintf("%d entities: %d ok, %d partial, %d failed", s.Total, s.OK, s.Partial, s.Failed)
}
