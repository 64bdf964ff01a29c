// Package source reads entity records from a table location.
package source

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/table"
)

// Descriptor names a table location and the entity column within it.
type Descriptor struct {
	Location string
	// Column is a header name (case-insensitive) or a 0-based index.
	Column string
	// Range overrides the read range for spreadsheet locations.
	Range string
}

// Source is a validated, in-memory entity table. Iteration always starts from
// the first record.
type Source struct {
	desc    Descriptor
	header  []string
	column  int
	records []model.EntityRecord
}

// Open reads the location and validates the entity column. Any failure is a
// *model.SourceError.
func Open(ctx context.Context, desc Descriptor, deps table.Deps) (*Source, error) {
	tbl, err := table.Parse(desc.Location, deps)
	if err != nil {
		return nil, &model.SourceError{Location: desc.Location, Reason: "unsupported location", Err: err}
	}
	if st, ok := tbl.(*table.SheetsTable); ok && desc.Range != "" {
		st.Range = desc.Range
	}

	grid, err := tbl.ReadTable(ctx)
	if err != nil {
		return nil, &model.SourceError{Location: desc.Location, Reason: "unreadable", Err: err}
	}
	return FromGrid(desc, grid)
}

// FromGrid builds a Source from an already-read grid.
func FromGrid(desc Descriptor, grid *table.Grid) (*Source, error) {
	if len(grid.Header) == 0 {
		return nil, &model.SourceError{Location: desc.Location, Reason: "no header row"}
	}

	col, err := resolveColumn(grid, desc.Column)
	if err != nil {
		return nil, &model.SourceError{Location: desc.Location, Reason: err.Error()}
	}

	s := &Source{desc: desc, header: grid.Header, column: col}
	skipped := 0
	for _, row := range grid.Rows {
		value := ""
		if col < len(row) {
			value = strings.TrimSpace(row[col])
		}
		if value == "" {
			skipped++
			continue
		}
		attrs := make(map[string]string, len(grid.Header)-1)
		for i, h := range grid.Header {
			if i == col || h == "" || i >= len(row) {
				continue
			}
			attrs[h] = row[i]
		}
		s.records = append(s.records, model.EntityRecord{
			ID:         len(s.records),
			Value:      value,
			Attributes: attrs,
		})
	}

	if len(s.records) == 0 {
		return nil, &model.SourceError{
			Location: desc.Location,
			Reason:   fmt.Sprintf("column %q has no entity values", grid.Header[col]),
		}
	}

	zap.L().Debug("source: opened",
		zap.String("location", desc.Location),
		zap.String("column", grid.Header[col]),
		zap.Int("records", len(s.records)),
		zap.Int("blank_skipped", skipped),
	)
	return s, nil
}

func resolveColumn(grid *table.Grid, column string) (int, error) {
	column = strings.TrimSpace(column)
	if column == "" {
		if len(grid.Header) == 1 {
			return 0, nil
		}
		return -1, eris.Errorf("entity column required (have: %s)", strings.Join(grid.Header, ", "))
	}
	if i := grid.ColumnIndex(column); i >= 0 {
		return i, nil
	}
	if n, err := strconv.Atoi(column); err == nil {
		if n < 0 || n >= len(grid.Header) {
			return -1, eris.Errorf("column index %d out of range (table has %d columns)", n, len(grid.Header))
		}
		return n, nil
	}
	return -1, eris.Errorf("column %q not found (have: %s)", column, strings.Join(grid.Header, ", "))
}

// Location returns the descriptor location.
func (s *Source) Location() string { return s.desc.Location }

// Column returns the header of the entity column.
func (s *Source) Column() string { return s.header[s.column] }

// Header returns the full header row.
func (s *Source) Header() []string { return s.header }

// Len returns the number of entity records.
func (s *Source) Len() int { return len(s.records) }

// Records yields records in source order.
func (s *Source) Records() iter.Seq[model.EntityRecord] {
	return func(yield func(model.EntityRecord) bool) {
		for _, r := range s.records {
			if !yield(r) {
				return
			}
		}
	}
}

// All returns a copy of the records in source order.
func (s *Source) All() []model.EntityRecord {
	out := make([]model.EntityRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Preview reads a location and returns its header and first n rows.
func Preview(ctx context.Context, location string, n int, deps table.Deps) (*table.Grid, error) {
	tbl, err := table.Parse(location, deps)
	if err != nil {
		return nil, &model.SourceError{Location: location, Reason: "unsupported location", Err: err}
	}
	grid, err := tbl.ReadTable(ctx)
	if err != nil {
		return nil, &model.SourceError{Location: location, Reason: "unreadable", Err: err}
	}
	return grid.Head(n), nil
}
