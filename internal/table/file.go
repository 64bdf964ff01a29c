package table

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/fetcher"
)

// CSVTable is a delimited text file, or stdin/stdout when Path is "-".
type CSVTable struct {
	Path      string
	Delimiter rune

	stdin  io.Reader
	stdout io.Writer
}

func (t *CSVTable) Location() string { return t.Path }

func (t *CSVTable) ReadTable(ctx context.Context) (*Grid, error) {
	var data []byte
	var err error
	if t.Path == "-" {
		if t.stdin == nil {
			return nil, eris.New("table: stdin not available")
		}
		data, err = io.ReadAll(t.stdin)
	} else {
		data, err = os.ReadFile(t.Path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "table: read %s", t.Path)
	}
	return parseCSV(ctx, data, t.Delimiter)
}

func (t *CSVTable) WriteTable(_ context.Context, g *Grid) error {
	if t.Path == "-" {
		if t.stdout == nil {
			return eris.New("table: stdout not available")
		}
		return writeDelimited(t.stdout, g, t.Delimiter)
	}

	f, err := os.Create(t.Path)
	if err != nil {
		return eris.Wrapf(err, "table: create %s", t.Path)
	}
	if err := writeDelimited(f, g, t.Delimiter); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "table: close %s", t.Path)
	}
	return nil
}

func writeDelimited(w io.Writer, g *Grid, delim rune) error {
	if delim == '\t' {
		var buf bytes.Buffer
		for _, row := range g.Values() {
			for i, v := range row {
				if i > 0 {
					buf.WriteByte('\t')
				}
				buf.WriteString(v)
			}
			buf.WriteByte('\n')
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return eris.Wrap(err, "table: write tsv")
		}
		return nil
	}
	return fetcher.WriteCSV(w, g.Values())
}

func parseCSV(ctx context.Context, data []byte, delim rune) (*Grid, error) {
	rows, err := fetcher.ReadCSV(ctx, data, fetcher.CSVOptions{Delimiter: delim, LazyQuotes: true})
	if err != nil {
		return nil, err
	}
	return NewGrid(rows), nil
}

// XLSXTable is a local workbook. Sheet selects a tab by name; empty means the
// first tab on read and "Results" on write.
type XLSXTable struct {
	Path  string
	Sheet string
}

func (t *XLSXTable) Location() string { return t.Path }

func (t *XLSXTable) ReadTable(_ context.Context) (*Grid, error) {
	rows, err := fetcher.ReadXLSX(t.Path, t.Sheet)
	if err != nil {
		return nil, err
	}
	return NewGrid(rows), nil
}

func (t *XLSXTable) WriteTable(_ context.Context, g *Grid) error {
	sheet := t.Sheet
	if sheet == "" {
		sheet = "Results"
	}
	return fetcher.WriteXLSX(t.Path, sheet, g.Values())
}

// RemoteTable is a CSV or XLSX file behind an http(s) or ftp URL.
type RemoteTable struct {
	Fetcher  fetcher.Fetcher
	URL      string
	MaxBytes int64
}

func (t *RemoteTable) Location() string { return t.URL }

func (t *RemoteTable) ReadTable(ctx context.Context) (*Grid, error) {
	data, err := fetcher.ReadAll(ctx, t.Fetcher, t.URL, t.MaxBytes)
	if err != nil {
		return nil, err
	}
	if isXLSX(t.URL, data) {
		rows, err := fetcher.ReadXLSXBinary(data, "")
		if err != nil {
			return nil, err
		}
		return NewGrid(rows), nil
	}
	return parseCSV(ctx, data, ',')
}

func (t *RemoteTable) WriteTable(context.Context, *Grid) error { return ErrReadOnly }

// isXLSX reports whether a download is a workbook, by extension or by the
// zip signature.
func isXLSX(rawURL string, data []byte) bool {
	u := rawURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if ext := strings.ToLower(path.Ext(u)); ext == ".xlsx" || ext == ".xlsm" {
		return true
	}
	return bytes.HasPrefix(data, []byte("PK\x03\x04"))
}
