package fetcher

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures ReadCSV.
type CSVOptions struct {
	Delimiter  rune   // default ','
	Charset    string // empty: detect from BOM, else UTF-8 with Windows-1252 fallback
	LazyQuotes bool
}

// ctxCheckEvery is how many records ReadCSV parses between context checks.
const ctxCheckEvery = 1000

// ReadCSV decodes delimited text into rows. Rows may differ in width.
// Trailing rows with only blank fields are dropped.
func ReadCSV(ctx context.Context, data []byte, opts CSVOptions) ([][]string, error) {
	text, err := DecodeText(data, opts.Charset)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(text))
	if opts.Delimiter != 0 {
		r.Comma = opts.Delimiter
	}
	r.LazyQuotes = opts.LazyQuotes
	r.FieldsPerRecord = -1

	var rows [][]string
	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "csv: read cancelled")
		}
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		rows = append(rows, record)
	}

	for len(rows) > 0 && blankRow(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return rows, nil
}

// WriteCSV writes rows with every field quoted and CRLF line endings. Rows
// are padded to the width of the first row.
func WriteCSV(w io.Writer, rows [][]string) error {
	width := 0
	if len(rows) > 0 {
		width = len(rows[0])
	}
	var b strings.Builder
	for _, row := range rows {
		b.Reset()
		for i := 0; i < max(width, len(row)); i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			v := ""
			if i < len(row) {
				v = row[i]
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(v, `"`, `""`))
			b.WriteByte('"')
		}
		b.WriteString("\r\n")
		if _, err := io.WriteString(w, b.String()); err != nil {
			return eris.Wrap(err, "csv: write row")
		}
	}
	return nil
}
