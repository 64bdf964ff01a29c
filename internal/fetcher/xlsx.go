package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadXLSX reads one sheet of the workbook at path. An empty sheet name
// selects the first tab. Blank rows at the bottom of the sheet are dropped.
func ReadXLSX(path, sheet string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}
	return readSheet(f, sheet)
}

// ReadXLSXBinary is ReadXLSX for a workbook already held in memory.
func ReadXLSXBinary(data []byte, sheet string) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open binary")
	}
	return readSheet(f, sheet)
}

// WriteXLSX saves rows as a single-sheet workbook, replacing any file at
// path. The first row is the header and is set in bold.
func WriteXLSX(path, sheet string, rows [][]string) error {
	if sheet == "" {
		sheet = "Sheet1"
	}
	f := xlsx.NewFile()
	sh, err := f.AddSheet(sheet)
	if err != nil {
		return eris.Wrapf(err, "xlsx: add sheet %q", sheet)
	}

	header := xlsx.NewStyle()
	header.Font.Bold = true
	header.ApplyFont = true

	for i, values := range rows {
		r := sh.AddRow()
		for _, v := range values {
			c := r.AddCell()
			c.SetString(v)
			if i == 0 {
				c.SetStyle(header)
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func readSheet(f *xlsx.File, name string) ([][]string, error) {
	sh, err := pickSheet(f, name)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(sh.Rows))
	for _, r := range sh.Rows {
		values := make([]string, len(r.Cells))
		for i, c := range r.Cells {
			values[i] = c.String()
		}
		rows = append(rows, values)
	}
	for len(rows) > 0 && blankRow(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return rows, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	if name == "" {
		return f.Sheets[0], nil
	}
	if sh, ok := f.Sheet[name]; ok {
		return sh, nil
	}
	names := make([]string, len(f.Sheets))
	for i, sh := range f.Sheets {
		names[i] = sh.Name
	}
	return nil, eris.Errorf("xlsx: sheet %q not found (have %s)", name, strings.Join(names, ", "))
}

func blankRow(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
