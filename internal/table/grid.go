package table

import "strings"

// Grid is a header row plus data rows. Every data row is as wide as the
// header.
type Grid struct {
	Header []string
	Rows   [][]string
}

// NewGrid builds a grid from raw values whose first row is the header.
// Header cells are trimmed; short rows are padded with empty cells.
func NewGrid(values [][]string) *Grid {
	g := &Grid{}
	if len(values) == 0 {
		return g
	}
	g.Header = make([]string, len(values[0]))
	for i, h := range values[0] {
		g.Header[i] = strings.TrimSpace(h)
	}
	for _, row := range values[1:] {
		if len(row) < len(g.Header) {
			padded := make([]string, len(g.Header))
			copy(padded, row)
			row = padded
		}
		g.Rows = append(g.Rows, row)
	}
	return g
}

// Values returns the header followed by the rows.
func (g *Grid) Values() [][]string {
	out := make([][]string, 0, len(g.Rows)+1)
	out = append(out, g.Header)
	return append(out, g.Rows...)
}

// ColumnIndex finds a header by case-insensitive name, or -1.
func (g *Grid) ColumnIndex(name string) int {
	name = strings.TrimSpace(name)
	for i, h := range g.Header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

// Head returns a grid with at most n data rows.
func (g *Grid) Head(n int) *Grid {
	if n < 0 || n >= len(g.Rows) {
		return g
	}
	return &Grid{Header: g.Header, Rows: g.Rows[:n]}
}
