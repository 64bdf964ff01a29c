package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-cli/internal/source"
	"github.com/sells-group/enrich-cli/internal/table"
)

var columnsRows int

var columnsCmd = &cobra.Command{
	Use:   "columns <source>",
	Short: "Preview a source's columns and first rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := initTables()
		if err != nil {
			return err
		}
		grid, err := source.Preview(cmd.Context(), args[0], columnsRows, deps)
		if err != nil {
			return err
		}
		formatPreview(os.Stdout, grid)
		return nil
	},
}

// formatPreview writes the numbered header followed by the sample rows.
func formatPreview(out io.Writer, g *table.Grid) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	idx := make([]string, len(g.Header))
	for i := range g.Header {
		idx[i] = fmt.Sprintf("[%d]", i)
	}
	_, _ = fmt.Fprintln(w, strings.Join(idx, "\t"))
	_, _ = fmt.Fprintln(w, strings.Join(g.Header, "\t"))
	for _, row := range g.Rows {
		cells := make([]string, len(g.Header))
		for i := range cells {
			if i < len(row) {
				cells[i] = truncateCell(row[i], 30)
			}
		}
		_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
}

func truncateCell(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	columnsCmd.Flags().IntVar(&columnsRows, "rows", 5, "number of sample rows to show")
	rootCmd.AddCommand(columnsCmd)
}
