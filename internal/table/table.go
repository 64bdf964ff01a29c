// Package table reads and writes header-plus-rows grids across local files,
// remote files, Google Sheets, and Notion databases.
package table

import (
	"context"
	"io"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/fetcher"
	"github.com/sells-group/enrich-cli/pkg/notion"
	"github.com/sells-group/enrich-cli/pkg/sheets"
)

// Table is a tabular location that can be read and, for most variants,
// written.
type Table interface {
	ReadTable(ctx context.Context) (*Grid, error)
	WriteTable(ctx context.Context, g *Grid) error
	Location() string
}

// Deps carries the clients a location may need. Nil clients make the
// corresponding schemes unavailable.
type Deps struct {
	Remote           fetcher.Fetcher
	Sheets           sheets.Client
	Notion           notion.Client
	Stdin            io.Reader
	Stdout           io.Writer
	MaxDownloadBytes int64
}

// ErrReadOnly is returned by WriteTable on variants that cannot be written.
var ErrReadOnly = eris.New("table: location is read-only")

var sheetURLPattern = regexp.MustCompile(`docs\.google\.com/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// Parse selects a table variant from a location string:
//
//	path.csv | path.tsv | -          local CSV/TSV file, or stdin/stdout
//	path.xlsx[#Sheet]                local workbook
//	sheets://<id>[/<range>]          existing Google spreadsheet
//	sheets://new/<title>             spreadsheet created on write
//	https://docs.google.com/...      Google spreadsheet by share URL
//	notion://<databaseID>            Notion database
//	http(s)://... | ftp://...        remote CSV or XLSX (read-only)
func Parse(location string, deps Deps) (Table, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, eris.New("table: empty location")
	}

	if m := sheetURLPattern.FindStringSubmatch(location); m != nil {
		return newSheets(m[1], "", "", deps)
	}

	switch {
	case location == "-":
		return &CSVTable{Path: "-", Delimiter: ',', stdin: deps.Stdin, stdout: deps.Stdout}, nil
	case strings.HasPrefix(location, "sheets://"):
		rest := strings.TrimPrefix(location, "sheets://")
		if title, ok := strings.CutPrefix(rest, "new/"); ok {
			title, _ = url.PathUnescape(title)
			if title == "" {
				return nil, eris.New("table: sheets://new/ requires a title")
			}
			return newSheets("", "", title, deps)
		}
		id, rng, _ := strings.Cut(rest, "/")
		if id == "" {
			return nil, eris.Errorf("table: missing spreadsheet id in %q", location)
		}
		rng, _ = url.PathUnescape(rng)
		return newSheets(id, rng, "", deps)
	case strings.HasPrefix(location, "notion://"):
		id := strings.TrimPrefix(location, "notion://")
		if id == "" {
			return nil, eris.Errorf("table: missing database id in %q", location)
		}
		if deps.Notion == nil {
			return nil, eris.New("table: notion locations need notion.token")
		}
		return &NotionTable{Client: deps.Notion, DatabaseID: id}, nil
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"), strings.HasPrefix(location, "ftp://"):
		if deps.Remote == nil {
			return nil, eris.Errorf("table: no fetcher configured for %q", location)
		}
		return &RemoteTable{Fetcher: deps.Remote, URL: location, MaxBytes: deps.MaxDownloadBytes}, nil
	}

	path, sheet, _ := strings.Cut(location, "#")
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return &CSVTable{Path: path, Delimiter: ','}, nil
	case ".tsv":
		return &CSVTable{Path: path, Delimiter: '\t'}, nil
	case ".xlsx", ".xlsm":
		return &XLSXTable{Path: path, Sheet: sheet}, nil
	}
	return nil, eris.Errorf("table: cannot infer format of %q (want .csv, .tsv, .xlsx, sheets://, notion://, or a URL)", location)
}

func newSheets(id, rng, title string, deps Deps) (Table, error) {
	if deps.Sheets == nil {
		return nil, eris.New("table: sheets locations need sheets.credentials_file")
	}
	return &SheetsTable{Client: deps.Sheets, SpreadsheetID: id, Range: rng, NewTitle: title}, nil
}
