package table

import (
	"context"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/pkg/sheets"
)

// defaultSheetsRange is the block read when a location names no range.
const defaultSheetsRange = "A1:Z1000"

var a1Pattern = regexp.MustCompile(`^[A-Za-z]{1,3}\d*(:[A-Za-z]{1,3}\d*)?$`)

// SheetsTable is a Google spreadsheet. With NewTitle set, WriteTable creates
// a fresh spreadsheet and records its ID; otherwise it appends to
// SpreadsheetID, writing the header only when the target range is empty.
type SheetsTable struct {
	Client        sheets.Client
	SpreadsheetID string
	Range         string
	NewTitle      string

	createdURL string
}

func (t *SheetsTable) Location() string {
	if t.SpreadsheetID == "" {
		return "sheets://new/" + t.NewTitle
	}
	if t.Range != "" {
		return "sheets://" + t.SpreadsheetID + "/" + t.Range
	}
	return "sheets://" + t.SpreadsheetID
}

// CreatedURL returns the URL of a spreadsheet created by WriteTable.
func (t *SheetsTable) CreatedURL() string { return t.createdURL }

func (t *SheetsTable) readRange() string {
	if t.Range != "" {
		return t.Range
	}
	return defaultSheetsRange
}

// sheetPrefix returns "Tab!" when the range names a tab.
func (t *SheetsTable) sheetPrefix() string {
	if tab, _, ok := strings.Cut(t.Range, "!"); ok {
		return tab + "!"
	}
	if t.Range != "" && !a1Pattern.MatchString(t.Range) {
		return t.Range + "!"
	}
	return ""
}

func (t *SheetsTable) ReadTable(ctx context.Context) (*Grid, error) {
	if t.SpreadsheetID == "" {
		return nil, eris.Errorf("table: %s does not exist yet", t.Location())
	}
	values, err := t.Client.GetValues(ctx, t.SpreadsheetID, t.readRange())
	if err != nil {
		return nil, err
	}
	return NewGrid(values), nil
}

func (t *SheetsTable) WriteTable(ctx context.Context, g *Grid) error {
	if t.SpreadsheetID == "" {
		return t.create(ctx, g)
	}

	existing, err := t.Client.GetValues(ctx, t.SpreadsheetID, t.sheetPrefix()+"A1:A2")
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return t.Client.UpdateValues(ctx, t.SpreadsheetID, t.sheetPrefix()+"A1", g.Values())
	}
	if len(g.Rows) == 0 {
		return nil
	}
	return t.Client.AppendValues(ctx, t.SpreadsheetID, t.sheetPrefix()+"A1", g.Rows)
}

func (t *SheetsTable) create(ctx context.Context, g *Grid) error {
	ss, err := t.Client.CreateSpreadsheet(ctx, t.NewTitle)
	if err != nil {
		return err
	}
	t.SpreadsheetID = ss.SpreadsheetID
	t.createdURL = ss.SpreadsheetURL

	if err := t.Client.UpdateValues(ctx, ss.SpreadsheetID, "A1", g.Values()); err != nil {
		return err
	}

	if len(ss.Sheets) > 0 {
		if err := t.Client.BoldHeaderRow(ctx, ss.SpreadsheetID, ss.Sheets[0].Properties.SheetID); err != nil {
			zap.L().Warn("table: format sheets header", zap.String("spreadsheet_id", ss.SpreadsheetID), zap.Error(err))
		}
	}

	zap.L().Info("table: created spreadsheet",
		zap.String("spreadsheet_id", ss.SpreadsheetID),
		zap.String("url", ss.SpreadsheetURL),
	)
	return nil
}
