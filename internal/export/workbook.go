package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/example/event-board/internal/persistence"
)

const (
	linesSheet = "Lines"
	ratesSheet = "Rates"
)

// WriteWorkbook writes the lines and rates of event into two sheets. Times
// are rendered in loc.
func WriteWorkbook(w io.Writer, event persistence.Event, loc *time.Location) (err error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", linesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(ratesSheet); err != nil {
		return fmt.Errorf("create rates sheet: %w", err)
	}

	if err := f.SetSheetRow(linesSheet, "A1", &[]any{"Line", "Start", "End", "Public", "Capacity"}); err != nil {
		return err
	}
	for i, line := range event.Lines {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			line.ID,
			line.Start.In(loc).Format("2006-01-02 15:04"),
			line.End.In(loc).Format("2006-01-02 15:04"),
			line.IsPublic,
			line.Capacity,
		}
		if err := f.SetSheetRow(linesSheet, cell, &row); err != nil {
			return fmt.Errorf("write line %s: %w", line.ID, err)
		}
	}

	if err := f.SetSheetRow(ratesSheet, "A1", &[]any{"Rate", "Line", "Title", "Amount", "Currency"}); err != nil {
		return err
	}
	for i, rate := range event.Rates {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{rate.ID, rate.LineID, rate.Title, rate.Amount, rate.Currency}
		if err := f.SetSheetRow(ratesSheet, cell, &row); err != nil {
			return fmt.Errorf("write rate %s: %w", rate.ID, err)
		}
	}

	if err := f.SetColWidth(linesSheet, "A", "C", 24); err != nil {
		return err
	}
	if err := f.SetColWidth(ratesSheet, "A", "C", 24); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WorkbookFilename returns a download name for the header's workbook.
func WorkbookFilename(header persistence.EventHeader) string {
	return slug(header.Title, header.ID) + ".xlsx"
}
