// Package export writes the current bill snapshot to an Excel workbook, the
// download affordance of the bills list view.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/koushikb/bill-intake/internal/models"
	"github.com/koushikb/bill-intake/internal/registry"
)

var headers = []string{"Invoice #", "Vendor", "Amount", "Date", "Item", "Category", "Risk Score", "Risk Reason"}

// Exporter renders bill entries into a single-sheet workbook.
type Exporter struct {
	sheetName string
	logger    *zap.Logger
}

// NewExporter creates an exporter writing to the given sheet name.
func NewExporter(sheetName string, logger *zap.Logger) *Exporter {
	if sheetName == "" {
		sheetName = "Bills"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{sheetName: sheetName, logger: logger}
}

// Write renders the entries as an xlsx workbook onto w. Amounts and dates are
// written in their display form, matching what the list view shows.
func (e *Exporter) Write(w io.Writer, entries []registry.Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", e.sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to compute header cell: %w", err)
		}
		if err := f.SetCellValue(e.sheetName, cell, h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for row, entry := range entries {
		b := entry.Bill
		values := []interface{}{
			b.InvoiceNumber,
			b.Vendor,
			models.FormatCurrency(models.ParseAmount(b.Amount)),
			models.FormatDate(b.Date),
			b.Item,
			b.ShortDescription,
		}
		if b.HasRisk() {
			values = append(values, *b.RiskScore, *b.RiskReason)
		} else {
			values = append(values, "", "")
		}

		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return fmt.Errorf("failed to compute cell: %w", err)
			}
			if err := f.SetCellValue(e.sheetName, cell, v); err != nil {
				return fmt.Errorf("failed to write row %d: %w", row+1, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Debug("Exported bills", zap.Int("count", len(entries)))
	return nil
}
