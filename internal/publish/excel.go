package publish

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/domain/invoice"
)

// header is the column layout of the workbook sheet, row 1.
var header = []any{
	"Timestamp", "Vendor", "Invoice Number", "Date", "Due Date",
	"Subtotal", "Tax", "Tax Rate", "Total", "Currency",
	"GL Code", "GL Category", "Policy Approved", "Policy Violations",
	"Corrective Actions", "Line Items",
}

// ExcelSink appends each published payload as one row of a local workbook.
type ExcelSink struct {
	mu        sync.Mutex
	path      string
	sheetName string
	logger    *zap.Logger
}

// NewExcelSink creates a sink writing to the workbook at path. The file and
// sheet are created with a header row on first append.
func NewExcelSink(path, sheetName string, logger *zap.Logger) *ExcelSink {
	if sheetName == "" {
		sheetName = "Invoices"
	}
	return &ExcelSink{path: path, sheetName: sheetName, logger: logger}
}

// Append writes the payload to the next free row and saves the workbook.
func (s *ExcelSink) Append(ctx context.Context, payload *invoice.SheetsPayload, progress ProgressFunc) (*invoice.AppendReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if progress != nil {
		progress(fmt.Sprintf("Opening workbook %s...", s.path))
	}

	f, created, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(s.sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", s.sheetName, err)
	}
	row := len(rows) + 1

	if progress != nil {
		progress("Appending row to workbook...")
	}

	cells := []any{
		payload.Timestamp, payload.Vendor, payload.InvoiceNumber, payload.Date, payload.DueDate,
		payload.Subtotal, payload.Tax, payload.TaxRate, payload.Total, payload.Currency,
		payload.LedgerCode, payload.LedgerCategory, payload.PolicyApproved, payload.PolicyViolations,
		payload.CorrectiveActions, payload.LineItemsCount,
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return nil, fmt.Errorf("failed to build cell reference: %w", err)
	}
	if err := f.SetSheetRow(s.sheetName, cell, &cells); err != nil {
		return nil, fmt.Errorf("failed to write row: %w", err)
	}

	if err := f.SaveAs(s.path); err != nil {
		return nil, fmt.Errorf("failed to save workbook: %w", err)
	}

	s.logger.Info("Appended payload to workbook",
		zap.String("path", s.path),
		zap.Int("row", row),
		zap.Bool("created", created))

	return &invoice.AppendReceipt{Row: row, Success: true}, nil
}

// open loads the workbook, creating it with a header row when absent.
func (s *ExcelSink) open() (*excelize.File, bool, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		f := excelize.NewFile()
		index, err := f.NewSheet(s.sheetName)
		if err != nil {
			f.Close()
			return nil, false, fmt.Errorf("failed to create sheet: %w", err)
		}
		f.SetActiveSheet(index)
		if err := f.SetSheetRow(s.sheetName, "A1", &header); err != nil {
			f.Close()
			return nil, false, fmt.Errorf("failed to write header: %w", err)
		}
		return f, true, nil
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open workbook: %w", err)
	}
	return f, false, nil
}
