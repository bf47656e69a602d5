package publish

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/domain/invoice"
)

func samplePayload() *invoice.SheetsPayload {
	return &invoice.SheetsPayload{
		Timestamp:      "2026-08-31T12:00:00Z",
		Vendor:         "Office Depot",
		InvoiceNumber:  "INV-7",
		Subtotal:       100,
		Tax:            8,
		TaxRate:        0.08,
		Total:          108,
		Currency:       "USD",
		LedgerCode:     "6001",
		LedgerCategory: "OFFICE_SUPPLIES",
		PolicyApproved: true,
		LineItemsCount: 1,
		LineItems:      []invoice.SheetsLineItem{{Row: 1, Description: "Paper", Quantity: 4, UnitPrice: 25, Amount: 100}},
	}
}

func TestSimulatedSinkNarratesAndCounts(t *testing.T) {
	sink := NewSimulatedSink(0, 0)

	var messages []string
	receipt, err := sink.Append(context.Background(), samplePayload(), func(m string) {
		messages = append(messages, m)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Connecting to Google Sheets...", "Appending row to spreadsheet..."}, messages)
	assert.True(t, receipt.Success)
	assert.Equal(t, 2, receipt.Row)

	receipt, err = sink.Append(context.Background(), samplePayload(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, receipt.Row)
}

func TestSimulatedSinkHonorsContext(t *testing.T) {
	sink := NewSimulatedSink(time.Minute, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sink.Append(ctx, samplePayload(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExcelSinkCreatesWorkbookWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoices.xlsx")
	sink := NewExcelSink(path, "Invoices", zap.NewNop())

	receipt, err := sink.Append(context.Background(), samplePayload(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.Row)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Invoices")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Timestamp", rows[0][0])
	assert.Equal(t, "Office Depot", rows[1][1])
}

func TestExcelSinkAppendsToExistingWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoices.xlsx")
	sink := NewExcelSink(path, "", zap.NewNop())

	_, err := sink.Append(context.Background(), samplePayload(), nil)
	require.NoError(t, err)

	second := samplePayload()
	second.InvoiceNumber = "INV-8"
	receipt, err := sink.Append(context.Background(), second, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, receipt.Row)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Invoices")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "INV-8", rows[2][2])
}
