package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/domain/invoice"
	"github.com/finagent/invoiceflow/internal/publish"
)

func TestBuildPayload(t *testing.T) {
	at := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	st := &RunState{
		Data: &invoice.ExtractedData{
			Vendor:        "Acme Corp",
			InvoiceNumber: "INV-7",
			Date:          "2026-08-01",
			DueDate:       "2026-09-01",
			Subtotal:      100,
			Tax:           8,
			TaxRate:       0.08,
			Total:         108,
			Currency:      "USD",
			LineItems: []invoice.LineItem{
				{Description: "Paper", Quantity: 4, UnitPrice: 25, Amount: 100},
				{Description: "Pens", Quantity: 1, UnitPrice: 5, Amount: 5},
			},
		},
		Policy: &invoice.PolicyCheckResult{
			Approved:   false,
			Violations: []string{"Senior approval needed for amounts > $5000"},
			CorrectiveActions: []invoice.CorrectiveAction{
				{Violation: "v1", Action: "Forwarding to Senior Manager for approval"},
				{Violation: "v2", Action: "Review required"},
			},
		},
		Ledger: &invoice.LedgerMapping{Code: "6001", Category: "OFFICE_SUPPLIES"},
	}

	payload := BuildPayload(st, at)

	assert.Equal(t, "2026-08-31T12:00:00Z", payload.Timestamp)
	assert.Equal(t, "Acme Corp", payload.Vendor)
	assert.Equal(t, "6001", payload.LedgerCode)
	assert.False(t, payload.PolicyApproved)
	assert.Equal(t, 1, payload.PolicyViolations)
	assert.Equal(t, "Forwarding to Senior Manager for approval; Review required", payload.CorrectiveActions)
	assert.Equal(t, 2, payload.LineItemsCount)
	require.Len(t, payload.LineItems, 2)
	assert.Equal(t, 1, payload.LineItems[0].Row)
	assert.Equal(t, 2, payload.LineItems[1].Row)
}

func TestBuildPayloadDefaults(t *testing.T) {
	payload := BuildPayload(&RunState{}, time.Now())

	assert.Equal(t, "USD", payload.Currency)
	assert.Empty(t, payload.LedgerCode)
	assert.False(t, payload.PolicyApproved)
	assert.Zero(t, payload.LineItemsCount)
	assert.NotNil(t, payload.LineItems)
}

func TestPublisherExecuteAppends(t *testing.T) {
	sink := publish.NewSimulatedSink(0, 0)
	a := NewPublisherAgent(&fakeGenerator{}, sink, zap.NewNop(), nil)
	out := newTestStream()

	st := &RunState{Data: &invoice.ExtractedData{Vendor: "Acme Corp", Total: 108}}
	_, err := a.Execute(context.Background(), out, st)
	require.NoError(t, err)

	require.NotNil(t, st.Payload)
	require.NotNil(t, st.Receipt)
	assert.True(t, st.Receipt.Success)
	assert.Equal(t, 2, st.Receipt.Row) // row 1 is the header

	var messages []string
	for _, evt := range drain(out) {
		if evt.Message != "" {
			messages = append(messages, evt.Message)
		}
	}
	assert.Contains(t, messages, "Formatting final payload for Google Sheets...")
	assert.Contains(t, messages, "Connecting to Google Sheets...")
	assert.Contains(t, messages, "Appending row to spreadsheet...")
}
