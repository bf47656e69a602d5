package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/domain/invoice"
)

func TestHeuristicExtract(t *testing.T) {
	actionText := `I could not produce JSON, but here is what I found.
Vendor: Office Depot
Invoice Number: INV-2024-001
Date: 2026-07-15
Due date: 2026-08-15
Subtotal: $1,250.00
Tax: $100.00
Tax rate: 0.08
Total: $1,350.00`

	data := heuristicExtract(actionText, "")

	assert.Equal(t, "Office Depot", data.Vendor)
	assert.Equal(t, "INV-2024-001", data.InvoiceNumber)
	assert.Equal(t, "2026-07-15", data.Date)
	assert.Equal(t, "2026-08-15", data.DueDate)
	assert.Equal(t, 1250.00, data.Subtotal)
	assert.Equal(t, 100.00, data.Tax)
	assert.Equal(t, 1350.00, data.Total)
	assert.Equal(t, 0.08, data.TaxRate)
	assert.Equal(t, "USD", data.Currency)
	assert.NotNil(t, data.LineItems)
}

func TestHeuristicExtractNothingFound(t *testing.T) {
	data := heuristicExtract("completely unrelated text", "")

	assert.Empty(t, data.Vendor)
	assert.Zero(t, data.Total)
	assert.Equal(t, "USD", data.Currency)
	assert.Empty(t, data.LineItems)
}

func TestAmbiguousFields(t *testing.T) {
	t.Run("no uncertainty signal", func(t *testing.T) {
		assert.Empty(t, ambiguousFields("Everything was crystal clear, including the total."))
	})

	t.Run("uncertainty names fields", func(t *testing.T) {
		fields := ambiguousFields("I'm uncertain about the dueDate and the taxRate values.")
		assert.Contains(t, fields, "dueDate")
		assert.Contains(t, fields, "taxRate")
		assert.NotContains(t, fields, "vendor")
	})
}

func TestExtractionExecuteStructured(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`{"vendor":"Acme Corp","invoiceNumber":"INV-7","date":"2026-08-01","dueDate":"2026-09-01","subtotal":100,"tax":8,"total":108,"taxRate":0.08,"currency":"USD","lineItems":[{"description":"Paper","quantity":4,"unitPrice":25,"amount":100}]}`,
	}}
	a := NewExtractionAgent(gen, zap.NewNop())
	out := newTestStream()

	st := &RunState{ImageBase64: "aGVsbG8=", ImageMIME: "image/png"}
	_, err := a.Execute(context.Background(), out, st)
	require.NoError(t, err)

	require.NotNil(t, st.Data)
	assert.Equal(t, "Acme Corp", st.Data.Vendor)
	assert.Equal(t, 108.0, st.Data.Total)
	require.Len(t, st.Data.LineItems, 1)
	assert.Empty(t, st.Warnings)
}

func TestExtractionExecuteFallsBackToHeuristics(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		"Sorry, I can only tell you that the Vendor: Acme Corp and Total: $500.00",
	}}
	a := NewExtractionAgent(gen, zap.NewNop())
	out := newTestStream()

	st := &RunState{ImageBase64: "aGVsbG8=", ImageMIME: "image/png"}
	_, err := a.Execute(context.Background(), out, st)
	require.NoError(t, err)

	require.NotNil(t, st.Data)
	assert.Equal(t, "Acme Corp and Total", st.Data.Vendor) // greedy label scrape, still non-fatal
	assert.Equal(t, 500.0, st.Data.Total)
	require.Len(t, st.Warnings, 1)
	assert.Contains(t, st.Warnings[0], "could not be parsed")
}

func TestExtractionDefaultsCurrency(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`{"vendor":"Acme","subtotal":10,"tax":1,"total":11,"taxRate":0.1}`,
	}}
	a := NewExtractionAgent(gen, zap.NewNop())
	out := newTestStream()

	st := &RunState{}
	_, err := a.Execute(context.Background(), out, st)
	require.NoError(t, err)

	assert.Equal(t, "USD", st.Data.Currency)
	assert.NotNil(t, st.Data.LineItems)
	assert.Equal(t, []invoice.LineItem{}, st.Data.LineItems)
}
