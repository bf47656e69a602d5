package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/domain/invoice"
	"github.com/finagent/invoiceflow/internal/gateway"
	"github.com/finagent/invoiceflow/internal/publish"
	"github.com/finagent/invoiceflow/internal/stream"
)

// PublisherAgent builds the flattened SheetsPayload and appends it to the
// configured sink, narrating the connect and append phases.
type PublisherAgent struct {
	gen    gateway.Generator
	sink   publish.Sink
	logger *zap.Logger
	now    func() time.Time
}

// NewPublisherAgent creates the publisher agent.
func NewPublisherAgent(gen gateway.Generator, sink publish.Sink, logger *zap.Logger, now func() time.Time) *PublisherAgent {
	if now == nil {
		now = time.Now
	}
	return &PublisherAgent{gen: gen, sink: sink, logger: logger, now: now}
}

func (a *PublisherAgent) Name() string { return "Publisher Agent" }
func (a *PublisherAgent) Step() int    { return 6 }

// Execute runs publishing: Reason about the export format, Act by building
// and appending the payload, Reflect on the final record.
func (a *PublisherAgent) Execute(ctx context.Context, out *stream.Stream, st *RunState) (Outcome, error) {
	emitStart(out, a.Name(), a.Step())

	dataContext, _ := json.MarshalIndent(map[string]any{
		"finalData":    st.Data,
		"glMapping":    st.Ledger,
		"policyResult": st.Policy,
	}, "", "  ")
	reasoningPrompt := fmt.Sprintf(`You need to format the final invoice data for Google Sheets. Think about:
1. What format will be most useful in a spreadsheet?
2. How should nested data (like line items) be structured?
3. What metadata should be included (GL code, policy status, etc.)?

Data to format:
%s`, dataContext)

	if _, err := streamPhase(ctx, a.gen, out, a.Name(), phaseReasoning, reasoningPrompt, nil); err != nil {
		return Outcome{}, err
	}

	emitAction(out, a.Name(), "Formatting final payload for Google Sheets...")

	payload := BuildPayload(st, a.now())
	st.Payload = payload

	receipt, err := a.sink.Append(ctx, payload, func(message string) {
		emitAction(out, a.Name(), message)
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("%s append: %w", a.Name(), err)
	}
	st.Receipt = receipt

	emitResult(out, a.Name(), payload)

	reflectionPrompt := "Reflect on the final payload. Is it complete? Will it be easy to import into Google Sheets?"
	if _, err := streamPhase(ctx, a.gen, out, a.Name(), phaseReflection, reflectionPrompt, nil); err != nil {
		return Outcome{}, err
	}

	a.logger.Info("Payload published",
		zap.Int("row", receipt.Row),
		zap.Bool("success", receipt.Success))

	return Outcome{}, nil
}

// BuildPayload flattens the run state into the publish-ready projection.
// Created once; immutable after creation.
func BuildPayload(st *RunState, now time.Time) *invoice.SheetsPayload {
	data := st.Data
	if data == nil {
		data = &invoice.ExtractedData{}
	}

	currency := data.Currency
	if currency == "" {
		currency = "USD"
	}

	var violations int
	var approved bool
	actions := make([]string, 0)
	if st.Policy != nil {
		approved = st.Policy.Approved
		violations = len(st.Policy.Violations)
		for _, ca := range st.Policy.CorrectiveActions {
			actions = append(actions, ca.Action)
		}
	}

	var code, category string
	if st.Ledger != nil {
		code = st.Ledger.Code
		category = st.Ledger.Category
	}

	items := make([]invoice.SheetsLineItem, 0, len(data.LineItems))
	for i, item := range data.LineItems {
		items = append(items, invoice.SheetsLineItem{
			Row:         i + 1,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      item.Amount,
		})
	}

	return &invoice.SheetsPayload{
		Timestamp:         now.UTC().Format(time.RFC3339),
		Vendor:            data.Vendor,
		InvoiceNumber:     data.InvoiceNumber,
		Date:              data.Date,
		DueDate:           data.DueDate,
		Subtotal:          data.Subtotal,
		Tax:               data.Tax,
		TaxRate:           data.TaxRate,
		Total:             data.Total,
		Currency:          currency,
		LedgerCode:        code,
		LedgerCategory:    category,
		PolicyApproved:    approved,
		PolicyViolations:  violations,
		CorrectiveActions: strings.Join(actions, "; "),
		LineItemsCount:    len(items),
		LineItems:         items,
	}
}
