package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/domain/invoice"
	"github.com/finagent/invoiceflow/internal/gateway"
	"github.com/finagent/invoiceflow/internal/stream"
)

// amountTolerance is the absolute tolerance for arithmetic comparisons.
const amountTolerance = 0.01

// QualityAgent deterministically recomputes subtotal, tax, and total from
// the extracted values and compares each against the stated amount. Any
// mismatch escalates to a human decision; no automatic correction is
// applied.
type QualityAgent struct {
	gen    gateway.Generator
	logger *zap.Logger
	now    func() time.Time
}

// NewQualityAgent creates the quality agent.
func NewQualityAgent(gen gateway.Generator, logger *zap.Logger, now func() time.Time) *QualityAgent {
	if now == nil {
		now = time.Now
	}
	return &QualityAgent{gen: gen, logger: logger, now: now}
}

func (a *QualityAgent) Name() string { return "Quality Agent" }
func (a *QualityAgent) Step() int    { return 5 }

// Execute runs verification. No Reflect phase: mismatches route to a human,
// so there is nothing for the model to second-guess.
func (a *QualityAgent) Execute(ctx context.Context, out *stream.Stream, st *RunState) (Outcome, error) {
	emitStart(out, a.Name(), a.Step())

	dataContext, _ := json.MarshalIndent(st.Data, "", "  ")
	reasoningPrompt := fmt.Sprintf(`You are the Quality Agent - the verifier. Your job is to:
1. Mathematically verify tax and totals
2. Check for calculation errors
3. Verify data consistency
4. If errors are found, flag the invoice for human review

Think about what calculations you need to verify.

Current Extracted Data:
%s`, dataContext)

	if _, err := streamPhase(ctx, a.gen, out, a.Name(), phaseReasoning, reasoningPrompt, nil); err != nil {
		return Outcome{}, err
	}

	emitAction(out, a.Name(), "Verifying calculations and data integrity...")

	result := Verify(st.Data)
	st.Quality = result

	if result.RequiresIntervention {
		emitAction(out, a.Name(), fmt.Sprintf("Found %d calculation error(s). Escalating for human review...", len(result.Errors)))
		st.RecordDecision(a.Name(), "escalate",
			fmt.Sprintf("%d arithmetic mismatch(es) detected, routing for human decision", len(result.Errors)),
			"agent", a.now())
	} else {
		emitAction(out, a.Name(), "All calculations verified. No errors found.")
	}

	emitResult(out, a.Name(), result)

	a.logger.Info("Quality verification completed",
		zap.Bool("verified", result.Verified),
		zap.Int("errors", len(result.Errors)))

	return Outcome{RequiresIntervention: result.RequiresIntervention, Issues: result.Errors}, nil
}

// Verify recomputes the invoice arithmetic against the stated values.
// Each check uses the stated inputs, not recomputed ones, so an error in
// one figure does not cascade: a wrong tax with a total consistent with
// that wrong tax reports only the tax error.
func Verify(data *invoice.ExtractedData) *invoice.QualityResult {
	result := &invoice.QualityResult{
		Errors:   []string{},
		Warnings: []string{},
	}
	if data == nil {
		result.Errors = append(result.Errors, "No extracted data to verify")
		result.RequiresIntervention = true
		return result
	}

	// A present-but-empty line-item set still gets checked: its computed
	// subtotal is 0, so a nonzero stated subtotal is a mismatch. Only a
	// missing set (nil) skips the check.
	if data.LineItems != nil {
		var calculatedSubtotal float64
		for _, item := range data.LineItems {
			calculatedSubtotal += item.Quantity * item.UnitPrice
		}
		if math.Abs(calculatedSubtotal-data.Subtotal) > amountTolerance {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Subtotal mismatch: Calculated %.2f, Found %v", calculatedSubtotal, data.Subtotal))
		}
	}

	if data.Subtotal != 0 {
		calculatedTax := data.Subtotal * data.TaxRate
		if math.Abs(calculatedTax-data.Tax) > amountTolerance {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Tax calculation error: Calculated %.2f, Found %v", calculatedTax, data.Tax))
		}

		calculatedTotal := data.Subtotal + data.Tax
		if math.Abs(calculatedTotal-data.Total) > amountTolerance {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Total mismatch: Calculated %.2f, Found %v", calculatedTotal, data.Total))
		}
	}

	result.Verified = len(result.Errors) == 0
	result.RequiresIntervention = !result.Verified
	return result
}
