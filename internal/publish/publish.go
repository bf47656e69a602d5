// Package publish provides the destination seam for the Publisher agent.
// The simulated sink models connect/append latency for demos; the excel
// sink appends the flattened payload to a local workbook. A real
// spreadsheet integration would implement Sink the same way.
package publish

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/finagent/invoiceflow/internal/domain/invoice"
)

// ProgressFunc receives human-readable narration of append phases.
type ProgressFunc func(message string)

// Sink appends a publish-ready payload to the destination and returns a
// row acknowledgment. Implementations narrate their connect and append
// phases through progress when it is non-nil.
type Sink interface {
	Append(ctx context.Context, payload *invoice.SheetsPayload, progress ProgressFunc) (*invoice.AppendReceipt, error)
}

// SimulatedSink models an external spreadsheet append with two artificial
// latency phases and a synthetic row counter.
type SimulatedSink struct {
	connectDelay time.Duration
	appendDelay  time.Duration
	rows         atomic.Int64
}

// NewSimulatedSink creates a simulated sink with the given phase delays.
func NewSimulatedSink(connectDelay, appendDelay time.Duration) *SimulatedSink {
	return &SimulatedSink{connectDelay: connectDelay, appendDelay: appendDelay}
}

// Append simulates the two-phase external append.
func (s *SimulatedSink) Append(ctx context.Context, payload *invoice.SheetsPayload, progress ProgressFunc) (*invoice.AppendReceipt, error) {
	if progress != nil {
		progress("Connecting to Google Sheets...")
	}
	if err := sleepCtx(ctx, s.connectDelay); err != nil {
		return nil, err
	}

	if progress != nil {
		progress("Appending row to spreadsheet...")
	}
	if err := sleepCtx(ctx, s.appendDelay); err != nil {
		return nil, err
	}

	row := int(s.rows.Add(1)) + 1 // header occupies row 1
	return &invoice.AppendReceipt{Row: row, Success: true}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
