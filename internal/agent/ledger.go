package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/domain/invoice"
	"github.com/finagent/invoiceflow/internal/gateway"
	"github.com/finagent/invoiceflow/internal/stream"
)

// ledgerCodes is the fixed chart of expense categories.
var ledgerCodes = map[string]string{
	"OFFICE_SUPPLIES": "6001",
	"SOFTWARE":        "6002",
	"CONSULTING":      "6003",
	"TRAVEL":          "6004",
	"UTILITIES":       "6005",
	"RENT":            "6006",
	"MARKETING":       "6007",
	"OTHER":           "6999",
}

// LedgerAgent predicts the general-ledger code for the invoice from vendor
// and line-item context. On parse failure it falls back to substring
// matching against known vendor and category terms.
type LedgerAgent struct {
	gen    gateway.Generator
	logger *zap.Logger
	now    func() time.Time
}

// NewLedgerAgent creates the ledger-mapper agent.
func NewLedgerAgent(gen gateway.Generator, logger *zap.Logger, now func() time.Time) *LedgerAgent {
	if now == nil {
		now = time.Now
	}
	return &LedgerAgent{gen: gen, logger: logger, now: now}
}

func (a *LedgerAgent) Name() string { return "GL Mapper Agent" }
func (a *LedgerAgent) Step() int    { return 4 }

// Execute runs ledger mapping. No Reflect phase.
func (a *LedgerAgent) Execute(ctx context.Context, out *stream.Stream, st *RunState) (Outcome, error) {
	emitStart(out, a.Name(), a.Step())

	codeLines := make([]string, 0, len(ledgerCodes))
	for name, code := range ledgerCodes {
		codeLines = append(codeLines, fmt.Sprintf("- %s: %s", name, code))
	}
	sort.Strings(codeLines)

	dataContext, _ := json.MarshalIndent(st.Data, "", "  ")
	reasoningPrompt := fmt.Sprintf(`You need to predict the General Ledger (GL) code for this invoice. Available codes:
%s

Think about:
1. What type of expense does this invoice represent?
2. Which GL code best matches the vendor and line items?
3. What contextual clues in the invoice help you decide?

Invoice Data:
%s`, strings.Join(codeLines, "\n"), dataContext)

	if _, err := streamPhase(ctx, a.gen, out, a.Name(), phaseReasoning, reasoningPrompt, nil); err != nil {
		return Outcome{}, err
	}

	emitAction(out, a.Name(), "Predicting GL code based on invoice context...")

	mappingPrompt := fmt.Sprintf(`Based on the invoice data, predict the GL code. Return JSON:
{
  "glCode": "code",
  "glCategory": "category name",
  "confidence": number (0-100),
  "reasoning": "explanation of why this code was chosen"
}

Invoice Data:
%s`, dataContext)

	mappingText, err := a.gen.Generate(ctx, gateway.Request{Prompt: mappingPrompt, JSONResponse: true})
	if err != nil {
		return Outcome{}, err
	}

	mapping := &invoice.LedgerMapping{}
	if !DecodeJSON(mappingText, mapping) || mapping.Code == "" {
		a.logger.Warn("Ledger mapping response not parseable, using substring fallback")
		mapping = fallbackMapping(st.Data)
		st.Warnings = append(st.Warnings, "Ledger mapping inferred from vendor/description keywords")
		st.RecordDecision(a.Name(), "fallback-mapping",
			fmt.Sprintf("Structured mapping unavailable; inferred %s (%s)", mapping.Code, mapping.Category),
			"agent", a.now())
	}

	// Flag justifications that cite prior coding patterns. Audit metadata
	// only; no historical lookup is performed.
	mapping.UsedHistorical = containsAny(mapping.Reasoning, "histor", "previous", "prior", "pattern")

	st.Ledger = mapping
	emitResult(out, a.Name(), mapping)

	a.logger.Info("Ledger mapping completed",
		zap.String("code", mapping.Code),
		zap.String("category", mapping.Category),
		zap.Int("confidence", mapping.Confidence))

	return Outcome{}, nil
}

// fallbackMapping infers a category from vendor and first-line-item text.
func fallbackMapping(data *invoice.ExtractedData) *invoice.LedgerMapping {
	vendor := ""
	description := ""
	if data != nil {
		vendor = strings.ToLower(data.Vendor)
		if len(data.LineItems) > 0 {
			description = strings.ToLower(data.LineItems[0].Description)
		}
	}

	switch {
	case strings.Contains(vendor, "office") || strings.Contains(description, "supply"):
		return &invoice.LedgerMapping{
			Code: ledgerCodes["OFFICE_SUPPLIES"], Category: "OFFICE_SUPPLIES",
			Confidence: 70, Reasoning: "Inferred from vendor/description",
		}
	case strings.Contains(vendor, "software") || strings.Contains(description, "software"):
		return &invoice.LedgerMapping{
			Code: ledgerCodes["SOFTWARE"], Category: "SOFTWARE",
			Confidence: 70, Reasoning: "Inferred from vendor/description",
		}
	default:
		return &invoice.LedgerMapping{
			Code: ledgerCodes["OTHER"], Category: "OTHER",
			Confidence: 50, Reasoning: "Default mapping",
		}
	}
}
