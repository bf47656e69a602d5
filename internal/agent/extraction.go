package agent

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/domain/event"
	"github.com/finagent/invoiceflow/internal/domain/invoice"
	"github.com/finagent/invoiceflow/internal/gateway"
	"github.com/finagent/invoiceflow/internal/stream"
)

// ExtractionAgent pulls the structured invoice record out of the image.
// Numeric fields are extracted as stated on the document, never recomputed;
// the Quality agent owns arithmetic verification.
type ExtractionAgent struct {
	gen    gateway.Generator
	logger *zap.Logger
}

// NewExtractionAgent creates the extraction agent.
func NewExtractionAgent(gen gateway.Generator, logger *zap.Logger) *ExtractionAgent {
	return &ExtractionAgent{gen: gen, logger: logger}
}

func (a *ExtractionAgent) Name() string { return "Extraction Agent" }
func (a *ExtractionAgent) Step() int    { return 2 }

const extractionReasoningPrompt = `You need to extract structured data from this invoice image. Think about:
1. What fields are clearly visible and easy to extract?
2. What fields are ambiguous or unclear?
3. What extraction strategy will you use for different field types?
4. How will you handle missing or unclear information?`

const extractionActionPrompt = `Extract all invoice data and return as JSON with this exact structure:
{
  "vendor": string,
  "invoiceNumber": string,
  "date": string (YYYY-MM-DD),
  "dueDate": string (YYYY-MM-DD),
  "subtotal": number,
  "tax": number,
  "total": number,
  "lineItems": [
    {
      "description": string,
      "quantity": number,
      "unitPrice": number,
      "amount": number
    }
  ],
  "taxRate": number (as decimal, e.g., 0.08 for 8%),
  "currency": string
}

Be precise with numbers. Extract exactly what you see.`

// Execute runs extraction: Reason over the image, Act to produce the nine
// named fields plus line items, Reflect to surface ambiguous fields.
func (a *ExtractionAgent) Execute(ctx context.Context, out *stream.Stream, st *RunState) (Outcome, error) {
	emitStart(out, a.Name(), a.Step())
	img := st.imagePayload()

	reasoning, err := streamPhase(ctx, a.gen, out, a.Name(), phaseReasoning, extractionReasoningPrompt, img)
	if err != nil {
		return Outcome{}, err
	}

	emitAction(out, a.Name(), "Extracting structured data from invoice...")

	actionText, err := a.gen.Generate(ctx, gateway.Request{
		Prompt:       extractionActionPrompt,
		Image:        img,
		JSONResponse: true,
	})
	if err != nil {
		return Outcome{}, err
	}

	data := &invoice.ExtractedData{}
	if !DecodeJSON(actionText, data) {
		a.logger.Warn("Extraction response not parseable, using text heuristics")
		data = heuristicExtract(actionText, reasoning)
		st.Warnings = append(st.Warnings, "Extraction output could not be parsed as structured data; fields inferred from text")
	}
	if data.Currency == "" {
		data.Currency = "USD"
	}
	if data.LineItems == nil {
		data.LineItems = []invoice.LineItem{}
	}
	st.Data = data

	emitResult(out, a.Name(), data)

	reflectionPrompt := `Reflect on your extraction. List any fields you're not 100% confident about. For each ambiguous field, explain:
1. Why you're uncertain
2. What alternative interpretations exist
3. Your confidence level (0-100%)`

	reflection, err := streamPhase(ctx, a.gen, out, a.Name(), phaseReflection, reflectionPrompt, img)
	if err != nil {
		return Outcome{}, err
	}

	ambiguous := ambiguousFields(reflection)
	out.Publish(&event.Event{Type: event.TypeAgentResult, Agent: a.Name(), Result: map[string]any{"ambiguousFields": ambiguous}})

	return Outcome{}, nil
}

// fieldNames are the extractable fields checked against reflection text.
var fieldNames = []string{"vendor", "invoiceNumber", "date", "dueDate", "subtotal", "tax", "total", "taxRate", "currency", "lineItems"}

// ambiguousFields scans the reflection transcript for field names when the
// model signals uncertainty.
func ambiguousFields(reflection string) []string {
	fields := []string{}
	if !containsAny(reflection, "uncertain", "ambiguous") {
		return fields
	}
	lower := strings.ToLower(reflection)
	for _, name := range fieldNames {
		if strings.Contains(lower, strings.ToLower(name)) {
			fields = append(fields, name)
		}
	}
	return fields
}

var (
	vendorPattern  = regexp.MustCompile(`(?i)vendor\s*[:=]?\s*"?([A-Za-z0-9][A-Za-z0-9 .,&'-]*)`)
	invoicePattern = regexp.MustCompile(`(?i)invoice\s*(?:number|no\.?|#)\s*[:=]?\s*"?([A-Za-z0-9-]+)`)
	datePattern    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	amountPatterns = map[string]*regexp.Regexp{
		"subtotal": regexp.MustCompile(`(?i)subtotal\s*[:=]?\s*"?\$?([0-9][0-9,]*\.?[0-9]*)`),
		"tax":      regexp.MustCompile(`(?i)\btax\b\s*[:=]?\s*"?\$?([0-9][0-9,]*\.?[0-9]*)`),
		"total":    regexp.MustCompile(`(?i)\btotal\b\s*[:=]?\s*"?\$?([0-9][0-9,]*\.?[0-9]*)`),
		"taxRate":  regexp.MustCompile(`(?i)tax\s*rate\s*[:=]?\s*"?([0-9]*\.?[0-9]+)`),
	}
)

// heuristicExtract recovers a best-effort record from the response and
// reasoning text when no JSON could be parsed. Deterministic: labeled-field
// scraping only, no recomputation.
func heuristicExtract(actionText, reasoning string) *invoice.ExtractedData {
	combined := actionText + "\n" + reasoning
	data := &invoice.ExtractedData{Currency: "USD", LineItems: []invoice.LineItem{}}

	if m := vendorPattern.FindStringSubmatch(combined); m != nil {
		data.Vendor = strings.TrimSpace(m[1])
	}
	if m := invoicePattern.FindStringSubmatch(combined); m != nil {
		data.InvoiceNumber = m[1]
	}
	if dates := datePattern.FindAllString(combined, 2); len(dates) > 0 {
		data.Date = dates[0]
		if len(dates) > 1 {
			data.DueDate = dates[1]
		}
	}

	data.Subtotal = scrapeAmount(combined, "subtotal")
	data.Tax = scrapeAmount(combined, "tax")
	data.Total = scrapeAmount(combined, "total")
	data.TaxRate = scrapeAmount(combined, "taxRate")

	return data
}

func scrapeAmount(text, field string) float64 {
	m := amountPatterns[field].FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	val, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	return val
}
