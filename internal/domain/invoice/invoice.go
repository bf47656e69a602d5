// Package invoice holds the data model shared by the pipeline agents:
// the extracted invoice record, the per-agent result types, and the
// flattened payload handed to the publishing sink.
package invoice

import "time"

// LineItem is one row of an invoice. Under normal extraction
// quantity × unitPrice ≈ amount; the Quality agent checks this but
// never rewrites it.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Amount      float64 `json:"amount"`
}

// ExtractedData is the mutable invoice record built up by the pipeline.
// Numeric fields hold what the document states, not recomputed values.
type ExtractedData struct {
	Vendor        string     `json:"vendor"`
	InvoiceNumber string     `json:"invoiceNumber"`
	Date          string     `json:"date"`
	DueDate       string     `json:"dueDate"`
	Subtotal      float64    `json:"subtotal"`
	Tax           float64    `json:"tax"`
	Total         float64    `json:"total"`
	TaxRate       float64    `json:"taxRate"`
	Currency      string     `json:"currency"`
	LineItems     []LineItem `json:"lineItems"`
}

// IntakeResult is the Intake agent's judgment of the uploaded file.
// Informational only; it never blocks the pipeline.
type IntakeResult struct {
	Status        string   `json:"status"`
	FileIntegrity bool     `json:"fileIntegrity"`
	IsDuplicate   bool     `json:"isDuplicate"`
	IsBlurry      bool     `json:"isBlurry"`
	Warnings      []string `json:"warnings"`
	Sanitized     bool     `json:"sanitized"`
}

// PolicyCheck is one rule evaluation.
type PolicyCheck struct {
	Rule   string `json:"rule"`
	Passed bool   `json:"passed"`
}

// CorrectiveAction pairs a violation with the suggested remediation.
type CorrectiveAction struct {
	Violation string `json:"violation"`
	Action    string `json:"action"`
}

// PolicyCheckResult is the Policy agent's output. Approved is true
// exactly when Violations is empty.
type PolicyCheckResult struct {
	Checks            []PolicyCheck      `json:"checks"`
	Violations        []string           `json:"violations"`
	CorrectiveActions []CorrectiveAction `json:"correctiveActions"`
	Approved          bool               `json:"approved"`
}

// LedgerMapping is the Ledger-Mapper agent's predicted coding.
type LedgerMapping struct {
	Code           string `json:"glCode"`
	Category       string `json:"glCategory"`
	Confidence     int    `json:"confidence"`
	Reasoning      string `json:"reasoning"`
	UsedHistorical bool   `json:"usedHistoricalContext"`
}

// QualityResult is the Quality agent's arithmetic verification.
type QualityResult struct {
	Verified             bool     `json:"verified"`
	Errors               []string `json:"errors"`
	Warnings             []string `json:"warnings"`
	RequiresIntervention bool     `json:"requiresIntervention"`
}

// Decision is one entry in a run's agentic audit trail: an autonomous
// choice or a human override, with who/what/why.
type Decision struct {
	Agent     string    `json:"agent"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
}

// SheetsLineItem is a line item denormalized for spreadsheet export,
// row-indexed from 1.
type SheetsLineItem struct {
	Row         int     `json:"row"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Amount      float64 `json:"amount"`
}

// SheetsPayload is the flattened, publish-ready projection of a completed
// run. Built once by the Publisher agent and immutable afterwards.
type SheetsPayload struct {
	Timestamp         string           `json:"timestamp"`
	Vendor            string           `json:"vendor"`
	InvoiceNumber     string           `json:"invoiceNumber"`
	Date              string           `json:"date"`
	DueDate           string           `json:"dueDate"`
	Subtotal          float64          `json:"subtotal"`
	Tax               float64          `json:"tax"`
	TaxRate           float64          `json:"taxRate"`
	Total             float64          `json:"total"`
	Currency          string           `json:"currency"`
	LedgerCode        string           `json:"glCode"`
	LedgerCategory    string           `json:"glCategory"`
	PolicyApproved    bool             `json:"policyApproved"`
	PolicyViolations  int              `json:"policyViolations"`
	CorrectiveActions string           `json:"correctiveActions"`
	LineItemsCount    int              `json:"lineItemsCount"`
	LineItems         []SheetsLineItem `json:"lineItems"`
}

// AppendReceipt acknowledges a sink append.
type AppendReceipt struct {
	Row     int  `json:"row"`
	Success bool `json:"success"`
}
