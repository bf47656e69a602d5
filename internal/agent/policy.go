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
	"github.com/finagent/invoiceflow/internal/stream"
)

// Policy rule thresholds.
const (
	seniorApprovalThreshold = 5000.0
	cfoApprovalThreshold    = 10000.0
	maxTaxRate              = 0.20
	maxInvoiceAgeDays       = 90
)

const (
	cfoAction    = "Forwarding to CFO for exception approval"
	seniorAction = "Forwarding to Senior Manager for approval"
)

// policyRule is one deterministic rule evaluated against extracted data.
type policyRule struct {
	rule  string
	check func(data *invoice.ExtractedData, now time.Time) bool
}

var policyRules = []policyRule{
	{
		rule: "Senior approval needed for amounts > $5000",
		check: func(data *invoice.ExtractedData, _ time.Time) bool {
			return data.Total <= seniorApprovalThreshold
		},
	},
	{
		rule: "CFO approval needed for amounts > $10000",
		check: func(data *invoice.ExtractedData, _ time.Time) bool {
			return data.Total <= cfoApprovalThreshold
		},
	},
	{
		rule: "Tax rate must be between 0% and 20%",
		check: func(data *invoice.ExtractedData, _ time.Time) bool {
			return data.TaxRate >= 0 && data.TaxRate <= maxTaxRate
		},
	},
	{
		rule: "Invoice date cannot be more than 90 days old",
		check: func(data *invoice.ExtractedData, now time.Time) bool {
			invoiceDate, err := time.Parse("2006-01-02", data.Date)
			if err != nil {
				// Unparseable dates fail the age rule rather than pass it
				// silently; the violation routes to a human.
				return false
			}
			return now.Sub(invoiceDate) <= maxInvoiceAgeDays*24*time.Hour
		},
	},
}

// PolicyAgent evaluates the four deterministic company rules. Any violation
// suspends the pipeline for a human decision; corrective-action text for the
// amount thresholds is deterministic and overrides generated suggestions.
type PolicyAgent struct {
	gen    gateway.Generator
	logger *zap.Logger
	now    func() time.Time
}

// NewPolicyAgent creates the policy agent. now supplies evaluation time for
// the invoice-age rule.
func NewPolicyAgent(gen gateway.Generator, logger *zap.Logger, now func() time.Time) *PolicyAgent {
	if now == nil {
		now = time.Now
	}
	return &PolicyAgent{gen: gen, logger: logger, now: now}
}

func (a *PolicyAgent) Name() string { return "Policy Agent" }
func (a *PolicyAgent) Step() int    { return 3 }

// Execute runs the policy check. No Reflect phase: the verdict is
// deterministic and either advances the pipeline or suspends it.
func (a *PolicyAgent) Execute(ctx context.Context, out *stream.Stream, st *RunState) (Outcome, error) {
	emitStart(out, a.Name(), a.Step())

	ruleList := make([]string, len(policyRules))
	for i, p := range policyRules {
		ruleList[i] = "- " + p.rule
	}
	dataContext, _ := json.MarshalIndent(st.Data, "", "  ")
	reasoningPrompt := fmt.Sprintf(`Review this invoice data against company policies:
%s

Think about which policies apply to this invoice and what the consequences would be if any are violated.

Invoice Data:
%s`, strings.Join(ruleList, "\n"), dataContext)

	if _, err := streamPhase(ctx, a.gen, out, a.Name(), phaseReasoning, reasoningPrompt, nil); err != nil {
		return Outcome{}, err
	}

	emitAction(out, a.Name(), "Checking invoice against policy rules...")

	result := a.evaluate(st.Data)

	if len(result.Violations) > 0 {
		actions, err := a.correctiveActions(ctx, st.Data, result.Violations)
		if err != nil {
			return Outcome{}, err
		}
		result.CorrectiveActions = actions

		st.RecordDecision(a.Name(), "escalate",
			fmt.Sprintf("%d policy violation(s) detected, routing for human approval", len(result.Violations)),
			"agent", a.now())
	}

	st.Policy = result
	emitResult(out, a.Name(), result)

	a.logger.Info("Policy check completed",
		zap.Bool("approved", result.Approved),
		zap.Int("violations", len(result.Violations)))

	return Outcome{RequiresIntervention: !result.Approved, Issues: result.Violations}, nil
}

// evaluate runs every rule in order and collects violations.
func (a *PolicyAgent) evaluate(data *invoice.ExtractedData) *invoice.PolicyCheckResult {
	now := a.now()
	result := &invoice.PolicyCheckResult{
		Checks:            make([]invoice.PolicyCheck, 0, len(policyRules)),
		Violations:        []string{},
		CorrectiveActions: []invoice.CorrectiveAction{},
	}

	for _, p := range policyRules {
		passed := p.check(data, now)
		result.Checks = append(result.Checks, invoice.PolicyCheck{Rule: p.rule, Passed: passed})
		if !passed {
			result.Violations = append(result.Violations, p.rule)
		}
	}

	result.Approved = len(result.Violations) == 0
	return result
}

// correctiveActions asks the model for remediation suggestions, then applies
// the deterministic routing override for the amount-threshold rules. The
// override always wins over generated text.
func (a *PolicyAgent) correctiveActions(ctx context.Context, data *invoice.ExtractedData, violations []string) ([]invoice.CorrectiveAction, error) {
	actionPrompt := fmt.Sprintf("For each policy violation, suggest a corrective action. Violations: %s. Invoice total: $%v.",
		strings.Join(violations, ", "), data.Total)

	actionText, err := a.gen.Generate(ctx, gateway.Request{Prompt: actionPrompt})
	if err != nil {
		return nil, err
	}

	actions := make([]invoice.CorrectiveAction, 0, len(violations))
	for _, violation := range violations {
		action := invoice.CorrectiveAction{Violation: violation}
		switch {
		case strings.Contains(violation, "$5000") || strings.Contains(violation, "$10000"):
			if data.Total > cfoApprovalThreshold {
				action.Action = cfoAction
			} else {
				action.Action = seniorAction
			}
		case strings.Contains(actionText, "CFO"):
			action.Action = "Escalate to CFO"
		default:
			action.Action = "Review required"
		}
		actions = append(actions, action)
	}
	return actions, nil
}
