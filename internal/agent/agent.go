// Package agent implements the six pipeline step executors and the uniform
// Reason → Act → Reflect protocol they share. Each agent consumes the run
// state built by its predecessors, mutates it with its own typed result,
// and emits progress events to the run's stream as it works.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/finagent/invoiceflow/internal/domain/event"
	"github.com/finagent/invoiceflow/internal/domain/invoice"
	"github.com/finagent/invoiceflow/internal/gateway"
	"github.com/finagent/invoiceflow/internal/stream"
)

// RunState is the continuation of one workflow run: everything needed to
// resume the pipeline at any stage. It travels through the agents in order
// and is parked in the intervention store while a run is suspended.
type RunState struct {
	ImageBase64 string
	ImageMIME   string
	ImageBytes  []byte

	Data    *invoice.ExtractedData
	Intake  *invoice.IntakeResult
	Policy  *invoice.PolicyCheckResult
	Ledger  *invoice.LedgerMapping
	Quality *invoice.QualityResult
	Payload *invoice.SheetsPayload
	Receipt *invoice.AppendReceipt

	Decisions []invoice.Decision
	Warnings  []string

	// OpenIntervention holds the identifier of the run's open intervention,
	// or "". At most one intervention is open per run; the coordinator
	// checks this slot instead of trusting control flow alone.
	OpenIntervention string
}

// RecordDecision appends an entry to the run's agentic audit trail.
func (st *RunState) RecordDecision(agentName, action, detail, actor string, at time.Time) {
	st.Decisions = append(st.Decisions, invoice.Decision{
		Agent:     agentName,
		Action:    action,
		Detail:    detail,
		Actor:     actor,
		Timestamp: at,
	})
}

// imagePayload returns the run's image as a gateway attachment.
func (st *RunState) imagePayload() *gateway.ImagePayload {
	return &gateway.ImagePayload{Base64: st.ImageBase64, MIMEType: st.ImageMIME}
}

// Outcome is an agent's verdict on whether the pipeline may proceed.
type Outcome struct {
	// RequiresIntervention suspends the pipeline for a human decision.
	// Only the Policy and Quality agents ever set it.
	RequiresIntervention bool

	// Issues lists the violations or errors behind an intervention.
	Issues []string
}

// Agent is one step of the fixed six-step pipeline.
type Agent interface {
	// Name returns the display name, e.g. "Policy Agent".
	Name() string

	// Step returns the 1-based ordinal of the agent in the pipeline.
	Step() int

	// Execute runs the agent's Reason/Act/Reflect protocol against the run
	// state, emitting progress events to out. The agent's completion event
	// is emitted by the coordinator, which defers it across suspensions.
	Execute(ctx context.Context, out *stream.Stream, st *RunState) (Outcome, error)
}

const (
	phaseReasoning  = "Reasoning"
	phaseReflection = "Reflection"
)

// emitStart announces an agent beginning its step.
func emitStart(out *stream.Stream, name string, step int) {
	out.Publish(&event.Event{Type: event.TypeAgentStart, Agent: name, Step: step})
}

// emitAction reports free-text progress from the Act phase.
func emitAction(out *stream.Stream, name, message string) {
	out.Publish(&event.Event{Type: event.TypeAgentAction, Agent: name, Message: message})
}

// emitResult carries an agent's structured output.
func emitResult(out *stream.Stream, name string, result any) {
	out.Publish(&event.Event{Type: event.TypeAgentResult, Agent: name, Result: result})
}

// streamPhase runs one incremental generation request, forwarding every text
// chunk to the stream as a reasoning event tagged with the agent and phase,
// and returns the accumulated transcript.
func streamPhase(ctx context.Context, gen gateway.Generator, out *stream.Stream, name, phase, prompt string, img *gateway.ImagePayload) (string, error) {
	framed := fmt.Sprintf("You are the %s. %s phase: %s\n\nThink out loud about this step. Show your reasoning process step by step.", name, phase, prompt)

	transcript, err := gen.GenerateStream(ctx, gateway.Request{Prompt: framed, Image: img}, func(chunk string) {
		out.Publish(&event.Event{
			Type:    event.TypeReasoning,
			Agent:   name,
			Phase:   phase,
			Content: chunk,
		})
	})
	if err != nil {
		return transcript, fmt.Errorf("%s %s phase: %w", name, phase, err)
	}
	return transcript, nil
}
