// Package pipeline sequences the six agents over one workflow run,
// suspends at the Policy and Quality boundaries when an agent demands a
// human decision, and resumes from the parked continuation when that
// decision arrives.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/agent"
	"github.com/finagent/invoiceflow/internal/domain/event"
	"github.com/finagent/invoiceflow/internal/domain/invoice"
	"github.com/finagent/invoiceflow/internal/domain/workflow"
	"github.com/finagent/invoiceflow/internal/gateway"
	"github.com/finagent/invoiceflow/internal/intervention"
	"github.com/finagent/invoiceflow/internal/persistence"
	"github.com/finagent/invoiceflow/internal/publish"
	"github.com/finagent/invoiceflow/internal/stream"
)

// Decision values accepted by Resolve.
const (
	DecisionAccept  = "accept"
	DecisionDecline = "decline"
)

// Run statuses written to the audit log.
const (
	statusCompleted = "completed"
	statusStopped   = "stopped"
	statusFailed    = "failed"
)

// ErrInvalidDecision is returned for a decision other than accept/decline.
var ErrInvalidDecision = errors.New("decision must be accept or decline")

// Recorder persists finished runs and human decisions. Best-effort: the
// coordinator logs failures and keeps going.
type Recorder interface {
	RecordRun(ctx context.Context, rec *persistence.RunRecord) error
	RecordDecision(ctx context.Context, interventionID, stage, decision string) error
}

// resumeAfter maps a suspending stage to the stage entered on accept.
var resumeAfter = map[workflow.State]workflow.State{
	workflow.StatePolicy:  workflow.StateLedgerMapping,
	workflow.StateQuality: workflow.StatePublish,
}

// Coordinator drives the pipeline state machine for every run.
type Coordinator struct {
	agents   map[workflow.State]agent.Agent
	store    intervention.Store
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewCoordinator wires the six agents over the given generation and
// publishing capabilities. recorder may be nil to disable the audit log.
func NewCoordinator(gen gateway.Generator, sink publish.Sink, store intervention.Store, recorder Recorder, logger *zap.Logger, now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		agents: map[workflow.State]agent.Agent{
			workflow.StateIntake:        agent.NewIntakeAgent(gen, logger),
			workflow.StateExtraction:    agent.NewExtractionAgent(gen, logger),
			workflow.StatePolicy:        agent.NewPolicyAgent(gen, logger, now),
			workflow.StateLedgerMapping: agent.NewLedgerAgent(gen, logger, now),
			workflow.StateQuality:       agent.NewQualityAgent(gen, logger, now),
			workflow.StatePublish:       agent.NewPublisherAgent(gen, sink, logger, now),
		},
		store:    store,
		recorder: recorder,
		logger:   logger,
		now:      now,
	}
}

// Run executes a fresh workflow from the Intake stage. It returns when the
// run completes, fails, or suspends; a suspended run's stream stays open
// until Resolve finishes it.
func (c *Coordinator) Run(ctx context.Context, out *stream.Stream, st *agent.RunState) {
	out.Publish(&event.Event{Type: event.TypeWorkflowStart, Message: "Starting 6-agent workflow"})
	c.runFrom(ctx, out, st, workflow.StateIntake)
}

// runFrom advances the state machine from the given stage, executing each
// agent strictly sequentially until the run completes, errors, or suspends.
func (c *Coordinator) runFrom(ctx context.Context, out *stream.Stream, st *agent.RunState, start workflow.State) {
	machine, err := workflow.NewMachine(start)
	if err != nil {
		c.fail(out, st, "", err)
		return
	}

	for {
		stage := machine.State()
		ag, ok := c.agents[stage]
		if !ok {
			c.fail(out, st, "", fmt.Errorf("no agent registered for stage %s", stage))
			return
		}

		outcome, err := ag.Execute(ctx, out, st)
		if err != nil {
			c.fail(out, st, ag.Name(), err)
			return
		}

		if outcome.RequiresIntervention && machine.CanFire(workflow.TriggerSuspend) {
			if err := machine.Fire(workflow.TriggerSuspend); err != nil {
				c.fail(out, st, ag.Name(), err)
				return
			}
			c.suspend(out, st, ag, stage, outcome.Issues)
			return
		}

		out.Publish(&event.Event{Type: event.TypeAgentComplete, Agent: ag.Name()})

		if stage == workflow.StatePublish {
			out.Publish(&event.Event{Type: event.TypeWorkflowComplete, Payload: st.Payload})
		}

		if err := machine.Fire(workflow.TriggerAdvance); err != nil {
			c.fail(out, st, ag.Name(), err)
			return
		}

		if machine.State() == workflow.StateDone {
			c.finish(out)
			c.record(st, statusCompleted)
			return
		}
	}
}

// suspend parks the run's continuation in the intervention store and
// notifies the client. The suspending agent's completion event is deferred
// until the human decision arrives; the run holds no goroutine while
// parked.
func (c *Coordinator) suspend(out *stream.Stream, st *agent.RunState, ag agent.Agent, stage workflow.State, issues []string) {
	if st.OpenIntervention != "" {
		c.fail(out, st, ag.Name(), fmt.Errorf("run already has open intervention %s", st.OpenIntervention))
		return
	}

	itv := &intervention.Intervention{
		ID:        event.NewID(),
		Stage:     stage,
		AgentName: ag.Name(),
		Issues:    issues,
		Snapshot:  snapshot(st.Data),
		Continuation: &intervention.Continuation{
			ResumeStage: resumeAfter[stage],
			State:       st,
			Stream:      out,
		},
		CreatedAt: c.now(),
	}

	if err := c.store.Put(itv); err != nil {
		c.fail(out, st, ag.Name(), fmt.Errorf("failed to store intervention: %w", err))
		return
	}
	st.OpenIntervention = itv.ID

	out.Publish(&event.Event{
		Type:           event.TypeInterventionRequired,
		InterventionID: itv.ID,
		Agent:          ag.Name(),
		Stage:          stage.String(),
		Issues:         issues,
		Data:           itv.Snapshot,
	})
	out.Publish(&event.Event{
		Type:           event.TypeInterventionPending,
		InterventionID: itv.ID,
		Message:        "Waiting for human decision...",
	})

	c.logger.Info("Pipeline suspended awaiting human decision",
		zap.String("intervention_id", itv.ID),
		zap.String("stage", stage.String()),
		zap.Int("issues", len(issues)))
}

// Resolve applies a human decision to a suspended run. The identifier is
// removed from the store exactly once, before either branch runs, so a
// second Resolve for the same identifier reports ErrNotFound and performs
// no further mutation or event emission.
func (c *Coordinator) Resolve(ctx context.Context, id, decision string) error {
	if decision != DecisionAccept && decision != DecisionDecline {
		return ErrInvalidDecision
	}

	itv, err := c.store.Take(id)
	if err != nil {
		return err
	}

	if c.recorder != nil {
		if err := c.recorder.RecordDecision(ctx, itv.ID, itv.Stage.String(), decision); err != nil {
			c.logger.Warn("Failed to record intervention decision", zap.Error(err))
		}
	}

	out := itv.Continuation.Stream
	st := itv.Continuation.State
	st.OpenIntervention = ""

	out.Publish(&event.Event{
		Type:           event.TypeInterventionDecision,
		InterventionID: itv.ID,
		Stage:          itv.Stage.String(),
		Decision:       decision,
	})

	if decision == DecisionDecline {
		c.decline(out, st, itv)
		return nil
	}

	c.accept(out, st, itv)
	return nil
}

// accept marks the suspending agent complete, records the human override,
// and resumes the pipeline at the stage after the suspension point. The
// resumed portion runs detached from the decision request.
func (c *Coordinator) accept(out *stream.Stream, st *agent.RunState, itv *intervention.Intervention) {
	out.Publish(&event.Event{Type: event.TypeAgentComplete, Agent: itv.AgentName})

	st.RecordDecision(itv.AgentName, "human-override",
		fmt.Sprintf("Human approved continuation despite: %s", strings.Join(itv.Issues, "; ")),
		"human", c.now())

	c.logger.Info("Intervention accepted, resuming pipeline",
		zap.String("intervention_id", itv.ID),
		zap.String("resume_stage", itv.Continuation.ResumeStage.String()))

	go c.runFrom(context.Background(), out, st, itv.Continuation.ResumeStage)
}

// decline terminates the run: the suspending agent completes with a
// stopped status, a workflow_stopped frame names the stage that caused the
// stop, and the stream is finalized.
func (c *Coordinator) decline(out *stream.Stream, st *agent.RunState, itv *intervention.Intervention) {
	out.Publish(&event.Event{Type: event.TypeAgentComplete, Agent: itv.AgentName, Status: statusStopped})

	reason := fmt.Sprintf("Workflow stopped at %s stage due to quality verification errors", itv.Stage)
	if itv.Stage == workflow.StatePolicy {
		reason = fmt.Sprintf("Workflow stopped at %s stage due to policy violations", itv.Stage)
	}

	out.Publish(&event.Event{
		Type:   event.TypeWorkflowStopped,
		Stage:  itv.Stage.String(),
		Reason: reason,
	})

	c.logger.Info("Intervention declined, workflow stopped",
		zap.String("intervention_id", itv.ID),
		zap.String("stage", itv.Stage.String()))

	c.finish(out)
	c.record(st, statusStopped)
}

// fail surfaces an unrecoverable error on the stream and finalizes it.
// The client always receives a terminal done frame once streaming began.
func (c *Coordinator) fail(out *stream.Stream, st *agent.RunState, agentName string, err error) {
	c.logger.Error("Workflow run failed",
		zap.String("agent", agentName),
		zap.Error(err))

	out.Publish(&event.Event{Type: event.TypeError, Agent: agentName, Message: err.Error()})
	c.finish(out)
	c.record(st, statusFailed)
}

// finish emits the terminal done frame and closes the stream.
func (c *Coordinator) finish(out *stream.Stream) {
	out.Publish(&event.Event{Type: event.TypeDone})
	out.Close()
}

// record writes the run summary to the audit log, best-effort.
func (c *Coordinator) record(st *agent.RunState, status string) {
	if c.recorder == nil {
		return
	}

	rec := &persistence.RunRecord{Status: status, Decisions: st.Decisions}
	if st.Data != nil {
		rec.Vendor = st.Data.Vendor
		rec.InvoiceNumber = st.Data.InvoiceNumber
		rec.Total = st.Data.Total
		rec.Currency = st.Data.Currency
	}
	if st.Ledger != nil {
		rec.LedgerCode = st.Ledger.Code
	}
	if st.Policy != nil {
		rec.PolicyApproved = st.Policy.Approved
		rec.ViolationCount = len(st.Policy.Violations)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.recorder.RecordRun(ctx, rec); err != nil {
		c.logger.Warn("Failed to record run", zap.Error(err))
	}
}

// snapshot copies the extracted data for display in intervention frames.
func snapshot(data *invoice.ExtractedData) *invoice.ExtractedData {
	if data == nil {
		return nil
	}
	copied := *data
	copied.LineItems = append([]invoice.LineItem(nil), data.LineItems...)
	return &copied
}
