package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/agent"
	"github.com/finagent/invoiceflow/internal/domain/event"
	"github.com/finagent/invoiceflow/internal/gateway"
	"github.com/finagent/invoiceflow/internal/intervention"
	"github.com/finagent/invoiceflow/internal/publish"
	"github.com/finagent/invoiceflow/internal/stream"
)

// scriptedGenerator pops Generate responses in order and streams a fixed
// chunk for every reasoning/reflection phase.
type scriptedGenerator struct {
	responses []string
}

func (g *scriptedGenerator) Generate(_ context.Context, _ gateway.Request) (string, error) {
	if len(g.responses) == 0 {
		return "", nil
	}
	resp := g.responses[0]
	g.responses = g.responses[1:]
	return resp, nil
}

func (g *scriptedGenerator) GenerateStream(_ context.Context, _ gateway.Request, fn gateway.ChunkFunc) (string, error) {
	if fn != nil {
		fn("thinking...")
	}
	return "thinking...", nil
}

const (
	intakeJSON     = `{"status":"valid","fileIntegrity":true,"isDuplicate":false,"isBlurry":false,"warnings":[],"sanitized":true}`
	cleanInvoice   = `{"vendor":"Office Depot","invoiceNumber":"INV-7","date":"2026-08-01","dueDate":"2026-09-01","subtotal":100,"tax":8,"total":108,"taxRate":0.08,"currency":"USD","lineItems":[{"description":"Paper supply","quantity":4,"unitPrice":25,"amount":100}]}`
	bigInvoice     = `{"vendor":"Office Depot","invoiceNumber":"INV-8","date":"2026-08-01","dueDate":"2026-09-01","subtotal":15000,"tax":1200,"total":16200,"taxRate":0.08,"currency":"USD","lineItems":[{"description":"Bulk furniture order","quantity":10,"unitPrice":1500,"amount":15000}]}`
	badMathInvoice = `{"vendor":"Office Depot","invoiceNumber":"INV-9","date":"2026-08-01","dueDate":"2026-09-01","subtotal":100,"tax":9,"total":109,"taxRate":0.08,"currency":"USD","lineItems":[{"description":"Paper supply","quantity":4,"unitPrice":25,"amount":100}]}`
	ledgerJSON     = `{"glCode":"6001","glCategory":"OFFICE_SUPPLIES","confidence":90,"reasoning":"office supplies vendor"}`
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
}

func newTestCoordinator(gen gateway.Generator, store intervention.Store) *Coordinator {
	sink := publish.NewSimulatedSink(0, 0)
	return NewCoordinator(gen, sink, store, nil, zap.NewNop(), fixedNow)
}

// drainOpen reads everything currently buffered without waiting for close.
func drainOpen(s *stream.Stream) []*event.Event {
	var events []*event.Event
	for {
		select {
		case evt, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, evt)
		default:
			return events
		}
	}
}

// drainClosed reads until the stream channel closes.
func drainClosed(t *testing.T, s *stream.Stream) []*event.Event {
	t.Helper()
	var events []*event.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, evt)
		case <-timeout:
			t.Fatal("stream did not close in time")
		}
	}
}

func typesOf(events []*event.Event) []event.Type {
	types := make([]event.Type, 0, len(events))
	for _, evt := range events {
		types = append(types, evt.Type)
	}
	return types
}

func findType(events []*event.Event, typ event.Type) *event.Event {
	for _, evt := range events {
		if evt.Type == typ {
			return evt
		}
	}
	return nil
}

func countType(events []*event.Event, typ event.Type) int {
	var n int
	for _, evt := range events {
		if evt.Type == typ {
			n++
		}
	}
	return n
}

func TestRunHappyPath(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{intakeJSON, cleanInvoice, ledgerJSON}}
	store := intervention.NewMemoryStore()
	c := newTestCoordinator(gen, store)

	out := stream.New(stream.DefaultBuffer, zap.NewNop())
	st := &agent.RunState{ImageBase64: "aGVsbG8=", ImageMIME: "image/png"}

	c.Run(context.Background(), out, st)
	events := drainClosed(t, out)
	types := typesOf(events)

	require.NotEmpty(t, types)
	assert.Equal(t, event.TypeWorkflowStart, types[0])
	assert.Equal(t, event.TypeDone, types[len(types)-1])

	// All six agents start and complete, in pipeline order.
	var starts, completes []string
	for _, evt := range events {
		switch evt.Type {
		case event.TypeAgentStart:
			starts = append(starts, evt.Agent)
		case event.TypeAgentComplete:
			completes = append(completes, evt.Agent)
		}
	}
	order := []string{"Intake Agent", "Extraction Agent", "Policy Agent", "GL Mapper Agent", "Quality Agent", "Publisher Agent"}
	assert.Equal(t, order, starts)
	assert.Equal(t, order, completes)

	complete := findType(events, event.TypeWorkflowComplete)
	require.NotNil(t, complete)
	assert.NotNil(t, complete.Payload)

	assert.Nil(t, findType(events, event.TypeInterventionRequired))
	assert.Nil(t, findType(events, event.TypeWorkflowStopped))
	assert.Equal(t, 0, store.Len())

	require.NotNil(t, st.Receipt)
	assert.True(t, st.Receipt.Success)
}

func TestRunSuspendsAtPolicy(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{intakeJSON, bigInvoice, "escalate it"}}
	store := intervention.NewMemoryStore()
	c := newTestCoordinator(gen, store)

	out := stream.New(stream.DefaultBuffer, zap.NewNop())
	st := &agent.RunState{ImageBase64: "aGVsbG8=", ImageMIME: "image/png"}

	c.Run(context.Background(), out, st)
	events := drainOpen(out)

	required := findType(events, event.TypeInterventionRequired)
	require.NotNil(t, required)
	assert.NotEmpty(t, required.InterventionID)
	assert.Equal(t, "policy", required.Stage)
	assert.Equal(t, "Policy Agent", required.Agent)
	assert.Len(t, required.Issues, 2)
	assert.NotNil(t, required.Data)

	pending := findType(events, event.TypeInterventionPending)
	require.NotNil(t, pending)
	assert.Equal(t, required.InterventionID, pending.InterventionID)

	// The suspending agent's completion is deferred.
	var completes []string
	for _, evt := range events {
		if evt.Type == event.TypeAgentComplete {
			completes = append(completes, evt.Agent)
		}
	}
	assert.Equal(t, []string{"Intake Agent", "Extraction Agent"}, completes)

	assert.Equal(t, 1, store.Len())
	assert.Nil(t, findType(events, event.TypeDone))
}

func TestResolveDeclineStopsWorkflow(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{intakeJSON, bigInvoice, "escalate it"}}
	store := intervention.NewMemoryStore()
	c := newTestCoordinator(gen, store)

	out := stream.New(stream.DefaultBuffer, zap.NewNop())
	st := &agent.RunState{ImageBase64: "aGVsbG8=", ImageMIME: "image/png"}

	c.Run(context.Background(), out, st)
	pre := drainOpen(out)
	required := findType(pre, event.TypeInterventionRequired)
	require.NotNil(t, required)

	require.NoError(t, c.Resolve(context.Background(), required.InterventionID, DecisionDecline))
	events := drainClosed(t, out)

	decision := findType(events, event.TypeInterventionDecision)
	require.NotNil(t, decision)
	assert.Equal(t, "decline", decision.Decision)

	complete := findType(events, event.TypeAgentComplete)
	require.NotNil(t, complete)
	assert.Equal(t, "Policy Agent", complete.Agent)
	assert.Equal(t, "stopped", complete.Status)

	stopped := findType(events, event.TypeWorkflowStopped)
	require.NotNil(t, stopped)
	assert.Contains(t, stopped.Reason, "policy violations")
	assert.Equal(t, "policy", stopped.Stage)

	// No later agent ever starts.
	assert.Equal(t, 0, countType(events, event.TypeAgentStart))
	assert.Equal(t, event.TypeDone, typesOf(events)[len(events)-1])
	assert.Equal(t, 0, store.Len())
}

func TestResolveAcceptResumesAfterQuality(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{intakeJSON, badMathInvoice, ledgerJSON}}
	store := intervention.NewMemoryStore()
	c := newTestCoordinator(gen, store)

	out := stream.New(stream.DefaultBuffer, zap.NewNop())
	st := &agent.RunState{ImageBase64: "aGVsbG8=", ImageMIME: "image/png"}

	c.Run(context.Background(), out, st)
	pre := drainOpen(out)
	required := findType(pre, event.TypeInterventionRequired)
	require.NotNil(t, required)
	assert.Equal(t, "quality", required.Stage)
	assert.Equal(t, "Quality Agent", required.Agent)

	require.NoError(t, c.Resolve(context.Background(), required.InterventionID, DecisionAccept))
	events := drainClosed(t, out)

	decision := findType(events, event.TypeInterventionDecision)
	require.NotNil(t, decision)
	assert.Equal(t, "accept", decision.Decision)

	// Quality completes (deferred), then only the Publisher runs.
	starts := make([]string, 0, 1)
	for _, evt := range events {
		if evt.Type == event.TypeAgentStart {
			starts = append(starts, evt.Agent)
		}
	}
	assert.Equal(t, []string{"Publisher Agent"}, starts)

	require.NotNil(t, findType(events, event.TypeWorkflowComplete))
	assert.Equal(t, event.TypeDone, typesOf(events)[len(events)-1])

	// Exactly one human decision is recorded, alongside the agent's own
	// escalation entry.
	var humans int
	for _, d := range st.Decisions {
		if d.Actor == "human" {
			humans++
		}
	}
	assert.Equal(t, 1, humans)
	require.NotNil(t, st.Quality)
	assert.False(t, st.Quality.Verified)
}

func TestResolveIsIdempotent(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{intakeJSON, bigInvoice, "escalate"}}
	store := intervention.NewMemoryStore()
	c := newTestCoordinator(gen, store)

	out := stream.New(stream.DefaultBuffer, zap.NewNop())
	st := &agent.RunState{ImageBase64: "aGVsbG8=", ImageMIME: "image/png"}

	c.Run(context.Background(), out, st)
	pre := drainOpen(out)
	required := findType(pre, event.TypeInterventionRequired)
	require.NotNil(t, required)

	require.NoError(t, c.Resolve(context.Background(), required.InterventionID, DecisionDecline))
	err := c.Resolve(context.Background(), required.InterventionID, DecisionDecline)
	assert.ErrorIs(t, err, intervention.ErrNotFound)
}

func TestResolveRejectsUnknownDecision(t *testing.T) {
	c := newTestCoordinator(&scriptedGenerator{}, intervention.NewMemoryStore())

	err := c.Resolve(context.Background(), "whatever", "maybe")
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestResolveUnknownID(t *testing.T) {
	c := newTestCoordinator(&scriptedGenerator{}, intervention.NewMemoryStore())

	err := c.Resolve(context.Background(), "missing", DecisionAccept)
	assert.ErrorIs(t, err, intervention.ErrNotFound)
}
