package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/domain/event"
	"github.com/finagent/invoiceflow/internal/gateway"
	"github.com/finagent/invoiceflow/internal/stream"
)

// fakeGenerator replays canned responses: Generate pops from the queue,
// GenerateStream always yields streamText as a single chunk.
type fakeGenerator struct {
	responses  []string
	streamText string
	err        error
	calls      int
}

func (g *fakeGenerator) Generate(_ context.Context, _ gateway.Request) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.calls++
	if len(g.responses) == 0 {
		return "", nil
	}
	resp := g.responses[0]
	g.responses = g.responses[1:]
	return resp, nil
}

func (g *fakeGenerator) GenerateStream(_ context.Context, _ gateway.Request, fn gateway.ChunkFunc) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	text := g.streamText
	if text == "" {
		text = "thinking..."
	}
	if fn != nil {
		fn(text)
	}
	return text, nil
}

func newTestStream() *stream.Stream {
	return stream.New(stream.DefaultBuffer, zap.NewNop())
}

// drain reads every buffered event without waiting for the stream to close.
func drain(s *stream.Stream) []*event.Event {
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

func eventTypes(events []*event.Event) []event.Type {
	types := make([]event.Type, 0, len(events))
	for _, evt := range events {
		types = append(types, evt.Type)
	}
	return types
}

// testTime is the fixed evaluation time used across agent tests.
func testTime(t *testing.T) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", "2026-08-31")
	require.NoError(t, err)
	return ts
}

func TestStreamPhaseForwardsChunks(t *testing.T) {
	gen := &fakeGenerator{streamText: "step by step"}
	out := newTestStream()

	transcript, err := streamPhase(context.Background(), gen, out, "Intake Agent", phaseReasoning, "check the file", nil)
	require.NoError(t, err)
	assert.Equal(t, "step by step", transcript)

	events := drain(out)
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeReasoning, events[0].Type)
	assert.Equal(t, "Intake Agent", events[0].Agent)
	assert.Equal(t, "Reasoning", events[0].Phase)
	assert.Equal(t, "step by step", events[0].Content)
}

func TestRecordDecisionAppends(t *testing.T) {
	st := &RunState{}
	st.RecordDecision("Policy Agent", "escalate", "1 violation", "agent", testTime(t))
	st.RecordDecision("Policy Agent", "human-override", "accepted", "human", testTime(t))

	require.Len(t, st.Decisions, 2)
	assert.Equal(t, "escalate", st.Decisions[0].Action)
	assert.Equal(t, "human", st.Decisions[1].Actor)
}
