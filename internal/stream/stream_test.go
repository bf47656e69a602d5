package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/domain/event"
)

func TestPublishDeliversInOrder(t *testing.T) {
	s := New(8, zap.NewNop())

	s.Publish(&event.Event{Type: event.TypeWorkflowStart})
	s.Publish(&event.Event{Type: event.TypeAgentStart, Agent: "Intake Agent"})
	s.Publish(&event.Event{Type: event.TypeDone})
	s.Close()

	var types []event.Type
	for evt := range s.Events() {
		types = append(types, evt.Type)
	}
	assert.Equal(t, []event.Type{event.TypeWorkflowStart, event.TypeAgentStart, event.TypeDone}, types)
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	s := New(8, zap.NewNop())
	s.Close()

	s.Publish(&event.Event{Type: event.TypeReasoning})
	assert.Equal(t, 1, s.Dropped())
}

func TestPublishAfterAbandonIsDropped(t *testing.T) {
	s := New(8, zap.NewNop())
	s.Abandon()

	s.Publish(&event.Event{Type: event.TypeReasoning})
	s.Publish(&event.Event{Type: event.TypeDone})
	assert.Equal(t, 2, s.Dropped())

	// Finalizing an abandoned stream still works.
	s.Close()
	_, open := <-s.Events()
	assert.False(t, open)
}

func TestPublishFullBufferDrops(t *testing.T) {
	s := New(2, zap.NewNop())

	s.Publish(&event.Event{Type: event.TypeReasoning})
	s.Publish(&event.Event{Type: event.TypeReasoning})
	s.Publish(&event.Event{Type: event.TypeReasoning})

	assert.Equal(t, 1, s.Dropped())
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New(8, zap.NewNop())
	s.Close()
	s.Close()

	select {
	case <-s.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestFrame(t *testing.T) {
	frame, err := Frame(&event.Event{Type: event.TypeAgentAction, Agent: "Policy Agent", Message: "Checking invoice against policy rules..."})
	require.NoError(t, err)

	text := string(frame)
	assert.True(t, len(text) > 0)
	assert.Equal(t, "data: ", text[:6])
	assert.Equal(t, "\n\n", text[len(text)-2:])
	assert.Contains(t, text, `"type":"agent_action"`)
	assert.Contains(t, text, `"agent":"Policy Agent"`)
}

func TestFrameOmitsEmptyFields(t *testing.T) {
	frame, err := Frame(&event.Event{Type: event.TypeDone})
	require.NoError(t, err)
	assert.Equal(t, "data: {\"type\":\"done\"}\n\n", string(frame))
}
