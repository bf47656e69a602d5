package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/domain/event"
)

func TestIntakeParseResultStructured(t *testing.T) {
	a := NewIntakeAgent(&fakeGenerator{}, zap.NewNop())

	result := a.parseResult(`{"status":"warning","fileIntegrity":true,"isDuplicate":true,"isBlurry":false,"warnings":["Possible duplicate"],"sanitized":true}`)

	assert.Equal(t, "warning", result.Status)
	assert.True(t, result.IsDuplicate)
	assert.False(t, result.IsBlurry)
	assert.Equal(t, []string{"Possible duplicate"}, result.Warnings)
}

func TestIntakeParseResultFallback(t *testing.T) {
	a := NewIntakeAgent(&fakeGenerator{}, zap.NewNop())

	t.Run("duplicate cue", func(t *testing.T) {
		result := a.parseResult("This invoice looks like one we have seen before.")
		assert.True(t, result.IsDuplicate)
		assert.Contains(t, result.Warnings, "Possible duplicate invoice detected")
	})

	t.Run("blurry cue", func(t *testing.T) {
		result := a.parseResult("The image is quite blurry in the totals section.")
		assert.True(t, result.IsBlurry)
		assert.Contains(t, result.Warnings, "Image quality may affect extraction accuracy")
	})

	t.Run("no cues keeps defaults", func(t *testing.T) {
		result := a.parseResult("Everything checks out.")
		assert.Equal(t, "valid", result.Status)
		assert.True(t, result.FileIntegrity)
		assert.False(t, result.IsDuplicate)
		assert.False(t, result.IsBlurry)
		assert.Empty(t, result.Warnings)
	})
}

func TestIntakeExecuteNeverBlocks(t *testing.T) {
	// Even a garbled response with warning cues produces a non-blocking
	// outcome: intake findings are informational.
	gen := &fakeGenerator{responses: []string{"the image might be blurry, proceed with caution"}}
	a := NewIntakeAgent(gen, zap.NewNop())
	out := newTestStream()

	st := &RunState{ImageBase64: "aGVsbG8=", ImageMIME: "image/png"}
	outcome, err := a.Execute(context.Background(), out, st)
	require.NoError(t, err)

	assert.False(t, outcome.RequiresIntervention)
	require.NotNil(t, st.Intake)
	assert.True(t, st.Intake.IsBlurry)
	assert.Len(t, st.Warnings, 1)

	types := eventTypes(drain(out))
	assert.Contains(t, types, event.TypeAgentStart)
	assert.Contains(t, types, event.TypeReasoning)
	assert.Contains(t, types, event.TypeAgentAction)
	assert.Contains(t, types, event.TypeAgentResult)
	// Completion is emitted by the coordinator, not the agent.
	assert.NotContains(t, types, event.TypeAgentComplete)
}
