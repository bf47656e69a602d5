package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/domain/invoice"
	"github.com/finagent/invoiceflow/internal/gateway"
	"github.com/finagent/invoiceflow/internal/stream"
)

// IntakeAgent validates file integrity, duplication, and image quality via
// model judgment. Its findings are informational: warnings are recorded but
// the pipeline is never blocked.
type IntakeAgent struct {
	gen    gateway.Generator
	logger *zap.Logger
}

// NewIntakeAgent creates the intake agent.
func NewIntakeAgent(gen gateway.Generator, logger *zap.Logger) *IntakeAgent {
	return &IntakeAgent{gen: gen, logger: logger}
}

func (a *IntakeAgent) Name() string { return "Intake Agent" }
func (a *IntakeAgent) Step() int    { return 1 }

const intakeReasoningPrompt = `Analyze this invoice image file. Check:
1. File integrity - is the image valid and readable?
2. Duplicate detection - does this look like a file we've seen before? (Check for similar layouts, dates, vendor names)
3. Image quality - is the image blurry, too dark, or have poor resolution that might affect extraction?

Think through each of these checks systematically.`

const intakeActionPrompt = `Based on your reasoning, provide a JSON response with:
{
  "status": "valid" | "warning" | "error",
  "fileIntegrity": boolean,
  "isDuplicate": boolean,
  "isBlurry": boolean,
  "warnings": [array of warning messages],
  "sanitized": true
}`

// Execute runs intake: Reason over the image, Act to produce a validation
// verdict, Reflect on the findings.
func (a *IntakeAgent) Execute(ctx context.Context, out *stream.Stream, st *RunState) (Outcome, error) {
	emitStart(out, a.Name(), a.Step())
	img := st.imagePayload()

	if _, err := streamPhase(ctx, a.gen, out, a.Name(), phaseReasoning, intakeReasoningPrompt, img); err != nil {
		return Outcome{}, err
	}

	emitAction(out, a.Name(), "Performing file validation and quality checks...")

	actionText, err := a.gen.Generate(ctx, gateway.Request{
		Prompt:       intakeActionPrompt,
		Image:        img,
		JSONResponse: true,
	})
	if err != nil {
		return Outcome{}, err
	}

	result := a.parseResult(actionText)
	st.Intake = result
	st.Warnings = append(st.Warnings, result.Warnings...)

	emitResult(out, a.Name(), result)

	reflectionPrompt := "Reflect on the intake process. Did you identify any issues? If warnings were raised, explain why you're proceeding despite them, or if you should stop."
	if _, err := streamPhase(ctx, a.gen, out, a.Name(), phaseReflection, reflectionPrompt, nil); err != nil {
		return Outcome{}, err
	}

	return Outcome{}, nil
}

// parseResult interprets the Act response, falling back to keyword cues
// when structured parsing fails. Intake is never fatal.
func (a *IntakeAgent) parseResult(actionText string) *invoice.IntakeResult {
	result := &invoice.IntakeResult{
		Status:        "valid",
		FileIntegrity: true,
		Warnings:      []string{},
		Sanitized:     true,
	}

	if DecodeJSON(actionText, result) {
		if result.Warnings == nil {
			result.Warnings = []string{}
		}
		return result
	}

	a.logger.Warn("Intake response not parseable, inferring from text cues")
	if containsAny(actionText, "duplicate", "seen before") {
		result.IsDuplicate = true
		result.Warnings = append(result.Warnings, "Possible duplicate invoice detected")
	}
	if containsAny(actionText, "blurry", "unclear") {
		result.IsBlurry = true
		result.Warnings = append(result.Warnings, "Image quality may affect extraction accuracy")
	}
	return result
}
