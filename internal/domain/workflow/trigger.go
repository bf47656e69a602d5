package workflow

// Trigger represents an event that can cause a state transition.
type Trigger string

const (
	// TriggerAdvance moves to the next sequential stage after an agent
	// completes without raising an intervention.
	TriggerAdvance Trigger = "ADVANCE"

	// TriggerSuspend parks the pipeline awaiting a human decision.
	TriggerSuspend Trigger = "SUSPEND"

	// TriggerResume re-enters the pipeline after a human accepts.
	TriggerResume Trigger = "RESUME"

	// TriggerDecline terminates a suspended pipeline.
	TriggerDecline Trigger = "DECLINE"
)

// String returns the string representation of the trigger.
func (t Trigger) String() string {
	return string(t)
}
