package workflow

// State represents a stage marker in the pipeline lifecycle.
type State string

const (
	StateIntake           State = "intake"
	StateExtraction       State = "extraction"
	StatePolicy           State = "policy"
	StateSuspendedPolicy  State = "suspended_policy"
	StateLedgerMapping    State = "ledger_mapping"
	StateQuality          State = "quality"
	StateSuspendedQuality State = "suspended_quality"
	StatePublish          State = "publish"
	StateDone             State = "done"
	StateStopped          State = "stopped"
)

var validStates = map[State]bool{
	StateIntake:           true,
	StateExtraction:       true,
	StatePolicy:           true,
	StateSuspendedPolicy:  true,
	StateLedgerMapping:    true,
	StateQuality:          true,
	StateSuspendedQuality: true,
	StatePublish:          true,
	StateDone:             true,
	StateStopped:          true,
}

var terminalStates = map[State]bool{
	StateDone:    true,
	StateStopped: true,
}

var suspendedStates = map[State]bool{
	StateSuspendedPolicy:  true,
	StateSuspendedQuality: true,
}

// IsTerminal returns true if no further transitions are allowed.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsSuspended returns true if the state is exited only by an external
// human decision.
func (s State) IsSuspended() bool {
	return suspendedStates[s]
}

// IsValid returns true if the state is a known pipeline state.
func (s State) IsValid() bool {
	return validStates[s]
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}
