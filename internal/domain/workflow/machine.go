package workflow

import "fmt"

// Machine tracks the current pipeline stage and validates transitions.
// The pipeline is a fixed sequence with two suspension points, so the
// transition table is static; there are no guarded or parallel branches.
type Machine struct {
	current State
}

// transitions is keyed by (from state, trigger). Suspension is only
// permitted at the Policy and Quality stages; a suspended state is
// exited only by RESUME or DECLINE.
var transitions = map[State]map[Trigger]State{
	StateIntake: {
		TriggerAdvance: StateExtraction,
	},
	StateExtraction: {
		TriggerAdvance: StatePolicy,
	},
	StatePolicy: {
		TriggerAdvance: StateLedgerMapping,
		TriggerSuspend: StateSuspendedPolicy,
	},
	StateSuspendedPolicy: {
		TriggerResume:  StateLedgerMapping,
		TriggerDecline: StateStopped,
	},
	StateLedgerMapping: {
		TriggerAdvance: StateQuality,
	},
	StateQuality: {
		TriggerAdvance: StatePublish,
		TriggerSuspend: StateSuspendedQuality,
	},
	StateSuspendedQuality: {
		TriggerResume:  StatePublish,
		TriggerDecline: StateStopped,
	},
	StatePublish: {
		TriggerAdvance: StateDone,
	},
}

// NewMachine creates a machine positioned at the given initial state.
func NewMachine(initial State) (*Machine, error) {
	if !initial.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, initial)
	}
	return &Machine{current: initial}, nil
}

// State returns the current state.
func (m *Machine) State() State {
	return m.current
}

// CanFire returns true if the trigger is permitted in the current state.
func (m *Machine) CanFire(trigger Trigger) bool {
	_, ok := transitions[m.current][trigger]
	return ok
}

// Fire executes the trigger, transitioning to the new state if allowed.
func (m *Machine) Fire(trigger Trigger) error {
	if m.current.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminalState, m.current)
	}
	next, ok := transitions[m.current][trigger]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from state %s", ErrInvalidTransition, trigger, m.current)
	}
	m.current = next
	return nil
}

// PermittedTriggers returns all triggers that can fire in the current state.
func (m *Machine) PermittedTriggers() []Trigger {
	row := transitions[m.current]
	triggers := make([]Trigger, 0, len(row))
	for t := range row {
		triggers = append(triggers, t)
	}
	return triggers
}
