package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a trigger is not permitted in
	// the current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not a known pipeline state.
	ErrInvalidState = errors.New("invalid state")

	// ErrTerminalState is returned when firing a trigger on a finished run.
	ErrTerminalState = errors.New("workflow already in terminal state")
)
