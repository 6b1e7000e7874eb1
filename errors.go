package beatclock

import "errors"

// Error categories returned by the package. Callers match them with errors.Is;
// individual failures wrap these with context.
var (
	// ErrInvalidArgument reports a value that would corrupt transport state if
	// accepted (negative seek beat, non-positive bpm or step size). Values are
	// never clamped silently.
	ErrInvalidArgument = errors.New("beatclock: invalid argument")

	// ErrUnsupportedEnvironment reports that a render transport could not be
	// created, e.g. the process-wide audio context is already bound to a
	// different sample rate.
	ErrUnsupportedEnvironment = errors.New("beatclock: unsupported environment")

	// ErrPrecondition reports an operation with no well-defined meaning in the
	// current state, e.g. scheduling a tempo change while stopped.
	ErrPrecondition = errors.New("beatclock: precondition violation")
)
