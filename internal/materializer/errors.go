package materializer

import (
	"errors"
	"fmt"
)

var (
	// ErrEnsureFailed matches every *EnsureError.
	ErrEnsureFailed = errors.New("ensure failed")
	// ErrInvariant matches every *InvariantError.
	ErrInvariant = errors.New("invariant violation")

	// errSkip unwinds to the nearest enclosing Sequence when a Filter
	// rejects the cycle.
	errSkip = errors.New("filtered")
)

// EnsureError aborts the current cycle when an Ensure predicate is false.
type EnsureError struct {
	Cause string
}

func (e *EnsureError) Error() string {
	return fmt.Sprintf("ensure failed: %s", e.Cause)
}

// Is reports whether target is ErrEnsureFailed.
func (e *EnsureError) Is(target error) bool {
	return target == ErrEnsureFailed
}

// InvariantError reports a malformed step tree or another internal
// inconsistency. It is fatal to the whole run.
type InvariantError struct {
	Step string
	Msg  string
}

func (e *InvariantError) Error() string {
	if e.Step == "" {
		return "invariant violation: " + e.Msg
	}
	return fmt.Sprintf("invariant violation in step %q: %s", e.Step, e.Msg)
}

// Is reports whether target is ErrInvariant.
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariant
}

// CycleError is returned when a step fails the current cycle. The failure
// has already been recorded as a measurement on the session.
type CycleError struct {
	Parent string
	Step   string
	Err    error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Parent, e.Step, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must end the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvariant)
}
