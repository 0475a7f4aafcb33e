package jobs

import (
	"errors"
	"fmt"
)

// ErrJobCanceled is the terminal outcome of an explicitly canceled job.
// A caller decision, not a fault.
var ErrJobCanceled = errors.New("job canceled")

// ErrAwaitTimeout is returned by Handle.Await when the caller's own deadline
// elapses before the job reaches a terminal state. The job itself keeps
// running.
var ErrAwaitTimeout = errors.New("await deadline elapsed before job completed")

// ErrRegistryClosed is returned by Submit after Close.
var ErrRegistryClosed = errors.New("job registry is closed")

// FailedError mirrors the Failed terminal state: the last underlying cause
// after any retries were exhausted.
type FailedError struct {
	Cause error
}

func (e *FailedError) Error() string { return fmt.Sprintf("job failed: %v", e.Cause) }
func (e *FailedError) Unwrap() error { return e.Cause }

// TimedOutError mirrors the TimedOut terminal state: every attempt exceeded
// its wall-clock budget.
type TimedOutError struct {
	Attempts int
	Cause    error
}

func (e *TimedOutError) Error() string {
	return fmt.Sprintf("job timed out after %d attempt(s): %v", e.Attempts, e.Cause)
}

func (e *TimedOutError) Unwrap() error { return e.Cause }
