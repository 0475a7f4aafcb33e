package jobs

import (
	"context"

	"github.com/google/uuid"

	"github.com/maxbates/molecular-design-toolkit/pkg/calc"
)

// Handle is a future-like reference to a submitted job. Duplicate submits of
// structurally identical specs yield handles to the same underlying job.
type Handle struct {
	job *Job
}

// ID returns the job's id.
func (h *Handle) ID() uuid.UUID { return h.job.id }

// Fingerprint returns the spec fingerprint the job was admitted under.
func (h *Handle) Fingerprint() string { return h.job.fingerprint }

// State returns the job's current state.
func (h *Handle) State() State { return h.job.snapshotState() }

// Snapshot returns an immutable view of the job's bookkeeping.
func (h *Handle) Snapshot() Snapshot { return h.job.snapshot() }

// Done returns a channel closed when the job reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.job.done }

// Cancel requests cooperative cancellation. A queued job leaves the
// admission queue; a running job's container is torn down promptly.
// Canceling a terminal job is a no-op.
func (h *Handle) Cancel() { h.job.requestCancel() }

// Await blocks until the job is terminal or ctx expires. The caller's
// deadline is independent of the job's own timeout: ErrAwaitTimeout leaves
// the job running. A terminal job resolves to its ResultSet or to an error
// mirroring its terminal state (FailedError, TimedOutError, ErrJobCanceled).
func (h *Handle) Await(ctx context.Context) (*calc.ResultSet, error) {
	// An already-terminal job resolves even when ctx is already done.
	select {
	case <-h.job.done:
	default:
		select {
		case <-ctx.Done():
			return nil, ErrAwaitTimeout
		case <-h.job.done:
		}
	}

	h.job.mu.Lock()
	defer h.job.mu.Unlock()
	switch h.job.state {
	case StateSucceeded:
		return h.job.result, nil
	case StateCanceled:
		return nil, ErrJobCanceled
	case StateTimedOut:
		return nil, &TimedOutError{Attempts: h.job.attempts, Cause: h.job.err}
	default:
		return nil, &FailedError{Cause: h.job.err}
	}
}

// Compute is the synchronous convenience wrapper over Submit plus Await.
func Compute(ctx context.Context, reg *Registry, spec *calc.Spec) (*calc.ResultSet, error) {
	handle, err := reg.Submit(ctx, spec)
	if err != nil {
		return nil, err
	}
	return handle.Await(ctx)
}
