// Package jobs implements the computation job orchestration core: the job
// state machine, the per-job supervisor and the process-wide registry that
// deduplicates, admits and tracks jobs.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maxbates/molecular-design-toolkit/pkg/calc"
	"github.com/maxbates/molecular-design-toolkit/pkg/engine"
)

// State is the lifecycle state of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateCanceled  State = "canceled"
)

// Terminal reports whether the state is final. Terminal jobs are never
// resumed.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateCanceled:
		return true
	default:
		return false
	}
}

// allowedTransition encodes the monotonic path
// Queued → Running → {Succeeded, Failed, TimedOut, Canceled},
// with cancellation permitted from Queued as well.
func allowedTransition(from, to State) bool {
	switch from {
	case StateQueued:
		return to == StateRunning || to == StateCanceled
	case StateRunning:
		return to.Terminal()
	default:
		return false
	}
}

// Job is the mutable record owned by the registry's supervisor. All access
// outside this package goes through Handle snapshots.
type Job struct {
	mu sync.Mutex

	id          uuid.UUID
	fingerprint string
	spec        *calc.Spec
	adapter     engine.Adapter

	state     State
	attempts  int
	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time

	result *calc.ResultSet
	err    error

	// cancel aborts the supervising goroutine's context; cancelRequested
	// distinguishes caller cancellation from runtime-internal aborts.
	cancel          context.CancelFunc
	cancelRequested bool

	done chan struct{}
}

func newJob(spec *calc.Spec, adapter engine.Adapter, cancel context.CancelFunc) *Job {
	return &Job{
		id:          uuid.New(),
		fingerprint: spec.Fingerprint(),
		spec:        spec,
		adapter:     adapter,
		state:       StateQueued,
		createdAt:   time.Now().UTC(),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// transition moves the job to the given state, enforcing monotonicity.
// Terminal transitions record the outcome and release waiters exactly once.
func (j *Job) transition(to State, result *calc.ResultSet, err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !allowedTransition(j.state, to) {
		return fmt.Errorf("invalid job transition %s -> %s", j.state, to)
	}
	j.state = to
	now := time.Now().UTC()
	switch {
	case to == StateRunning:
		j.startedAt = now
	case to.Terminal():
		j.endedAt = now
		j.result = result
		j.err = err
		close(j.done)
	}
	return nil
}

func (j *Job) snapshotState() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) setAttempts(n int) {
	j.mu.Lock()
	j.attempts = n
	j.mu.Unlock()
}

func (j *Job) requestCancel() {
	j.mu.Lock()
	already := j.cancelRequested || j.state.Terminal()
	j.cancelRequested = true
	cancel := j.cancel
	j.mu.Unlock()
	if !already && cancel != nil {
		cancel()
	}
}

func (j *Job) cancelWasRequested() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelRequested
}

// Snapshot is an immutable view of a job's bookkeeping, safe to hand out.
type Snapshot struct {
	ID          uuid.UUID
	Fingerprint string
	Method      string
	State       State
	Attempts    int
	Retries     int
	CreatedAt   time.Time
	StartedAt   time.Time
	EndedAt     time.Time
	Err         error
}

func (j *Job) snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	retries := 0
	if j.attempts > 0 {
		retries = j.attempts - 1
	}
	return Snapshot{
		ID:          j.id,
		Fingerprint: j.fingerprint,
		Method:      j.spec.Method(),
		State:       j.state,
		Attempts:    j.attempts,
		Retries:     retries,
		CreatedAt:   j.createdAt,
		StartedAt:   j.startedAt,
		EndedAt:     j.endedAt,
		Err:         j.err,
	}
}
