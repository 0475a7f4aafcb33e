package jobs

import (
	"testing"

	"github.com/maxbates/molecular-design-toolkit/pkg/calc"
)

func TestAllowedTransition(t *testing.T) {
	terminal := []State{StateSucceeded, StateFailed, StateTimedOut, StateCanceled}

	if !allowedTransition(StateQueued, StateRunning) {
		t.Error("queued -> running must be allowed")
	}
	if !allowedTransition(StateQueued, StateCanceled) {
		t.Error("queued -> canceled must be allowed")
	}
	for _, to := range []State{StateSucceeded, StateFailed, StateTimedOut} {
		if allowedTransition(StateQueued, to) {
			t.Errorf("queued -> %s must be rejected", to)
		}
	}
	for _, to := range terminal {
		if !allowedTransition(StateRunning, to) {
			t.Errorf("running -> %s must be allowed", to)
		}
	}
	// Terminal states are absorbing.
	for _, from := range terminal {
		for _, to := range append([]State{StateQueued, StateRunning}, terminal...) {
			if allowedTransition(from, to) {
				t.Errorf("%s -> %s must be rejected", from, to)
			}
		}
	}
}

func TestJob_TransitionRecordsOutcome(t *testing.T) {
	spec := toyhfSpec(t, 0, calc.PropertyEnergy)
	job := newJob(spec, nil, func() {})

	if job.snapshotState() != StateQueued {
		t.Fatalf("new job state = %s, want queued", job.snapshotState())
	}
	if err := job.transition(StateRunning, nil, nil); err != nil {
		t.Fatalf("to running: %v", err)
	}
	rs, err := calc.NewResultSet(map[calc.Property]any{calc.PropertyEnergy: -1.117})
	if err != nil {
		t.Fatalf("NewResultSet: %v", err)
	}
	if err := job.transition(StateSucceeded, rs, nil); err != nil {
		t.Fatalf("to succeeded: %v", err)
	}

	select {
	case <-job.done:
	default:
		t.Error("done channel not closed on terminal transition")
	}
	if err := job.transition(StateCanceled, nil, ErrJobCanceled); err == nil {
		t.Error("terminal job accepted a second transition")
	}
	if job.result != rs {
		t.Error("result not recorded")
	}
}

func TestSnapshot_RetriesDerivedFromAttempts(t *testing.T) {
	spec := toyhfSpec(t, 0, calc.PropertyEnergy)
	job := newJob(spec, nil, func() {})

	if got := job.snapshot().Retries; got != 0 {
		t.Errorf("unstarted job retries = %d, want 0", got)
	}
	job.setAttempts(3)
	if got := job.snapshot().Retries; got != 2 {
		t.Errorf("retries = %d, want 2", got)
	}
}
