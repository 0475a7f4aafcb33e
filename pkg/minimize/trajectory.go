// Package minimize drives iterative geometry optimization on top of the job
// pipeline, producing a trajectory of structure/result snapshots.
package minimize

import (
	"fmt"

	"github.com/maxbates/molecular-design-toolkit/pkg/calc"
)

// Verdict is the terminal classification of a minimization run.
type Verdict string

const (
	// Converged means the gradient criteria were met.
	Converged Verdict = "converged"
	// MaxStepsReached means the step budget ran out first. A reported
	// outcome, not an error.
	MaxStepsReached Verdict = "max_steps_reached"
	// Aborted means a step failed before the run could terminate on its
	// own; the trajectory holds only the frames completed before it.
	Aborted Verdict = "aborted"
)

// Frame is one step of the optimization: the structure that was evaluated
// and the engine's results for it.
type Frame struct {
	Structure *calc.Structure
	Results   *calc.ResultSet
}

// Trajectory is the ordered record of a minimization run. It is append-only
// while the run is live and sealed immutable when the run terminates; it is
// owned by the Run invocation that created it.
type Trajectory struct {
	frames  []Frame
	verdict Verdict
	sealed  bool
}

func (t *Trajectory) append(structure *calc.Structure, results *calc.ResultSet) {
	if t.sealed {
		panic("append to sealed trajectory")
	}
	t.frames = append(t.frames, Frame{Structure: structure.Clone(), Results: results})
}

func (t *Trajectory) seal(v Verdict) {
	t.verdict = v
	t.sealed = true
}

// Len returns the number of recorded frames.
func (t *Trajectory) Len() int { return len(t.frames) }

// Frame returns the i-th frame with an independent structure copy.
func (t *Trajectory) Frame(i int) Frame {
	f := t.frames[i]
	return Frame{Structure: f.Structure.Clone(), Results: f.Results}
}

// Final returns the last frame, or false for an empty trajectory.
func (t *Trajectory) Final() (Frame, bool) {
	if len(t.frames) == 0 {
		return Frame{}, false
	}
	return t.Frame(len(t.frames) - 1), true
}

// Verdict returns the terminal classification of a sealed trajectory.
func (t *Trajectory) Verdict() Verdict { return t.verdict }

// Energies returns the energy series across frames.
func (t *Trajectory) Energies() []float64 {
	out := make([]float64, 0, len(t.frames))
	for _, f := range t.frames {
		if e, ok := f.Results.Energy(); ok {
			out = append(out, e)
		}
	}
	return out
}

// StepFailedError terminates a run whose underlying job failed after
// exhausting its own retries. The partial trajectory is attached so no
// completed work is discarded.
type StepFailedError struct {
	Step       int
	Trajectory *Trajectory
	Err        error
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("minimization step %d failed: %v", e.Step, e.Err)
}

func (e *StepFailedError) Unwrap() error { return e.Err }
