package minimize

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/maxbates/molecular-design-toolkit/pkg/calc"
	"github.com/maxbates/molecular-design-toolkit/pkg/containerrt"
	"github.com/maxbates/molecular-design-toolkit/pkg/engine"
	"github.com/maxbates/molecular-design-toolkit/pkg/jobs"
)

// nopRuntime satisfies the container contract without running anything; the
// fake adapters below compute their results from the spec alone.
type nopRuntime struct{}

func (nopRuntime) Run(context.Context, containerrt.RunSpec) (*containerrt.RawOutput, error) {
	return &containerrt.RawOutput{ExitCode: 0}, nil
}

// quadAdapter models a quadratic well centered at the origin: E = sum(x^2),
// g = 2x. Steepest descent on it contracts coordinates geometrically, so runs
// are exactly reproducible.
type quadAdapter struct {
	mu        sync.Mutex
	calls     int
	failAt    int   // Parse fails on this call number; 0 disables
	failWith  error // the failure to return
	gradConst float64
}

func (q *quadAdapter) Method() string { return "quad" }
func (q *quadAdapter) Image() string  { return "fake:1" }

func (q *quadAdapter) Prepare(*calc.Spec) (*engine.Input, error) {
	return &engine.Input{Image: q.Image(), Command: []string{"quad"}}, nil
}

func (q *quadAdapter) Parse(spec *calc.Spec, _ *containerrt.RawOutput) (*calc.ResultSet, error) {
	q.mu.Lock()
	q.calls++
	n := q.calls
	q.mu.Unlock()
	if q.failAt > 0 && n >= q.failAt {
		return nil, q.failWith
	}

	coords := spec.Structure().Coords
	energy := 0.0
	gradient := make([]float64, len(coords))
	for i, x := range coords {
		energy += x * x
		gradient[i] = 2 * x
	}
	if q.gradConst != 0 {
		// Flat slope: the run can never meet the tolerance.
		for i := range gradient {
			gradient[i] = q.gradConst
		}
	}
	return calc.NewResultSet(map[calc.Property]any{
		calc.PropertyEnergy:   energy,
		calc.PropertyGradient: gradient,
	})
}

func (q *quadAdapter) Transient(error) bool { return false }

func newMinimizeRegistry(t *testing.T, adapter engine.Adapter) *jobs.Registry {
	t.Helper()
	adapters := engine.NewRegistry()
	if err := adapters.Register(adapter); err != nil {
		t.Fatalf("register adapter: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := jobs.NewRegistry(adapters, nopRuntime{}, jobs.Config{RetryBackoff: time.Millisecond}, log)
	t.Cleanup(reg.Close)
	return reg
}

func startingStructure(t *testing.T) *calc.Structure {
	t.Helper()
	s, err := calc.NewStructure([]string{"H", "H"}, []float64{0.1, 0, 0, 0, 0.08, 0}, nil)
	if err != nil {
		t.Fatalf("NewStructure: %v", err)
	}
	return s
}

func TestConverged(t *testing.T) {
	tol := 4.5e-4
	if !converged([]float64{tol / 10, 0, 0}, tol) {
		t.Error("small gradient must converge")
	}
	if converged([]float64{tol * 2, 0, 0}, tol) {
		t.Error("large component must not converge")
	}
	// Max component barely under tolerance but RMS over tol/sqrt(3).
	n := 12
	g := make([]float64, n)
	for i := range g {
		g[i] = tol * 0.99
	}
	if converged(g, tol) {
		t.Error("RMS criterion must also hold")
	}
}

func TestRun_ConvergesOnQuadraticWell(t *testing.T) {
	reg := newMinimizeRegistry(t, &quadAdapter{})
	traj, err := Run(context.Background(), reg, startingStructure(t), "quad", nil, Config{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if traj.Verdict() != Converged {
		t.Fatalf("verdict = %s, want converged", traj.Verdict())
	}

	energies := traj.Energies()
	if len(energies) < 2 {
		t.Fatalf("trajectory too short: %d frames", traj.Len())
	}
	for i := 1; i < len(energies); i++ {
		if energies[i] >= energies[i-1] {
			t.Errorf("energy rose at step %d: %g -> %g", i, energies[i-1], energies[i])
		}
	}

	final, ok := traj.Final()
	if !ok {
		t.Fatal("no final frame")
	}
	grad, _ := final.Results.Gradient()
	maxAbs := 0.0
	for _, g := range grad {
		if a := math.Abs(g); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs >= 4.5e-4 {
		t.Errorf("final max gradient %g not below tolerance", maxAbs)
	}
}

func TestRun_Deterministic(t *testing.T) {
	run := func() *Trajectory {
		reg := newMinimizeRegistry(t, &quadAdapter{})
		traj, err := Run(context.Background(), reg, startingStructure(t), "quad", nil, Config{}, nil)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return traj
	}
	a, b := run(), run()

	if a.Verdict() != b.Verdict() || a.Len() != b.Len() {
		t.Fatalf("runs diverged: %s/%d vs %s/%d", a.Verdict(), a.Len(), b.Verdict(), b.Len())
	}
	ea, eb := a.Energies(), b.Energies()
	for i := range ea {
		if ea[i] != eb[i] {
			t.Fatalf("energy series diverged at frame %d: %g vs %g", i, ea[i], eb[i])
		}
	}
	fa, _ := a.Final()
	fb, _ := b.Final()
	for i := range fa.Structure.Coords {
		if fa.Structure.Coords[i] != fb.Structure.Coords[i] {
			t.Fatalf("final geometry diverged at coord %d", i)
		}
	}
}

func TestRun_StepBudgetIsAnOutcomeNotAnError(t *testing.T) {
	reg := newMinimizeRegistry(t, &quadAdapter{gradConst: 1.0})
	traj, err := Run(context.Background(), reg, startingStructure(t), "quad", nil, Config{MaxSteps: 50}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if traj.Verdict() != MaxStepsReached {
		t.Errorf("verdict = %s, want max_steps_reached", traj.Verdict())
	}
	if traj.Len() != 50 {
		t.Errorf("trajectory has %d frames, want the full 50-step budget", traj.Len())
	}
}

func TestRun_StepFailureCarriesPartialTrajectory(t *testing.T) {
	adapter := &quadAdapter{
		gradConst: 1.0,
		failAt:    3,
		failWith:  &engine.EngineFailureError{Method: "quad", Reason: "SCF NOT CONVERGED"},
	}
	reg := newMinimizeRegistry(t, adapter)

	_, err := Run(context.Background(), reg, startingStructure(t), "quad", nil, Config{}, nil)
	var stepErr *StepFailedError
	if !errors.As(err, &stepErr) {
		t.Fatalf("err = %v; want StepFailedError", err)
	}
	if stepErr.Step != 3 {
		t.Errorf("failed at step %d, want 3", stepErr.Step)
	}
	if stepErr.Trajectory.Len() != 2 {
		t.Errorf("partial trajectory has %d frames, want the 2 completed steps", stepErr.Trajectory.Len())
	}
	if v := stepErr.Trajectory.Verdict(); v != Aborted {
		t.Errorf("partial trajectory verdict = %q, want %q", v, Aborted)
	}
	var engFail *engine.EngineFailureError
	if !errors.As(err, &engFail) {
		t.Errorf("underlying engine failure not preserved: %v", err)
	}
}

func TestTrajectory_FramesAreIsolated(t *testing.T) {
	reg := newMinimizeRegistry(t, &quadAdapter{})
	traj, err := Run(context.Background(), reg, startingStructure(t), "quad", nil, Config{MaxSteps: 5, GradientTolerance: 1e-12}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	frame := traj.Frame(0)
	frame.Structure.Coords[0] = 999
	if traj.Frame(0).Structure.Coords[0] == 999 {
		t.Error("Frame returned shared structure memory")
	}
}
