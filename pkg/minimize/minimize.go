package minimize

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/maxbates/molecular-design-toolkit/pkg/calc"
	"github.com/maxbates/molecular-design-toolkit/pkg/jobs"
)

// Config bounds a minimization run.
type Config struct {
	// MaxSteps is the step budget. Exhausting it yields MaxStepsReached,
	// not an error.
	MaxSteps int

	// GradientTolerance is the convergence threshold: converged when the
	// largest gradient component is below it and the RMS is below
	// tolerance/sqrt(3).
	GradientTolerance float64

	// StepSize scales the steepest-descent update.
	StepSize float64
}

func (c Config) withDefaults() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = 100
	}
	if c.GradientTolerance <= 0 {
		c.GradientTolerance = 4.5e-4
	}
	if c.StepSize <= 0 {
		c.StepSize = 0.1
	}
	return c
}

// converged evaluates the termination predicate as a pure function of the
// gradient, so convergence is testable without a running pipeline.
func converged(gradient []float64, tolerance float64) bool {
	maxAbs := 0.0
	for _, g := range gradient {
		if a := math.Abs(g); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs >= tolerance {
		return false
	}
	rms := floats.Norm(gradient, 2) / math.Sqrt(float64(len(gradient)))
	return rms < tolerance/math.Sqrt(3)
}

// descend takes one steepest-descent step: x' = x - stepSize * g.
func descend(coords, gradient []float64, stepSize float64) []float64 {
	next := make([]float64, len(coords))
	copy(next, coords)
	floats.AddScaled(next, -stepSize, gradient)
	return next
}

// Run performs an iterative geometry optimization with the given method,
// submitting one energy+gradient job per step through the registry. The
// loop is strictly sequential: a new step is never issued while the previous
// step's job is non-terminal.
//
// It returns the full trajectory with a Converged or MaxStepsReached verdict,
// or a *StepFailedError carrying the partial trajectory, sealed Aborted, when
// an underlying job exhausts its retries.
func Run(ctx context.Context, reg *jobs.Registry, initial *calc.Structure, method string, params map[string]any, cfg Config, log *slog.Logger) (*Trajectory, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}

	traj := &Trajectory{}
	current := initial.Clone()

	for step := 1; step <= cfg.MaxSteps; step++ {
		spec, err := calc.NewSpec(current, method, params,
			[]calc.Property{calc.PropertyEnergy, calc.PropertyGradient})
		if err != nil {
			return nil, fmt.Errorf("build step spec: %w", err)
		}

		results, err := jobs.Compute(ctx, reg, spec)
		if err != nil {
			traj.seal(Aborted)
			return nil, &StepFailedError{Step: step, Trajectory: traj, Err: err}
		}
		traj.append(current, results)

		gradient, ok := results.Gradient()
		if !ok {
			traj.seal(Aborted)
			return nil, &StepFailedError{
				Step:       step,
				Trajectory: traj,
				Err:        fmt.Errorf("engine returned no gradient for method %s", method),
			}
		}
		energy, _ := results.Energy()
		gnorm := floats.Norm(gradient, 2)
		log.Debug("minimization step", "step", step, "energy", energy, "gradient_norm", gnorm)

		if converged(gradient, cfg.GradientTolerance) {
			traj.seal(Converged)
			log.Info("minimization converged", "steps", step, "energy", energy)
			return traj, nil
		}

		next, err := current.WithCoords(descend(current.Coords, gradient, cfg.StepSize))
		if err != nil {
			traj.seal(Aborted)
			return nil, &StepFailedError{Step: step, Trajectory: traj, Err: err}
		}
		current = next
	}

	traj.seal(MaxStepsReached)
	log.Info("minimization stopped at step budget", "steps", cfg.MaxSteps)
	return traj, nil
}
