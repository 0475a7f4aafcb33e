package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maxbates/molecular-design-toolkit/pkg/minimize"
)

var minimizeCmd = &cobra.Command{
	Use:   "minimize",
	Short: "Optimize a geometry and report the trajectory",
	Long: `Run an iterative geometry optimization: each step submits an
energy+gradient calculation, then takes a steepest-descent step until the
gradient criteria are met or the step budget runs out.

Example:
  mdtk minimize --structure water.xyz --method xtb --max-steps 200
  mdtk minimize --structure ethane.xyz --method pyscf --params '{"theory":"rhf","basis":"sto-3g"}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		structPath, _ := flags.GetString("structure")
		method, _ := flags.GetString("method")
		rawParams, _ := flags.GetString("params")
		maxSteps, _ := flags.GetInt("max-steps")
		tolerance, _ := flags.GetFloat64("tolerance")
		stepSize, _ := flags.GetFloat64("step-size")

		if structPath == "" || method == "" {
			cmd.SilenceUsage = false
			return cmd.Usage()
		}
		initial, err := loadXYZ(structPath)
		if err != nil {
			return err
		}
		params, err := parseParams(rawParams)
		if err != nil {
			return err
		}

		o, err := newOrchestrator()
		if err != nil {
			return err
		}
		defer o.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		traj, err := minimize.Run(ctx, o.registry, initial, method, params, minimize.Config{
			MaxSteps:          maxSteps,
			GradientTolerance: tolerance,
			StepSize:          stepSize,
		}, o.log)
		if err != nil {
			var stepErr *minimize.StepFailedError
			if errors.As(err, &stepErr) {
				cmd.Printf("minimization failed at step %d after %d completed frame(s): %v\n",
					stepErr.Step, stepErr.Trajectory.Len(), stepErr.Err)
			}
			return err
		}

		reportTrajectory(cmd, traj)
		return nil
	},
}

func reportTrajectory(cmd *cobra.Command, traj *minimize.Trajectory) {
	energies := traj.Energies()
	cmd.Printf("verdict: %s\nframes: %d\n", traj.Verdict(), traj.Len())
	if len(energies) > 0 {
		cmd.Printf("energy: %.8f -> %.8f\n", energies[0], energies[len(energies)-1])
	}
	if final, ok := traj.Final(); ok {
		cmd.Println("final geometry:")
		for i, el := range final.Structure.Elements {
			cmd.Printf("  %-2s %12.6f %12.6f %12.6f\n", el,
				final.Structure.Coords[3*i], final.Structure.Coords[3*i+1], final.Structure.Coords[3*i+2])
		}
	}
}

func init() {
	flags := minimizeCmd.Flags()
	flags.StringP("structure", "x", "", "path to the initial structure (xyz) (required)")
	flags.StringP("method", "m", "", "calculation method identifier (required)")
	flags.StringP("params", "p", "", "method parameters as inline JSON")
	flags.Int("max-steps", 100, "step budget")
	flags.Float64("tolerance", 4.5e-4, "gradient convergence tolerance")
	flags.Float64("step-size", 0.1, "steepest-descent step size")
	minimizeCmd.SilenceUsage = true
}
