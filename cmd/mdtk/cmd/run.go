package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maxbates/molecular-design-toolkit/pkg/calc"
	"github.com/maxbates/molecular-design-toolkit/pkg/jobs"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single calculation and print the result",
	Long: `Submit one calculation described by a JSON spec file, wait for it to
finish and print the resulting properties as JSON.

Example spec file:
  {
    "method": "toyhf",
    "params": {"basis": "sto-3g"},
    "properties": ["energy"],
    "structure": {
      "elements": ["O", "H", "H"],
      "coords": [0.0, 0.0, 0.0, 0.757, 0.586, 0.0, -0.757, 0.586, 0.0]
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		specPath, _ := cmd.Flags().GetString("spec")
		if specPath == "" {
			cmd.SilenceUsage = false
			return cmd.Usage()
		}

		spec, err := loadSpec(specPath)
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

		results, err := jobs.Compute(ctx, o.registry, spec)
		if err != nil {
			return err
		}
		return printResults(cmd, results)
	},
}

func printResults(cmd *cobra.Command, results *calc.ResultSet) error {
	out := make(map[string]any)
	if e, ok := results.Energy(); ok {
		out[string(calc.PropertyEnergy)] = e
	}
	for _, p := range []calc.Property{calc.PropertyGradient, calc.PropertyDipole, calc.PropertyCharges, calc.PropertyOrbitals} {
		if v, ok := results.Vector(p); ok {
			out[string(p)] = v
		}
	}
	if s, ok := results.Structure(); ok {
		out[string(calc.PropertyStructure)] = structureFile{Elements: s.Elements, Coords: s.Coords}
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(b))
	return nil
}

func init() {
	runCmd.Flags().StringP("spec", "s", "", "path to the calculation spec JSON file (required)")
	runCmd.SilenceUsage = true
}
