package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mdtk",
	Short: "mdtk orchestrates containerized molecular computations",
	Long: `mdtk is the computation job orchestrator of the molecular design toolkit.

It packages a structure plus a calculation method for one of several
interchangeable simulation engines, runs that engine in an isolated
container, supervises the job to completion and parses the engine's
output into a uniform result schema.

Common workflows:

  Run a single-point calculation:
    mdtk run --spec water-hf.json

  Optimize a geometry:
    mdtk minimize --structure water.xyz --method xtb --max-steps 200

  Serve the status API and metrics:
    mdtk serve --addr :6161

  Inspect a job on a running orchestrator:
    mdtk status <job-id>

Configuration:
  Settings come from MDTK_* environment variables or a config file:
    MDTK_RUNTIME          docker or local (default: docker)
    MDTK_MAX_CONCURRENT   concurrently running jobs (default: 4)
    MDTK_JOB_TIMEOUT      per-attempt wall-clock budget (default: 30m)`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "status API endpoint for client commands")
	_ = viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
	viper.SetEnvPrefix("MDTK")
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(minimizeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}
