package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maxbates/molecular-design-toolkit/internal/observability"
	"github.com/maxbates/molecular-design-toolkit/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator with its status API",
	Long: `Start the orchestrator and serve the read-only status API
(/healthz, /jobs, /jobs/{id}, /jobs/{id}/cancel) plus Prometheus metrics
on /metrics. Jobs are submitted in-process by embedding callers; this
surface exists for operators and monitors.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		o, err := newOrchestrator()
		if err != nil {
			return err
		}
		defer o.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if o.cfg.OTLPEndpoint != "" {
			shutdownTracer, err := observability.InitTracing(ctx, "mdtk", o.cfg.OTLPEndpoint)
			if err != nil {
				return err
			}
			defer func() { _ = shutdownTracer(context.Background()) }()
		}

		metricsHandler, shutdownMetrics, err := observability.InitMetrics()
		if err != nil {
			return err
		}
		defer func() { _ = shutdownMetrics(context.Background()) }()

		if addr == "" {
			addr = o.cfg.HTTPAddr
		}
		srv := server.New(addr, server.NewHandlers(o.registry, o.log), metricsHandler)
		o.log.Info("status API listening", "addr", addr)
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config)")
	serveCmd.SilenceUsage = true
}
