package cmd

import (
	"fmt"
	"log/slog"

	"github.com/maxbates/molecular-design-toolkit/internal/bus"
	"github.com/maxbates/molecular-design-toolkit/internal/config"
	"github.com/maxbates/molecular-design-toolkit/internal/logger"
	"github.com/maxbates/molecular-design-toolkit/internal/store/postgres"
	"github.com/maxbates/molecular-design-toolkit/pkg/containerrt"
	"github.com/maxbates/molecular-design-toolkit/pkg/engine"
	"github.com/maxbates/molecular-design-toolkit/pkg/jobs"
)

// orchestrator bundles everything a command needs to run calculations.
type orchestrator struct {
	cfg      *config.Config
	log      *slog.Logger
	registry *jobs.Registry
	cleanup  []func()
}

// newOrchestrator builds the full pipeline from configuration: adapters,
// container runtime, optional store/bus hooks and the job registry.
func newOrchestrator() (*orchestrator, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogLevel)

	adapters := engine.NewRegistry()
	for _, a := range []engine.Adapter{
		engine.NewToyHF(cfg.ToyHFImage),
		engine.NewXTB(cfg.XTBImage),
		engine.NewPySCF(cfg.PySCFImage),
	} {
		if err := adapters.Register(a); err != nil {
			return nil, fmt.Errorf("register adapter: %w", err)
		}
	}

	var rt containerrt.Runtime
	switch cfg.Runtime {
	case "local":
		rt = containerrt.NewLocalRuntime()
		log.Info("using local process runtime; no isolation")
	default:
		rt, err = containerrt.NewDockerRuntime(cfg.DockerHost)
		if err != nil {
			return nil, err
		}
	}

	o := &orchestrator{cfg: cfg, log: log}

	var opts []jobs.Option
	if cfg.DatabaseURL != "" {
		st, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open job record store: %w", err)
		}
		o.cleanup = append(o.cleanup, func() { _ = st.Close() })
		opts = append(opts, jobs.WithRecordSink(st))
		log.Info("durable job records enabled")
	}
	if cfg.NATSURL != "" {
		nc, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("connect event bus: %w", err)
		}
		o.cleanup = append(o.cleanup, nc.Close)
		opts = append(opts, jobs.WithNotifier(nc))
		log.Info("job event publishing enabled")
	}

	o.registry = jobs.NewRegistry(adapters, rt, jobs.Config{
		MaxConcurrent:    cfg.MaxConcurrent,
		MaxAttempts:      cfg.MaxAttempts,
		RetryBackoff:     cfg.RetryBackoff,
		MaxRetryBackoff:  cfg.MaxRetryBackoff,
		DefaultTimeout:   cfg.JobTimeout,
		Retention:        cfg.Retention,
		CPUs:             cfg.CPUs,
		MemoryBytes:      cfg.MemoryBytes,
		SubmitsPerSecond: cfg.SubmitsPerSecond,
	}, log, opts...)

	return o, nil
}

// close drains the registry and releases optional collaborators.
func (o *orchestrator) close() {
	o.registry.Close()
	for i := len(o.cleanup) - 1; i >= 0; i-- {
		o.cleanup[i]()
	}
}
