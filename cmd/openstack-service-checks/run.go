package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/nholik/openstack-service-checks/internal/agent"
	"github.com/nholik/openstack-service-checks/internal/logging"
	"github.com/nholik/openstack-service-checks/internal/reconcile"
	"github.com/nholik/openstack-service-checks/internal/runner"
	"github.com/nholik/openstack-service-checks/internal/server"
)

func newRunCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Reconcile on every poll interval until stopped. SIGHUP refreshes endpoint checks.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd.Context(), root)
		},
	}
}

func runAgent(parent context.Context, root *rootOptions) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	logger := logging.NewWithLevel(cfg.LogLevel)
	logger.Info().
		Dur("poll_interval", cfg.PollInterval).
		Str("state_backend", cfg.StateBackend).
		Bool("dry_run", cfg.DryRun).
		Msg("openstack-service-checks starting")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := agent.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Error().Err(err).Msg("close failed")
		}
	}()

	server.Start(ctx, logger, server.Options{
		PollInterval: cfg.PollInterval,
		Tracker:      components.Tracker,
		Metrics:      components.Metrics,
		Status:       components.Agent.StatusHandler(),
		HealthPort:   cfg.HealthPort,
		MetricsPort:  cfg.MetricsPort,
	})

	r := runner.New(logger, cfg.PollInterval,
		runner.WithSource(runner.FileSource{OptionsPath: cfg.OptionsFile, RelationsPath: cfg.RelationsFile}),
		runner.WithHandler(components.Agent),
	)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info().Msg("SIGHUP received, refreshing endpoint checks")
				r.Enqueue(reconcile.Trigger{Event: reconcile.EventRefreshEndpoints})
			}
		}
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn().Err(err).Msg("systemd readiness notification failed")
	} else if sent {
		logger.Debug().Msg("systemd notified")
	}

	return r.Run(ctx)
}
