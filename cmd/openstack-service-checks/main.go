package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/nholik/openstack-service-checks/internal/config"
	"github.com/nholik/openstack-service-checks/internal/logging"
)

type rootOptions struct {
	logLevel string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "openstack-service-checks",
		Short:         "Keeps NRPE checks in line with an OpenStack cloud's endpoint catalog.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override OSC_LOG_LEVEL")

	cmd.AddCommand(
		newRunCommand(opts),
		newHookCommand(opts),
		newActionCommand(opts),
		newStatusCommand(opts),
	)
	return cmd
}

// load reads the environment configuration and builds the logger.
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

func main() {
	cmd := newRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		logger := logging.New()
		logger.Error().Err(err).Msg("openstack-service-checks failed")
		os.Exit(1)
	}
}
