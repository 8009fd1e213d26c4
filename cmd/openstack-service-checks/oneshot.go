package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nholik/openstack-service-checks/internal/agent"
	"github.com/nholik/openstack-service-checks/internal/logging"
	"github.com/nholik/openstack-service-checks/internal/reconcile"
	"github.com/nholik/openstack-service-checks/internal/runner"
)

func newHookCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "hook EVENT",
		Short:     "Run a single pass for a lifecycle event (" + strings.Join(reconcile.EventNames(), ", ") + ").",
		Args:      cobra.ExactArgs(1),
		ValidArgs: reconcile.EventNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := reconcile.ParseEvent(args[0])
			if err != nil {
				return err
			}
			return runPass(cmd.Context(), cmd.OutOrStdout(), root, reconcile.Trigger{Event: event})
		},
	}
}

func newActionCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "action",
		Short: "Operator actions.",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh-endpoint-checks",
		Short: "Re-read the endpoint catalog and rewrite endpoint checks.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPass(cmd.Context(), cmd.OutOrStdout(), root, reconcile.Trigger{Event: reconcile.EventRefreshEndpoints})
		},
	})
	return cmd
}

// runPass executes one pass and prints the resulting workload status.
func runPass(ctx context.Context, out io.Writer, root *rootOptions, trigger reconcile.Trigger) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	logger := logging.NewWithLevel(cfg.LogLevel).With().Str("event", trigger.Event.String()).Logger()

	components, err := agent.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	source := runner.FileSource{OptionsPath: cfg.OptionsFile, RelationsPath: cfg.RelationsFile}
	in, err := source.Load(ctx)
	if err != nil {
		return err
	}
	result, err := components.Agent.Pass(ctx, in, trigger)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result.Status, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(encoded))
	return err
}
