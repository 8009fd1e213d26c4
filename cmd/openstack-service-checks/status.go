package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nholik/openstack-service-checks/internal/agent"
	"github.com/nholik/openstack-service-checks/internal/logging"
	"github.com/nholik/openstack-service-checks/internal/state"
	"github.com/nholik/openstack-service-checks/internal/status"
)

type statusReport struct {
	Status     status.WorkloadStatus `json:"status"`
	Flags      state.Flags           `json:"flags"`
	Registered []string              `json:"registered"`
	Credential string                `json:"credential_source,omitempty"`
}

func newStatusCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the persisted workload status without reconciling.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger := logging.NewWithLevel(cfg.LogLevel)

			store, closeStore, err := agent.OpenStore(cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			st, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			report := statusReport{
				Status:     st.Status,
				Flags:      st.Flags,
				Registered: st.Registered.Names(),
			}
			if st.Credentials != nil {
				report.Credential = st.Credentials.Source
			}

			encoded, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return err
		},
	}
}
