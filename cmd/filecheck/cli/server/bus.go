package server

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwantia/filecheck/internal/agent"
	config "github.com/mwantia/filecheck/internal/config/server"
)

func NewBusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bus",
		Short: "Event bus inspection",
	}

	cmd.AddCommand(newBusPendingCommand())

	return cmd
}

func newBusPendingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Show uploaded events the analysis group has not acknowledged",
		Long: `Show uploaded events the analysis group has not acknowledged.

Only the redis bus is shared between processes; the memory bus has
nothing pending outside a running agent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig()
			if err != nil {
				return fmt.Errorf("failed to load server configuration: %w", err)
			}

			a := agent.NewAgent(cfg)
			defer a.Cleanup(context.Background())
			if err := a.Setup(cmd.Context()); err != nil {
				return err
			}

			pending, err := a.Pending(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d pending on '%s' for group '%s' (%s bus)\n",
				pending, cfg.Bus.Topics.Uploaded, cfg.Bus.Group, cfg.Bus.Type)
			return nil
		},
	}
}
