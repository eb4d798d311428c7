package server

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwantia/filecheck/internal/agent"
	config "github.com/mwantia/filecheck/internal/config/server"
)

func NewAgentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Start the FileCheck analysis agent",
		Long: `Start the FileCheck analysis agent.

The agent consumes uploaded-file events, computes text statistics and
records content digests to flag duplicates. It runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig()
			if err != nil {
				return fmt.Errorf("failed to load server configuration: %w", err)
			}

			if err := agent.NewAgent(cfg).Serve(context.Background()); err != nil {
				return fmt.Errorf("agent stopped: %w", err)
			}

			return nil
		},
	}

	return cmd
}
