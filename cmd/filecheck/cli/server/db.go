package server

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	config "github.com/mwantia/filecheck/internal/config/server"
	"github.com/mwantia/filecheck/pkg/db/store"
)

func NewDatabaseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Metadata store maintenance",
		Long: `Inspect and change the schema version of the metadata store.

The agent applies pending migrations on startup; these commands allow
doing so ahead of time and reverting the most recent migration.`,
	}

	cmd.AddCommand(newDatabaseStatusCommand())
	cmd.AddCommand(newDatabaseMigrateCommand())
	cmd.AddCommand(newDatabaseRollbackCommand())

	return cmd
}

// withStore connects to the configured metadata store without migrating it.
func withStore(ctx context.Context, fn func(st *store.SQLiteStore) error) error {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load server configuration: %w", err)
	}

	st, err := store.NewSQLiteStore(store.SQLiteConfig{Path: cfg.Metadata.SQLite.Path})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect metadata store: %w", err)
	}
	return fn(st)
}

func newDatabaseStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(st *store.SQLiteStore) error {
				statuses, err := st.MigrationStatus(cmd.Context())
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tAPPLIED\tDESCRIPTION")
				for _, s := range statuses {
					fmt.Fprintf(w, "%d\t%t\t%s\n", s.Version, s.Applied, s.Description)
				}
				return w.Flush()
			})
		},
	}
}

func newDatabaseMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(st *store.SQLiteStore) error {
				if err := st.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Metadata store is up to date")
				return nil
			})
		},
	}
}

func newDatabaseRollbackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Revert the most recently applied migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(st *store.SQLiteStore) error {
				if err := st.Rollback(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Reverted the most recent migration")
				return nil
			})
		},
	}
}
