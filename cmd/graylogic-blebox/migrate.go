package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-blebox/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-blebox/migrations"
)

func newMigrateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the device database schema",
	}

	withDB := func(run func(cmd *cobra.Command, db *database.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close() //nolint:errcheck // CLI exit
			return run(cmd, db)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, db *database.DB) error {
				return db.Migrate(cmd.Context(), migrations.FS)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, db *database.DB) error {
				return db.MigrateDown(cmd.Context(), migrations.FS)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, db *database.DB) error {
				applied, pending, err := db.MigrationStatus(cmd.Context(), migrations.FS)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tSTATE")
				for _, m := range applied {
					fmt.Fprintf(tw, "%s\tapplied\n", m.Version)
				}
				for _, m := range pending {
					fmt.Fprintf(tw, "%s\tpending\n", m.Version)
				}
				return tw.Flush()
			}),
		},
	)
	return cmd
}
