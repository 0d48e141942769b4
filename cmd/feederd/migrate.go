package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/feeder-core/internal/infrastructure/database"
	"github.com/nerrad567/feeder-core/migrations"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := openRawDatabase(cmd, *configPath)
				if err != nil {
					return err
				}
				defer db.Close()

				if err := db.Migrate(cmd.Context(), migrations.FS); err != nil {
					return fmt.Errorf("running migrations: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := openRawDatabase(cmd, *configPath)
				if err != nil {
					return err
				}
				defer db.Close()

				if err := db.MigrateDown(cmd.Context(), migrations.FS); err != nil {
					return fmt.Errorf("rolling back: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := openRawDatabase(cmd, *configPath)
				if err != nil {
					return err
				}
				defer db.Close()

				applied, pending, err := db.MigrationStatus(cmd.Context(), migrations.FS)
				if err != nil {
					return fmt.Errorf("reading migration status: %w", err)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tSTATE\tDETAIL")
				for _, r := range applied {
					fmt.Fprintf(w, "%s\tapplied\t%s\n", r.Version, database.FormatTime(r.AppliedAt))
				}
				for _, m := range pending {
					fmt.Fprintf(w, "%s\tpending\t%s\n", m.Version, m.Name)
				}
				return w.Flush()
			},
		},
	)
	return cmd
}

// openRawDatabase opens the configured database without migrating it.
func openRawDatabase(cmd *cobra.Command, configPath string) (*database.DB, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}
