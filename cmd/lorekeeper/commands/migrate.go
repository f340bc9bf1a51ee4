package commands

import (
	"errors"
	"fmt"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

var migrateStep int

func init() {
	migrateCmd.PersistentFlags().IntVarP(&migrateStep, "step", "s", 0,
		"number of migrations to apply or roll back; 0 means all")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manages the schema of the configured database.",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Applies pending migrations.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd, func(m *migrate.Migrate) error {
			if migrateStep > 0 {
				return m.Steps(migrateStep)
			}
			return m.Up()
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Rolls migrations back.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd, func(m *migrate.Migrate) error {
			if migrateStep > 0 {
				return m.Steps(-migrateStep)
			}
			return m.Down()
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the applied migration version.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd, nil)
	},
}

// runMigration applies fn, when set, and reports the resulting version.
func runMigration(cmd *cobra.Command, fn func(m *migrate.Migrate) error) error {
	store, err := connectStorage(cmd.Context())
	if err != nil {
		return err
	}
	m, err := store.Migrate()
	if err != nil {
		_ = store.Close()
		return err
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			global.Logger.Warn().AnErr("source", srcErr).AnErr("database", dbErr).Msg("failed to close migration")
		}
	}()

	if fn != nil {
		if err := fn(m); err != nil {
			if !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migration failed: %w", err)
			}
			global.Logger.Debug().Msg("no migrations to apply")
		} else {
			global.Logger.Info().Str("driver", store.Driver()).Msg("migrations applied")
		}
	}

	ver, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Fprintln(cmd.OutOrStdout(), "no migration applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	global.Logger.Debug().Uint("version", ver).Bool("is_dirty", dirty).Msg("migration version loaded")
	fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", ver, dirty)
	return nil
}
