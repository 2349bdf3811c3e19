// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/usersflow/usersflow/internal/config"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, roll back or inspect the embedded schema migrations.`,
	}

	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateDownCmd())
	cmd.AddCommand(newMigrateStatusCmd())
	cmd.AddCommand(newMigrateForceCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadMigrateConfig(cmd)
			if err != nil {
				return err
			}
			return runMigrateUp(cfg, cmd.OutOrStdout(), nil)
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Long:  `Roll back every migration. This drops all accounts and tokens.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return oops.Code("CONFIRMATION_REQUIRED").
					Errorf("migrate down drops all data; pass --yes to confirm")
			}
			cfg, err := loadMigrateConfig(cmd)
			if err != nil {
				return err
			}
			return runMigrateDown(cfg, cmd.OutOrStdout(), nil)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping all data")
	return cmd
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadMigrateConfig(cmd)
			if err != nil {
				return err
			}
			return runMigrateStatus(cfg, cmd.OutOrStdout(), nil)
		},
	}
}

func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Set the schema version and clear the dirty flag without running
any migration. Use it to recover from a failed migration after fixing
the schema by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadMigrateConfig(cmd)
			if err != nil {
				return err
			}
			return runMigrateForce(cfg, version, cmd.OutOrStdout(), nil)
		},
	}
}

func loadMigrateConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseForceVersion parses the argument of migrate force.
func parseForceVersion(arg string) (int, error) {
	version, err := strconv.Atoi(arg)
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").
			With("version", arg).
			Errorf("version must be a non-negative integer")
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").
			With("version", arg).
			Errorf("version must be a non-negative integer")
	}
	return version, nil
}

// withMigrator opens a migrator, runs fn and closes it.
func withMigrator(cfg *config.Config, deps *Deps, fn func(SchemaMigrator) error) (err error) {
	deps = deps.withDefaults()

	migrator, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close migrator: %w", closeErr)
		}
	}()

	return fn(migrator)
}

// migrateUp applies pending migrations before serving.
func migrateUp(databaseURL string, deps *Deps, logger *slog.Logger) error {
	cfg := &config.Config{Database: config.DatabaseConfig{URL: databaseURL}}
	return withMigrator(cfg, deps, func(m SchemaMigrator) error {
		logger.Info("applying database migrations")
		if err := m.Up(); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		return nil
	})
}

func runMigrateUp(cfg *config.Config, out io.Writer, deps *Deps) error {
	return withMigrator(cfg, deps, func(m SchemaMigrator) error {
		if err := m.Up(); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		_, _ = fmt.Fprintln(out, "Migrations applied")
		return nil
	})
}

func runMigrateDown(cfg *config.Config, out io.Writer, deps *Deps) error {
	return withMigrator(cfg, deps, func(m SchemaMigrator) error {
		if err := m.Down(); err != nil {
			return fmt.Errorf("failed to roll back migrations: %w", err)
		}
		_, _ = fmt.Fprintln(out, "Migrations rolled back")
		return nil
	})
}

func runMigrateStatus(cfg *config.Config, out io.Writer, deps *Deps) error {
	return withMigrator(cfg, deps, func(m SchemaMigrator) error {
		status, err := m.Status()
		if err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}

		if status.Version == 0 {
			_, _ = fmt.Fprintln(out, "Version: none")
		} else {
			_, _ = fmt.Fprintf(out, "Version: %d (%s)\n", status.Version, status.Name)
		}
		_, _ = fmt.Fprintf(out, "Dirty:   %t\n", status.Dirty)
		if len(status.Pending) == 0 {
			_, _ = fmt.Fprintln(out, "Pending: none")
		} else {
			_, _ = fmt.Fprintf(out, "Pending: %v\n", status.Pending)
		}
		return nil
	})
}

func runMigrateForce(cfg *config.Config, version int, out io.Writer, deps *Deps) error {
	return withMigrator(cfg, deps, func(m SchemaMigrator) error {
		if err := m.Force(version); err != nil {
			return fmt.Errorf("failed to force version %d: %w", version, err)
		}
		_, _ = fmt.Fprintf(out, "Schema version set to %d\n", version)
		return nil
	})
}
