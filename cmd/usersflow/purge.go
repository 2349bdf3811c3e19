// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/usersflow/usersflow/internal/config"
)

// NewPurgeCmd creates the purge subcommand.
func NewPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired refresh and recovery tokens",
		Long: `Delete expired refresh and recovery tokens once and exit. serve
does the same periodically when tokens.purge_interval is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runPurgeWithDeps(cmd.Context(), cfg, cmd.OutOrStdout(), nil)
		},
	}

	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")

	return cmd
}

// runPurgeWithDeps deletes expired tokens. If deps is nil, default
// implementations are used.
func runPurgeWithDeps(ctx context.Context, cfg *config.Config, out io.Writer, deps *Deps) error {
	deps = deps.withDefaults()

	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := deps.DatabaseFactory(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	refresh, recovery, _, err := tokenStores(cfg, db)
	if err != nil {
		return err
	}

	refreshN, err := refresh.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	recoveryN, err := recovery.PurgeExpired(ctx)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "Purged %d refresh tokens and %d recovery tokens\n", refreshN, recoveryN)
	return nil
}
