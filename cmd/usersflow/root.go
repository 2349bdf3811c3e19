// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/usersflow/usersflow/internal/config"
	"github.com/usersflow/usersflow/internal/logging"
	"github.com/usersflow/usersflow/internal/xdg"
)

const serviceName = "usersflow"

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the UsersFlow CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usersflow",
		Short: "UsersFlow - account and token lifecycle service",
		Long: `UsersFlow manages accounts, sessions and password recovery:
registration, login with rotating refresh tokens, short-lived access
assertions and single-use recovery tokens, backed by PostgreSQL.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML, default $XDG_CONFIG_HOME/usersflow/config.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before reading USERSFLOW_* variables")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPurgeCmd())

	return cmd
}

// loadConfig reads the configuration for cmd from every source. Without
// --config the XDG config file is used when present.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file := configFile
	if file == "" {
		found, err := xdg.ExistingConfigFile()
		if err != nil {
			return nil, err
		}
		file = found
	}
	return config.Load(config.LoadOptions{
		File:    file,
		EnvFile: envFile,
		Flags:   cmd.Flags(),
	})
}

// setupLogging installs the default logger described by cfg.
func setupLogging(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.SetDefault(serviceName, version, cfg.Log.Format, level), nil
}
