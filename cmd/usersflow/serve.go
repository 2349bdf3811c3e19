// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/usersflow/usersflow/internal/auth"
	"github.com/usersflow/usersflow/internal/config"
	"github.com/usersflow/usersflow/internal/httpapi"
	"github.com/usersflow/usersflow/internal/observability"
	"github.com/usersflow/usersflow/pkg/errutil"
)

// serveOptions holds the flags that are not configuration keys.
type serveOptions struct {
	migrate bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API that registers accounts, issues and rotates
tokens and redeems recovery tokens. Metrics and health checks are
served on a separate address.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, opts, cmd.OutOrStdout(), nil)
		},
	}

	cmd.Flags().String("http-addr", ":8080", "API listen address")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().String("log-format", "json", "log format (json or text)")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply pending migrations before serving")

	return cmd
}

// runServeWithDeps runs the API until ctx is cancelled, a signal arrives or
// a server fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, opts *serveOptions, out io.Writer, deps *Deps) error {
	deps = deps.withDefaults()

	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	if opts.migrate {
		if err := migrateUp(cfg.Database.URL, deps, logger); err != nil {
			return err
		}
	}

	db, err := deps.DatabaseFactory(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	limiter, closeLimiter, err := deps.LimiterFactory(ctx, cfg.Limiter)
	if err != nil {
		return fmt.Errorf("failed to create login limiter: %w", err)
	}
	defer closeResource(ctx, logger, "limiter", closeLimiter)

	notifier, closeNotifier, err := deps.NotifierFactory(cfg.Notify, logger)
	if err != nil {
		return fmt.Errorf("failed to create recovery notifier: %w", err)
	}
	defer closeResource(ctx, logger, "notifier", closeNotifier)

	coord, err := buildCoordinator(cfg, db, limiter, notifier, logger)
	if err != nil {
		return fmt.Errorf("failed to build coordinator: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
	)
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, db.Ping)
		auth.RegisterMetrics(obsServer.Registry())
		metrics = obsServer.Metrics()

		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	api := httpapi.New(coord, httpapi.Options{Logger: logger, Metrics: metrics})

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		stopObservability(logger, obsServer)
		return fmt.Errorf("failed to listen on %s: %w", cfg.HTTP.Addr, err)
	}

	srv := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	if cfg.Tokens.PurgeInterval > 0 {
		go purgeLoop(ctx, coord, cfg.Tokens.PurgeInterval, logger)
	}

	_, _ = fmt.Fprintf(out, "UsersFlow listening on %s\n", listener.Addr())
	logger.Info("api ready", "addr", listener.Addr().String())

	var serveErr error
	select {
	case serveErr = <-errChan:
		logger.Error("api server error, shutting down", "error", serveErr)
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	if serveErr != nil {
		return fmt.Errorf("api server error: %w", serveErr)
	}
	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors watches a server error channel and cancels ctx if an error occurs.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}

func stopObservability(logger *slog.Logger, obsServer ObservabilityServer) {
	if obsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := obsServer.Stop(ctx); err != nil {
		logger.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

func closeResource(ctx context.Context, logger *slog.Logger, name string, closeFn func() error) {
	if closeFn == nil {
		return
	}
	if err := closeFn(); err != nil {
		errutil.LogError(ctx, logger, "failed to close "+name, err)
	}
}

// expiredPurger removes expired refresh and recovery tokens.
type expiredPurger interface {
	PurgeExpired(ctx context.Context) (refresh, recovery int64, err error)
}

// purgeLoop purges expired tokens every interval until ctx is done.
func purgeLoop(ctx context.Context, p expiredPurger, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh, recovery, err := p.PurgeExpired(ctx)
			if err != nil {
				errutil.LogError(ctx, logger, "purge expired tokens failed", err)
				continue
			}
			if refresh > 0 || recovery > 0 {
				logger.Info("purged expired tokens", "refresh", refresh, "recovery", recovery)
			}
		}
	}
}
