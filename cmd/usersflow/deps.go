// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/usersflow/usersflow/internal/auth"
	authpostgres "github.com/usersflow/usersflow/internal/auth/postgres"
	authredis "github.com/usersflow/usersflow/internal/auth/redis"
	"github.com/usersflow/usersflow/internal/config"
	"github.com/usersflow/usersflow/internal/notify"
	"github.com/usersflow/usersflow/internal/observability"
	"github.com/usersflow/usersflow/internal/store"
)

// Database is the connection pool used by the repositories.
type Database interface {
	authpostgres.DB
	Ping(ctx context.Context) error
	Close()
}

// SchemaMigrator wraps the methods used from store.Migrator.
type SchemaMigrator interface {
	Up() error
	Down() error
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Registry() prometheus.Registerer
	Metrics() *observability.Metrics
}

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// DatabaseFactory opens the connection pool.
	// Default: store.Connect
	DatabaseFactory func(ctx context.Context, url string) (Database, error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (SchemaMigrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker) ObservabilityServer

	// LimiterFactory creates the login limiter and a function releasing it.
	// Default: newLimiter
	LimiterFactory func(ctx context.Context, cfg config.LimiterConfig) (auth.LoginLimiter, func() error, error)

	// NotifierFactory creates the recovery notifier and a function releasing it.
	// Default: newNotifier
	NotifierFactory func(cfg config.NotifyConfig, logger *slog.Logger) (auth.RecoveryNotifier, func() error, error)

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.DatabaseFactory == nil {
		out.DatabaseFactory = func(ctx context.Context, url string) (Database, error) {
			return store.Connect(ctx, url)
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string) (SchemaMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if out.LimiterFactory == nil {
		out.LimiterFactory = newLimiter
	}
	if out.NotifierFactory == nil {
		out.NotifierFactory = newNotifier
	}
	if out.ListenerFactory == nil {
		out.ListenerFactory = net.Listen
	}
	return &out
}

func noopClose() error { return nil }

// newLimiter returns the Redis failure counter, or auth.NopLimiter when the
// limiter is disabled.
func newLimiter(ctx context.Context, cfg config.LimiterConfig) (auth.LoginLimiter, func() error, error) {
	if !cfg.Enabled {
		return auth.NopLimiter{}, noopClose, nil
	}
	client, err := authredis.NewClient(ctx, authredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	return authredis.NewFailureCounter(client), client.Close, nil
}

// newNotifier returns the RabbitMQ publisher, or the log sink when no broker
// is configured.
func newNotifier(cfg config.NotifyConfig, logger *slog.Logger) (auth.RecoveryNotifier, func() error, error) {
	if cfg.AMQPURL == "" {
		return notify.NewLogNotifier(logger), noopClose, nil
	}
	publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.Queue)
	if err != nil {
		return nil, nil, err
	}
	return publisher, publisher.Close, nil
}
