// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package main

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/usersflow/usersflow/internal/config"
	"github.com/usersflow/usersflow/internal/observability"
	"github.com/usersflow/usersflow/internal/store"
)

// testConfig returns a configuration that passes ValidateServe and hashes
// quickly.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(config.LoadOptions{})
	require.NoError(t, err)

	cfg.Database.URL = "postgres://usersflow@localhost:5432/usersflow"
	cfg.JWT.Secret = strings.Repeat("k", 32)
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Metrics.Addr = ""
	cfg.Log.Format = "text"
	cfg.Log.Level = "error"
	cfg.Tokens.PurgeInterval = 0
	cfg.Hasher.MemoryKiB = 1024
	cfg.Hasher.Iterations = 1
	cfg.Hasher.Parallelism = 1
	return cfg
}

// mockDatabase returns a pgxmock pool standing in for PostgreSQL.
func mockDatabase(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return mock
}

func databaseFactory(db Database) func(context.Context, string) (Database, error) {
	return func(context.Context, string) (Database, error) {
		return db, nil
	}
}

type mockMigrator struct {
	mock.Mock
}

func (m *mockMigrator) Up() error {
	return m.Called().Error(0)
}

func (m *mockMigrator) Down() error {
	return m.Called().Error(0)
}

func (m *mockMigrator) Force(version int) error {
	return m.Called(version).Error(0)
}

func (m *mockMigrator) Status() (*store.Status, error) {
	args := m.Called()
	status, _ := args.Get(0).(*store.Status)
	return status, args.Error(1)
}

func (m *mockMigrator) Close() error {
	return m.Called().Error(0)
}

func migratorFactory(m *mockMigrator) func(string) (SchemaMigrator, error) {
	return func(string) (SchemaMigrator, error) {
		return m, nil
	}
}

type mockObservabilityServer struct {
	mu       sync.Mutex
	registry *prometheus.Registry
	metrics  *observability.Metrics
	startErr error
	errCh    chan error

	started bool
	stopped bool
}

func newMockObservabilityServer() *mockObservabilityServer {
	reg := prometheus.NewRegistry()
	return &mockObservabilityServer{
		registry: reg,
		metrics:  observability.NewMetrics(reg),
		errCh:    make(chan error, 1),
	}
}

func (m *mockObservabilityServer) Start() (<-chan error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.started = true
	return m.errCh, nil
}

func (m *mockObservabilityServer) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func (m *mockObservabilityServer) Addr() string { return "127.0.0.1:9100" }

func (m *mockObservabilityServer) Registry() prometheus.Registerer { return m.registry }

func (m *mockObservabilityServer) Metrics() *observability.Metrics { return m.metrics }

func (m *mockObservabilityServer) state() (started, stopped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started, m.stopped
}
