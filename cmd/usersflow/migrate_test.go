// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usersflow/usersflow/internal/store"
	"github.com/usersflow/usersflow/pkg/errutil"
)

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		want    int
		wantErr bool
	}{
		{name: "zero", arg: "0", want: 0},
		{name: "positive", arg: "3", want: 3},
		{name: "negative", arg: "-1", wantErr: true},
		{name: "not a number", arg: "abc", wantErr: true},
		{name: "empty", arg: "", wantErr: true},
		{name: "float", arg: "1.5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseForceVersion(tt.arg)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "INVALID_VERSION")
				errutil.AssertErrorContext(t, err, "version", tt.arg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMigrateCommand_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"migrate", "--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"up", "down", "status", "force", "--database-url", "--config"} {
		assert.Contains(t, output, sub)
	}
}

func TestMigrateCommand_NoDatabaseURL(t *testing.T) {
	configFile = ""
	envFile = ""
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("USERSFLOW_DATABASE__URL", "")

	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"migrate", "up"})

	err := cmd.Execute()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, err, "key", "database.url")
}

func TestMigrateDown_RequiresConfirmation(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"migrate", "down", "--database-url", "postgres://localhost/usersflow"})

	err := cmd.Execute()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIRMATION_REQUIRED")
}

func TestMigrateForce_RejectsBadVersion(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"migrate", "force", "latest", "--database-url", "postgres://localhost/usersflow"})

	err := cmd.Execute()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
}

func TestRunMigrateUp(t *testing.T) {
	m := &mockMigrator{}
	m.On("Up").Return(nil).Once()
	m.On("Close").Return(nil).Once()
	out := new(bytes.Buffer)

	require.NoError(t, runMigrateUp(testConfig(t), out, &Deps{MigratorFactory: migratorFactory(m)}))

	m.AssertExpectations(t)
	assert.Contains(t, out.String(), "Migrations applied")
}

func TestRunMigrateUp_Error(t *testing.T) {
	m := &mockMigrator{}
	m.On("Up").Return(errors.New("syntax error")).Once()
	m.On("Close").Return(nil).Once()

	err := runMigrateUp(testConfig(t), new(bytes.Buffer), &Deps{MigratorFactory: migratorFactory(m)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply migrations")
	m.AssertExpectations(t)
}

func TestRunMigrateDown(t *testing.T) {
	m := &mockMigrator{}
	m.On("Down").Return(nil).Once()
	m.On("Close").Return(nil).Once()
	out := new(bytes.Buffer)

	require.NoError(t, runMigrateDown(testConfig(t), out, &Deps{MigratorFactory: migratorFactory(m)}))

	m.AssertExpectations(t)
	assert.Contains(t, out.String(), "Migrations rolled back")
}

func TestRunMigrateForce(t *testing.T) {
	m := &mockMigrator{}
	m.On("Force", 2).Return(nil).Once()
	m.On("Close").Return(nil).Once()
	out := new(bytes.Buffer)

	require.NoError(t, runMigrateForce(testConfig(t), 2, out, &Deps{MigratorFactory: migratorFactory(m)}))

	m.AssertExpectations(t)
	assert.Contains(t, out.String(), "Schema version set to 2")
}

func TestRunMigrateStatus(t *testing.T) {
	tests := []struct {
		name   string
		status *store.Status
		want   []string
	}{
		{
			name:   "fresh database",
			status: &store.Status{Pending: []uint{1, 2}},
			want:   []string{"Version: none", "Dirty:   false", "Pending: [1 2]"},
		},
		{
			name:   "up to date",
			status: &store.Status{Version: 3, Name: "create_recovery_tokens"},
			want:   []string{"Version: 3 (create_recovery_tokens)", "Pending: none"},
		},
		{
			name:   "dirty",
			status: &store.Status{Version: 1, Name: "create_accounts", Dirty: true, Pending: []uint{2, 3}},
			want:   []string{"Version: 1 (create_accounts)", "Dirty:   true", "Pending: [2 3]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := new(bytes.Buffer)
			m := &mockMigrator{}
			m.On("Status").Return(tt.status, nil).Once()
			m.On("Close").Return(nil).Once()

			require.NoError(t, runMigrateStatus(testConfig(t), out, &Deps{MigratorFactory: migratorFactory(m)}))
			for _, want := range tt.want {
				assert.Contains(t, out.String(), want)
			}
			m.AssertExpectations(t)
		})
	}
}

func TestRunMigrateStatus_Error(t *testing.T) {
	m := &mockMigrator{}
	m.On("Status").Return(nil, errors.New("no schema_migrations table")).Once()
	m.On("Close").Return(nil).Once()

	err := runMigrateStatus(testConfig(t), new(bytes.Buffer), &Deps{MigratorFactory: migratorFactory(m)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read migration status")
}

func TestWithMigrator_FactoryError(t *testing.T) {
	err := runMigrateStatus(testConfig(t), new(bytes.Buffer), &Deps{
		MigratorFactory: func(string) (SchemaMigrator, error) {
			return nil, errors.New("bad url")
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create migrator")
}

func TestWithMigrator_CloseError(t *testing.T) {
	m := &mockMigrator{}
	m.On("Up").Return(nil).Once()
	m.On("Close").Return(errors.New("connection reset")).Once()

	err := runMigrateUp(testConfig(t), new(bytes.Buffer), &Deps{MigratorFactory: migratorFactory(m)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to close migrator")
}
