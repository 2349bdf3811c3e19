// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usersflow/usersflow/pkg/errutil"
)

func TestConfigDir_EnvVar(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	got, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, "/custom/config/usersflow", got)
}

func TestConfigDir_Default(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/testuser")

	got, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, "/home/testuser/.config/usersflow", got)
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	got, err := ConfigFile()
	require.NoError(t, err)
	assert.Equal(t, "/custom/config/usersflow/config.yaml", got)
}

func TestExistingConfigFile(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())

		got, err := ExistingConfigFile()
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("present", func(t *testing.T) {
		base := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", base)
		dir := filepath.Join(base, appName)
		require.NoError(t, os.MkdirAll(dir, 0o700))
		path := filepath.Join(dir, ConfigFileName)
		require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

		got, err := ExistingConfigFile()
		require.NoError(t, err)
		assert.Equal(t, path, got)
	})

	t.Run("directory", func(t *testing.T) {
		base := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", base)
		require.NoError(t, os.MkdirAll(filepath.Join(base, appName, ConfigFileName), 0o700))

		_, err := ExistingConfigFile()
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "XDG_CONFIG_IS_DIR")
	})
}
