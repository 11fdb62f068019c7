// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7890", cfg.ListenAddr)
	assert.Equal(t, 41234, cfg.DiscoveryPort)
	assert.Equal(t, 2*time.Hour, cfg.StaleAfter)
	assert.Equal(t, 600*time.Second, cfg.MaxSkew)
	assert.Equal(t, 10*time.Second, cfg.FlushInterval)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "licensed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listenAddr: \":9999\"\nenvironment: Development\n"), 0o600))

	t.Setenv("LICD_LISTEN", ":7891")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7891", cfg.ListenAddr, "environment must win over file")
	assert.True(t, cfg.IsDevelopment(), "file value must survive when env is unset")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":7890", cfg.ListenAddr)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "licensed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listenAddr: [oops\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsShortReannounceInterval(t *testing.T) {
	cfg := Defaults()
	cfg.ReannounceInterval = 5 * time.Second
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadPorts(t *testing.T) {
	cfg := Defaults()
	cfg.DiscoveryPort = 0
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.DatabasePort = 70000
	assert.Error(t, cfg.Validate())
}

func TestParseHelpers(t *testing.T) {
	t.Setenv("LICD_TEST_INT", "42")
	t.Setenv("LICD_TEST_BOOL", "yes")
	t.Setenv("LICD_TEST_DUR", "90s")
	t.Setenv("LICD_TEST_BAD_INT", "nope")

	assert.Equal(t, 42, ParseInt("LICD_TEST_INT", 7))
	assert.Equal(t, 7, ParseInt("LICD_TEST_BAD_INT", 7))
	assert.True(t, ParseBool("LICD_TEST_BOOL", false))
	assert.Equal(t, 90*time.Second, ParseDuration("LICD_TEST_DUR", time.Second))
	assert.Equal(t, time.Second, ParseDuration("LICD_TEST_MISSING", time.Second))
}
