package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePopulatesConfig(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{
		"-config", "pipeline.hcl",
		"-state-dir", "/var/lib/conductor",
		"-status-port", "8080",
		"-workers", "5",
		"-log-level", "debug",
		"-log-format", "text",
		"-force-run-all",
		"-skip-frequency-check",
		"-skip-dependency-check",
		"-skip-change-detection",
		"-dry-run",
	}, &out)

	require.NoError(t, err)
	require.False(t, exit)
	require.NotNil(t, cfg)

	assert.Equal(t, "pipeline.hcl", cfg.ConfigPath)
	assert.Equal(t, "/var/lib/conductor", cfg.StateDir)
	assert.Equal(t, 8080, cfg.StatusPort)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.True(t, cfg.ForceRunAll)
	assert.True(t, cfg.SkipFrequencyCheck)
	assert.True(t, cfg.SkipDependencyCheck)
	assert.True(t, cfg.SkipChangeDetection)
	assert.True(t, cfg.DryRun)
}

func TestParseDefaults(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"-config", "p.hcl"}, &out)

	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, "state", cfg.StateDir)
	assert.Equal(t, 0, cfg.StatusPort)
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.ForceRunAll)
	assert.False(t, cfg.DryRun)
}

func TestParseAcceptsPositionalPath(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"pipeline.hcl"}, &out)
	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, "pipeline.hcl", cfg.ConfigPath)
}

func TestParseShorthandFlag(t *testing.T) {
	var out bytes.Buffer
	cfg, _, err := Parse([]string{"-c", "short.hcl"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "short.hcl", cfg.ConfigPath)
}

func TestParseNoPathPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse(nil, &out)

	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseRejectsInvalidLogFormat(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Parse([]string{"-config", "p.hcl", "-log-format", "xml"}, &out)

	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestParseRejectsInvalidLogLevel(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Parse([]string{"-config", "p.hcl", "-log-level", "loud"}, &out)

	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestParseRejectsUnknownFlag(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Parse([]string{"-config", "p.hcl", "-frobnicate"}, &out)

	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestParseHelpExitsCleanly(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"-h"}, &out)

	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
}
