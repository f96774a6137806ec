package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/conductor/internal/task"
	"github.com/vk/conductor/internal/testutil"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func stateDirArg(t *testing.T) []string {
	t.Helper()
	return []string{"-state-dir", filepath.Join(t.TempDir(), "state")}
}

func TestRunExitsZeroOnSuccess(t *testing.T) {
	cfg := writeConfig(t, `component "ok" {}`)
	reg := task.NewRegistry()
	reg.Register("ok", testutil.NoopTask(testutil.NewRecorder()))

	var out, errOut bytes.Buffer
	args := append([]string{"-config", cfg, "-log-level", "error"}, stateDirArg(t)...)
	code := run(&out, &errOut, args, reg)

	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), `"success": true`)
}

func TestRunExitsOneOnRequiredFailure(t *testing.T) {
	cfg := writeConfig(t, `component "broken" {}`)
	reg := task.NewRegistry()
	reg.Register("broken", testutil.FailTask(testutil.NewRecorder(), "boom"))

	var out, errOut bytes.Buffer
	args := append([]string{"-config", cfg, "-log-level", "error"}, stateDirArg(t)...)
	code := run(&out, &errOut, args, reg)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), `"success": false`)
}

func TestRunExitsTwoOnBadConfig(t *testing.T) {
	cfg := writeConfig(t, `component "a" { depends_on = ["missing"] }`)

	var out, errOut bytes.Buffer
	code := run(&out, &errOut, []string{"-config", cfg}, task.NewRegistry())

	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "unknown component")
}

func TestRunExitsTwoOnBadFlags(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(&out, &errOut, []string{"-log-format", "xml", "-config", "x.hcl"}, task.NewRegistry())
	assert.Equal(t, 2, code)
}

func TestRunWithoutArgsPrintsUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(&out, &errOut, nil, task.NewRegistry())
	assert.Equal(t, 0, code)
	assert.Contains(t, errOut.String(), "Usage:")
}
