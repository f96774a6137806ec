// Package testutil holds the shared harness for integration-style tests:
// temp-dir pipeline fixtures, stub tasks, and a thread-safe log buffer.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/conductor/internal/app"
	"github.com/vk/conductor/internal/report"
	"github.com/vk/conductor/internal/task"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Summary   string
	Run       *report.Run
	Err       error
	App       *app.App
	StateDir  string
}

// RunPipelineTest writes the given files into a temp directory, points the
// app at them, and executes one full run with the provided task registry.
// File names are relative paths; anything under "state/" seeds the state
// directory, everything else is pipeline configuration.
func RunPipelineTest(t *testing.T, files map[string]string, registry *task.Registry) *HarnessResult {
	t.Helper()
	return RunPipelineTestWithConfig(t, files, registry, nil)
}

// RunPipelineTestWithConfig is RunPipelineTest with a hook to adjust the app
// configuration before startup.
func RunPipelineTestWithConfig(t *testing.T, files map[string]string, registry *task.Registry, mutate func(*app.Config)) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "pipeline")
	stateDir := filepath.Join(tmpDir, "state")
	require.NoError(t, os.Mkdir(configDir, 0o755))
	require.NoError(t, os.Mkdir(stateDir, 0o755))

	for name, content := range files {
		var filePath string
		if rel, ok := trimStatePrefix(name); ok {
			filePath = filepath.Join(stateDir, rel)
		} else {
			filePath = filepath.Join(configDir, name)
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0o644))
	}

	appConfig, err := app.NewConfig(app.Config{
		ConfigPath: configDir,
		StateDir:   stateDir,
		LogLevel:   "debug",
		LogFormat:  "text",
	})
	require.NoError(t, err)
	if mutate != nil {
		mutate(appConfig)
	}

	logBuffer := &SafeBuffer{}
	summaryBuffer := &SafeBuffer{}

	testApp, err := app.NewApp(summaryBuffer, logBuffer, appConfig, registry)
	if err != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       err,
			StateDir:  stateDir,
		}
	}

	run, runErr := testApp.Run(context.Background())

	if os.Getenv("CONDUCTOR_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Summary:   summaryBuffer.String(),
		Run:       run,
		Err:       runErr,
		App:       testApp,
		StateDir:  stateDir,
	}
}

func trimStatePrefix(name string) (string, bool) {
	const prefix = "state/"
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		return name[len(prefix):], true
	}
	return "", false
}
