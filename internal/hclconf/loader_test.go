package hclconf

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/conductor/internal/config"
)

func writePipeline(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

const fullPipeline = `
runtime {
  max_concurrent_components = 5
  execution_timeout_minutes = 90
  drain_grace_seconds       = 45
}

endpoint "transit_api" {
  daily_limit         = 25000
  retry_after_minutes = 30
  reset_hour          = 0
}

endpoint "billing_api" {
  daily_limit = 100
  priority    = true
}

component "disruptions" {
  frequency           = "hourly"
  max_runtime_minutes = 15
  endpoints           = ["transit_api"]

  source {
    url = "${env.TRANSIT_BASE_URL}/v3/disruptions"
  }

  change_detection {
    methods               = ["http_validator", "record_count"]
    validator_ttl_minutes = 30
    count_threshold_pct   = 10
  }
}

component "stops" {
  frequency  = "weekly"
  depends_on = ["disruptions"]
  optional   = true
}

component "archive" {
  enabled = false
}

parallel_group {
  members = ["disruptions", "archive"]
}

monitoring {
  enabled = true

  thresholds {
    max_execution_time_minutes  = 45
    min_success_rate_percentage = 90
  }

  alerting {
    enabled             = true
    email_notifications = ["ops@example.com"]
    webhook_url         = "https://hooks.example.com/T123"
  }
}

overrides {
  skip_change_detection = true
}
`

func TestLoadFullPipeline(t *testing.T) {
	t.Setenv("TRANSIT_BASE_URL", "https://timetableapi.example.com")
	dir := writePipeline(t, map[string]string{"pipeline.hcl": fullPipeline})

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 5, model.Runtime.MaxConcurrentComponents)
	assert.Equal(t, 90*time.Minute, model.Runtime.ExecutionTimeout)
	assert.Equal(t, 45*time.Second, model.Runtime.DrainGrace)

	require.Len(t, model.Components, 3)
	disruptions := model.Component("disruptions")
	require.NotNil(t, disruptions)
	assert.True(t, disruptions.Enabled)
	assert.Equal(t, config.FreqHourly, disruptions.Frequency)
	assert.Equal(t, 15*time.Minute, disruptions.MaxRuntime)
	assert.Equal(t, "https://timetableapi.example.com/v3/disruptions", disruptions.Source.URL)
	require.NotNil(t, disruptions.ChangeDetection)
	assert.Equal(t,
		[]config.Method{config.MethodHTTPValidator, config.MethodRecordCount},
		disruptions.ChangeDetection.Methods)
	assert.Equal(t, 30*time.Minute, disruptions.ChangeDetection.ValidatorTTL)
	assert.InDelta(t, 10, disruptions.ChangeDetection.CountThresholdPct, 0.001)

	stops := model.Component("stops")
	require.NotNil(t, stops)
	assert.True(t, stops.Optional)
	assert.Equal(t, config.FreqWeekly, stops.Frequency)
	assert.Equal(t, []string{"disruptions"}, stops.DependsOn)
	// Defaults applied where the file is silent.
	assert.Equal(t, 30*time.Minute, stops.MaxRuntime)

	archive := model.Component("archive")
	require.NotNil(t, archive)
	assert.False(t, archive.Enabled)
	assert.Equal(t, config.FreqDaily, archive.Frequency)

	require.Len(t, model.Endpoints, 2)
	transit := model.Endpoints["transit_api"]
	require.NotNil(t, transit)
	assert.Equal(t, 25000, transit.DailyLimit)
	assert.Equal(t, 30*time.Minute, transit.RetryAfter)
	assert.True(t, model.Endpoints["billing_api"].Priority)

	require.Len(t, model.ParallelGroups, 1)
	assert.Equal(t, []string{"disruptions", "archive"}, model.ParallelGroups[0])

	assert.True(t, model.Monitoring.Enabled)
	assert.Equal(t, 45*time.Minute, model.Monitoring.Thresholds.MaxExecutionTime)
	assert.InDelta(t, 90, model.Monitoring.Thresholds.MinSuccessRatePct, 0.001)
	// Unset thresholds keep their defaults.
	assert.InDelta(t, 1024, model.Monitoring.Thresholds.MaxMemoryMB, 0.001)
	assert.True(t, model.Monitoring.Alerting.Enabled)
	assert.Equal(t, []string{"ops@example.com"}, model.Monitoring.Alerting.Emails)

	assert.True(t, model.Overrides.SkipChangeDetection)
	assert.False(t, model.Overrides.ForceRunAll)
}

func TestLoadAppliesRuntimeDefaults(t *testing.T) {
	dir := writePipeline(t, map[string]string{"pipeline.hcl": `
component "solo" {}
`})

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, model.Runtime.MaxConcurrentComponents)
	assert.Equal(t, 120*time.Minute, model.Runtime.ExecutionTimeout)
	assert.Equal(t, 30*time.Second, model.Runtime.DrainGrace)
}

func TestLoadMergesDirectoryFiles(t *testing.T) {
	dir := writePipeline(t, map[string]string{
		"a_components.hcl": `
component "fetch" {}
component "clean" {
  depends_on = ["fetch"]
}
`,
		"b_endpoints.hcl": `
endpoint "api" {
  daily_limit = 10
}
`,
	})

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, model.Components, 2)
	assert.Len(t, model.Endpoints, 1)
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name:    "syntax error",
			content: `component "broken" {`,
			wantMsg: "",
		},
		{
			name: "unknown frequency",
			content: `
component "odd" {
  frequency = "fortnightly"
}
`,
			wantMsg: "fortnightly",
		},
		{
			name: "dangling dependency",
			content: `
component "clean" {
  depends_on = ["missing"]
}
`,
			wantMsg: "unknown component",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := writePipeline(t, map[string]string{"pipeline.hcl": tc.content})
			_, err := NewLoader().Load(context.Background(), dir)
			require.Error(t, err)
			var cfgErr *config.Error
			require.ErrorAs(t, err, &cfgErr)
			if tc.wantMsg != "" {
				assert.Contains(t, err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestLoadRejectsMissingPath(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadRejectsEmptyDirectory(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .hcl files")
}
