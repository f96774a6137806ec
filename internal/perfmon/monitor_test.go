package perfmon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/conductor/internal/config"
	"github.com/vk/conductor/internal/notify"
)

func enabledMonitoring() config.Monitoring {
	return config.Monitoring{
		Enabled: true,
		Thresholds: config.Thresholds{
			MaxExecutionTime:  time.Minute,
			MaxMemoryMB:       1024,
			MaxAPIResponseMS:  30000,
			MinSuccessRatePct: 95,
		},
	}
}

func okSample(runtimeMS float64) Sample {
	return Sample{Time: time.Now(), RuntimeMS: runtimeMS, Success: true}
}

func TestRecordFlagsRuntimeBreach(t *testing.T) {
	m := NewMonitor(enabledMonitoring())

	events := m.Record("clean", okSample(90_000))
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindThresholdBreach, events[0].Kind)
	assert.Equal(t, notify.SeverityWarning, events[0].Severity)
	assert.Equal(t, "clean", events[0].ComponentID)
	assert.Equal(t, "execution_time", events[0].Payload["metric"])
}

func TestRecordFlagsMemoryAndLatencyBreaches(t *testing.T) {
	m := NewMonitor(enabledMonitoring())

	s := okSample(1000)
	s.MemoryMB = 2048
	s.APIResponseMS = 45000
	events := m.Record("clean", s)

	metrics := make([]string, 0, len(events))
	for _, ev := range events {
		metrics = append(metrics, ev.Payload["metric"].(string))
	}
	assert.ElementsMatch(t, []string{"memory", "api_response_time"}, metrics)
}

func TestSuccessRateBreachNeedsMinimumSamples(t *testing.T) {
	m := NewMonitor(enabledMonitoring())

	fail := Sample{Time: time.Now(), RuntimeMS: 100, Success: false}
	for i := 0; i < minSamplesForRate-1; i++ {
		events := m.Record("flaky", fail)
		assert.Empty(t, events, "no rate breach before the window fills")
	}

	events := m.Record("flaky", fail)
	require.Len(t, events, 1)
	assert.Equal(t, "success_rate", events[0].Payload["metric"])
}

func TestDisabledMonitorRecordsNothing(t *testing.T) {
	m := NewMonitor(config.Monitoring{Enabled: false})
	assert.Empty(t, m.Record("clean", okSample(10_000_000)))
	assert.Empty(t, m.Insights())
}

func TestWindowIsBounded(t *testing.T) {
	m := NewMonitor(enabledMonitoring())
	for i := 0; i < windowSize+25; i++ {
		m.Record("clean", okSample(100))
	}

	insights := m.Insights()
	require.Len(t, insights, 1)
	assert.Equal(t, windowSize, insights[0].Samples)
}

func TestTrendDirections(t *testing.T) {
	t.Run("degrading", func(t *testing.T) {
		m := NewMonitor(enabledMonitoring())
		for i := 0; i < 10; i++ {
			m.Record("slow", okSample(1000))
		}
		for i := 0; i < 10; i++ {
			m.Record("slow", okSample(2000))
		}
		insights := m.Insights()
		require.Len(t, insights, 1)
		assert.Equal(t, TrendDegrading, insights[0].Trend)
	})

	t.Run("improving", func(t *testing.T) {
		m := NewMonitor(enabledMonitoring())
		for i := 0; i < 10; i++ {
			m.Record("fast", okSample(2000))
		}
		for i := 0; i < 10; i++ {
			m.Record("fast", okSample(1000))
		}
		insights := m.Insights()
		require.Len(t, insights, 1)
		assert.Equal(t, TrendImproving, insights[0].Trend)
	})

	t.Run("stable", func(t *testing.T) {
		m := NewMonitor(enabledMonitoring())
		for i := 0; i < 20; i++ {
			m.Record("steady", okSample(1000))
		}
		insights := m.Insights()
		require.Len(t, insights, 1)
		assert.Equal(t, TrendStable, insights[0].Trend)
	})
}

func TestInsightStatistics(t *testing.T) {
	m := NewMonitor(enabledMonitoring())
	for i := 1; i <= 20; i++ {
		m.Record("stats", okSample(float64(i*100)))
	}

	insights := m.Insights()
	require.Len(t, insights, 1)
	in := insights[0]
	assert.InDelta(t, 1050, in.AvgRuntimeMS, 0.01)
	assert.InDelta(t, 1900, in.P95RuntimeMS, 0.01)
	assert.InDelta(t, 100, in.SuccessRatePct, 0.01)
}

func TestSnapshotKeysByComponent(t *testing.T) {
	m := NewMonitor(enabledMonitoring())
	m.Record("a", okSample(100))
	m.Record("b", okSample(200))

	snap := m.Snapshot()
	assert.Contains(t, snap, "a")
	assert.Contains(t, snap, "b")
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "metrics.yaml")

	m := NewMonitor(enabledMonitoring())
	for i := 0; i < 5; i++ {
		m.Record("clean", okSample(500))
	}
	require.NoError(t, m.Save(ctx, path))

	restored := NewMonitor(enabledMonitoring())
	restored.Load(ctx, path)
	insights := restored.Insights()
	require.Len(t, insights, 1)
	assert.Equal(t, 5, insights[0].Samples)
}
