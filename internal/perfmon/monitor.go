// Package perfmon keeps rolling per-component performance windows, flags
// threshold breaches as alert events, and derives trend insights from the
// recorded history.
package perfmon

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vk/conductor/internal/config"
	"github.com/vk/conductor/internal/notify"
)

// windowSize bounds the samples kept per component. Older samples fall off.
const windowSize = 100

// minSamplesForRate is how many samples a window needs before the success
// rate threshold is evaluated.
const minSamplesForRate = 5

// Sample is one observed component execution.
type Sample struct {
	Time          time.Time `yaml:"time"`
	RuntimeMS     float64   `yaml:"runtime_ms"`
	MemoryMB      float64   `yaml:"memory_mb,omitempty"`
	APIResponseMS float64   `yaml:"api_response_ms,omitempty"`
	Success       bool      `yaml:"success"`
}

// Monitor accumulates samples and evaluates them against the configured
// thresholds. Safe for concurrent use.
type Monitor struct {
	mu         sync.Mutex
	enabled    bool
	thresholds config.Thresholds
	windows    map[string][]Sample
}

// NewMonitor returns a monitor for the given monitoring configuration.
func NewMonitor(cfg config.Monitoring) *Monitor {
	return &Monitor{
		enabled:    cfg.Enabled,
		thresholds: cfg.Thresholds,
		windows:    make(map[string][]Sample),
	}
}

// Record appends a sample to the component's window and returns any threshold
// breach events the sample triggered. A disabled monitor records nothing.
func (m *Monitor) Record(componentID string, s Sample) []notify.Event {
	if !m.enabled {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	window := append(m.windows[componentID], s)
	if len(window) > windowSize {
		window = window[len(window)-windowSize:]
	}
	m.windows[componentID] = window

	var events []notify.Event
	breach := func(metric string, value, limit float64) {
		events = append(events, notify.Event{
			Kind:        notify.KindThresholdBreach,
			Severity:    notify.SeverityWarning,
			ComponentID: componentID,
			Message:     fmt.Sprintf("%s breached %s threshold", componentID, metric),
			Payload:     map[string]any{"metric": metric, "value": value, "limit": limit},
		})
	}

	if limit := m.thresholds.MaxExecutionTime; limit > 0 {
		if ms := float64(limit.Milliseconds()); s.RuntimeMS > ms {
			breach("execution_time", s.RuntimeMS, ms)
		}
	}
	if limit := m.thresholds.MaxMemoryMB; limit > 0 && s.MemoryMB > limit {
		breach("memory", s.MemoryMB, limit)
	}
	if limit := m.thresholds.MaxAPIResponseMS; limit > 0 && s.APIResponseMS > limit {
		breach("api_response_time", s.APIResponseMS, limit)
	}
	if limit := m.thresholds.MinSuccessRatePct; limit > 0 && len(window) >= minSamplesForRate {
		if rate := successRate(window); rate < limit {
			breach("success_rate", rate, limit)
		}
	}
	return events
}

// Trend describes how a component's runtime has been moving.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// Insight summarizes one component's window.
type Insight struct {
	ComponentID     string   `json:"component_id"`
	Samples         int      `json:"samples"`
	AvgRuntimeMS    float64  `json:"avg_runtime_ms"`
	P95RuntimeMS    float64  `json:"p95_runtime_ms"`
	SuccessRatePct  float64  `json:"success_rate_pct"`
	Trend           Trend    `json:"trend"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Insights derives trend summaries for every component with recorded data,
// ordered by component id.
func (m *Monitor) Insights() []Insight {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.windows))
	for id := range m.windows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	insights := make([]Insight, 0, len(ids))
	for _, id := range ids {
		window := m.windows[id]
		if len(window) == 0 {
			continue
		}
		in := Insight{
			ComponentID:    id,
			Samples:        len(window),
			AvgRuntimeMS:   avgRuntime(window),
			P95RuntimeMS:   p95Runtime(window),
			SuccessRatePct: successRate(window),
			Trend:          runtimeTrend(window),
		}
		in.Recommendations = m.recommend(in)
		insights = append(insights, in)
	}
	return insights
}

// Snapshot returns the insights keyed by component id, for status reporting.
func (m *Monitor) Snapshot() map[string]Insight {
	out := make(map[string]Insight)
	for _, in := range m.Insights() {
		out[in.ComponentID] = in
	}
	return out
}

func (m *Monitor) recommend(in Insight) []string {
	var recs []string
	if limit := m.thresholds.MaxExecutionTime; limit > 0 {
		if ms := float64(limit.Milliseconds()); in.P95RuntimeMS > ms*0.8 {
			recs = append(recs, "p95 runtime is within 20% of the execution time threshold")
		}
	}
	if limit := m.thresholds.MinSuccessRatePct; limit > 0 && in.SuccessRatePct < limit {
		recs = append(recs, "success rate is below the configured minimum")
	}
	if in.Trend == TrendDegrading {
		recs = append(recs, "runtime is trending up over recent executions")
	}
	return recs
}

// runtimeTrend compares the mean runtime of the newer half of the window
// against the older half. Differences under 10% count as stable.
func runtimeTrend(window []Sample) Trend {
	if len(window) < 4 {
		return TrendStable
	}
	mid := len(window) / 2
	older := avgRuntime(window[:mid])
	recent := avgRuntime(window[mid:])
	if older == 0 {
		return TrendStable
	}
	switch delta := (recent - older) / older; {
	case delta > 0.10:
		return TrendDegrading
	case delta < -0.10:
		return TrendImproving
	default:
		return TrendStable
	}
}

func avgRuntime(window []Sample) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, s := range window {
		sum += s.RuntimeMS
	}
	return sum / float64(len(window))
}

func p95Runtime(window []Sample) float64 {
	if len(window) == 0 {
		return 0
	}
	runtimes := make([]float64, len(window))
	for i, s := range window {
		runtimes[i] = s.RuntimeMS
	}
	sort.Float64s(runtimes)
	idx := int(float64(len(runtimes))*0.95) - 1
	if idx < 0 {
		idx = 0
	}
	return runtimes[idx]
}

func successRate(window []Sample) float64 {
	if len(window) == 0 {
		return 0
	}
	var ok int
	for _, s := range window {
		if s.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(window)) * 100
}
