package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusSatisfies(t *testing.T) {
	assert.True(t, StatusCompleted.Satisfies())
	assert.True(t, StatusSkippedUnchanged.Satisfies())
	assert.True(t, StatusSkippedFrequency.Satisfies())

	assert.False(t, StatusFailed.Satisfies())
	assert.False(t, StatusTimeout.Satisfies())
	assert.False(t, StatusSkippedUpstream.Satisfies())
	assert.False(t, StatusDeferredQuota.Satisfies())
	assert.False(t, StatusPending.Satisfies())
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusDeferredQuota.Terminal())
}

func TestFinalizeSuccessRules(t *testing.T) {
	now := time.Now()

	t.Run("all completed", func(t *testing.T) {
		run := &Run{Records: map[string]*Record{
			"a": {ComponentID: "a", Status: StatusCompleted},
			"b": {ComponentID: "b", Status: StatusSkippedFrequency},
		}}
		run.Finalize(now)
		assert.True(t, run.Success)
		assert.Equal(t, 0, ExitCode(run))
	})

	t.Run("required failure", func(t *testing.T) {
		run := &Run{Records: map[string]*Record{
			"a": {ComponentID: "a", Status: StatusCompleted},
			"b": {ComponentID: "b", Status: StatusFailed},
		}}
		run.Finalize(now)
		assert.False(t, run.Success)
		assert.Equal(t, 1, ExitCode(run))
	})

	t.Run("required timeout", func(t *testing.T) {
		run := &Run{Records: map[string]*Record{
			"a": {ComponentID: "a", Status: StatusTimeout},
		}}
		run.Finalize(now)
		assert.False(t, run.Success)
	})

	t.Run("optional failure does not fail the run", func(t *testing.T) {
		run := &Run{Records: map[string]*Record{
			"a": {ComponentID: "a", Status: StatusCompleted},
			"b": {ComponentID: "b", Status: StatusFailed, Optional: true},
		}}
		run.Finalize(now)
		assert.True(t, run.Success)
	})

	t.Run("deferred quota does not fail the run", func(t *testing.T) {
		run := &Run{Records: map[string]*Record{
			"a": {ComponentID: "a", Status: StatusDeferredQuota},
		}}
		run.Finalize(now)
		assert.True(t, run.Success)
	})
}

func TestWriteSummary(t *testing.T) {
	start := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	run := &Run{
		ID:    "run-1",
		Start: start,
		Records: map[string]*Record{
			"clean": {ComponentID: "clean", Status: StatusFailed, Error: "boom",
				Start: start, End: start.Add(250 * time.Millisecond)},
			"fetch": {ComponentID: "fetch", Status: StatusCompleted,
				Start: start, End: start.Add(time.Second)},
		},
	}
	run.Finalize(start.Add(2 * time.Second))

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, run))

	var decoded struct {
		RunID      string `json:"run_id"`
		Success    bool   `json:"success"`
		Components []struct {
			ID         string  `json:"id"`
			Status     string  `json:"status"`
			DurationMS float64 `json:"duration_ms"`
			Error      string  `json:"error"`
		} `json:"components"`
		Totals map[string]int `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, "run-1", decoded.RunID)
	assert.False(t, decoded.Success)
	require.Len(t, decoded.Components, 2)
	// Components come out sorted by id.
	assert.Equal(t, "clean", decoded.Components[0].ID)
	assert.Equal(t, "boom", decoded.Components[0].Error)
	assert.InDelta(t, 250, decoded.Components[0].DurationMS, 0.01)
	assert.Equal(t, "fetch", decoded.Components[1].ID)
	assert.Equal(t, 1, decoded.Totals["failed"])
	assert.Equal(t, 1, decoded.Totals["completed"])
}
