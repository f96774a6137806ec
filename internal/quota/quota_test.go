package quota

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

func newTestTracker(limit int, priority bool, resetHour int) *Tracker {
	return NewTracker(map[string]*config.Endpoint{
		"api": {ID: "api", DailyLimit: limit, Priority: priority, ResetHour: resetHour},
	})
}

func TestAcquireStopsAtDailyLimit(t *testing.T) {
	tracker := newTestTracker(3, false, 0)

	for i := 0; i < 3; i++ {
		require.NoError(t, tracker.Acquire("api"))
	}

	err := tracker.Acquire("api")
	require.Error(t, err)
	var exhausted *ErrExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "api", exhausted.Endpoint)
	assert.Greater(t, exhausted.RetryAfter, time.Duration(0))
	assert.Equal(t, 3, tracker.Calls("api"))
}

func TestPriorityBypassesCeilingButStillCounts(t *testing.T) {
	tracker := newTestTracker(2, true, 0)

	for i := 0; i < 5; i++ {
		require.NoError(t, tracker.Acquire("api"))
	}
	assert.Equal(t, 5, tracker.Calls("api"))
}

func TestUnknownEndpointIsUngoverned(t *testing.T) {
	tracker := newTestTracker(1, false, 0)
	for i := 0; i < 10; i++ {
		require.NoError(t, tracker.Acquire("other"))
	}
}

func TestWindowResetsAtConfiguredHour(t *testing.T) {
	tracker := newTestTracker(1, false, 0)
	clock := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return clock }

	require.NoError(t, tracker.Acquire("api"))
	require.Error(t, tracker.Acquire("api"))

	// Advance past local midnight: the window rolls and budget returns.
	clock = time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC)
	require.NoError(t, tracker.Acquire("api"))
	assert.Equal(t, 1, tracker.Calls("api"))
}

func TestRemainingDoesNotConsume(t *testing.T) {
	tracker := newTestTracker(2, false, 0)

	remaining, priority, _ := tracker.Remaining("api")
	assert.Equal(t, 2, remaining)
	assert.False(t, priority)
	assert.Equal(t, 0, tracker.Calls("api"))

	require.NoError(t, tracker.Acquire("api"))
	require.NoError(t, tracker.Acquire("api"))

	remaining, _, retryAfter := tracker.Remaining("api")
	assert.Equal(t, 0, remaining)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestRetryAfterPrefersConfiguredValue(t *testing.T) {
	tracker := NewTracker(map[string]*config.Endpoint{
		"api": {ID: "api", DailyLimit: 1, RetryAfter: 45 * time.Minute},
	})
	require.NoError(t, tracker.Acquire("api"))

	err := tracker.Acquire("api")
	var exhausted *ErrExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 45*time.Minute, exhausted.RetryAfter)
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quota.yaml")

	tracker := newTestTracker(10, false, 0)
	require.NoError(t, tracker.Acquire("api"))
	require.NoError(t, tracker.Acquire("api"))
	require.NoError(t, tracker.Save(ctx, path))

	restored := newTestTracker(10, false, 0)
	restored.Load(ctx, path)
	assert.Equal(t, 2, restored.Calls("api"))
}

func TestLoadIgnoresCorruptState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quota.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{not yaml"), 0o644))

	tracker := newTestTracker(10, false, 0)
	tracker.Load(ctx, path)
	assert.Equal(t, 0, tracker.Calls("api"))
}

func TestLoadDropsUnknownEndpoints(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quota.yaml")

	old := NewTracker(map[string]*config.Endpoint{
		"retired": {ID: "retired", DailyLimit: 5},
	})
	require.NoError(t, old.Acquire("retired"))
	require.NoError(t, old.Save(ctx, path))

	tracker := newTestTracker(10, false, 0)
	tracker.Load(ctx, path)
	assert.Equal(t, 0, tracker.Calls("retired"))
}
