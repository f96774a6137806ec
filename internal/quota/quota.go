// Package quota arbitrates external-call budgets per endpoint. Budgets are
// daily, reset at a local boundary (midnight unless configured otherwise),
// and persist across invocations so that successive runs in the same window
// share one counter.
package quota

import (
	"fmt"
	"sync"
	"time"

	"github.com/vk/conductor/internal/config"
)

// ErrExhausted is returned by Acquire once a non-priority endpoint's daily
// budget is spent. RetryAfter hints when the caller may try again.
type ErrExhausted struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *ErrExhausted) Error() string {
	return fmt.Sprintf("quota exhausted for endpoint %q, retry after %s", e.Endpoint, e.RetryAfter)
}

// counter is the persisted per-endpoint state.
type counter struct {
	Calls       int       `yaml:"calls"`
	WindowStart time.Time `yaml:"window_start"`
}

// Tracker owns every endpoint counter. All read-check-increment sequences
// run under one mutex; workers share the Tracker by handle, never by copy.
type Tracker struct {
	mu        sync.Mutex
	endpoints map[string]*config.Endpoint
	counters  map[string]*counter
	now       func() time.Time
}

// NewTracker builds a tracker for the configured endpoints.
func NewTracker(endpoints map[string]*config.Endpoint) *Tracker {
	return &Tracker{
		endpoints: endpoints,
		counters:  make(map[string]*counter),
		now:       time.Now,
	}
}

// Acquire atomically checks and consumes one call against an endpoint's
// budget. Priority endpoints bypass the ceiling but are still counted, so
// every call remains observable. Unknown endpoints are ungoverned.
func (t *Tracker) Acquire(endpoint string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ep, ok := t.endpoints[endpoint]
	if !ok {
		return nil
	}
	c := t.rolled(endpoint, ep)

	if !ep.Priority && ep.DailyLimit > 0 && c.Calls >= ep.DailyLimit {
		return &ErrExhausted{Endpoint: endpoint, RetryAfter: t.retryAfter(ep)}
	}
	c.Calls++
	return nil
}

// Remaining reports how many calls are left in the current window and
// whether the endpoint bypasses the shared ceiling. Used by the engine's
// pre-submission check; it does not consume budget.
func (t *Tracker) Remaining(endpoint string) (remaining int, priority bool, retryAfter time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ep, ok := t.endpoints[endpoint]
	if !ok {
		return 1, false, 0
	}
	c := t.rolled(endpoint, ep)
	if ep.Priority || ep.DailyLimit <= 0 {
		return 1, ep.Priority, 0
	}
	rem := ep.DailyLimit - c.Calls
	if rem < 0 {
		rem = 0
	}
	return rem, false, t.retryAfter(ep)
}

// Calls returns the recorded call count for an endpoint in the current
// window.
func (t *Tracker) Calls(endpoint string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	ep, ok := t.endpoints[endpoint]
	if !ok {
		return 0
	}
	return t.rolled(endpoint, ep).Calls
}

// rolled returns the counter for an endpoint, resetting it first if the
// window boundary has passed. Callers hold the mutex.
func (t *Tracker) rolled(endpoint string, ep *config.Endpoint) *counter {
	c, ok := t.counters[endpoint]
	if !ok {
		c = &counter{WindowStart: t.now()}
		t.counters[endpoint] = c
	}
	boundary := nextReset(c.WindowStart, ep.ResetHour)
	if !t.now().Before(boundary) {
		c.Calls = 0
		c.WindowStart = t.now()
	}
	return c
}

func (t *Tracker) retryAfter(ep *config.Endpoint) time.Duration {
	if ep.RetryAfter > 0 {
		return ep.RetryAfter
	}
	now := t.now()
	return nextReset(now, ep.ResetHour).Sub(now)
}

// nextReset returns the first reset boundary strictly after from, at the
// configured local hour.
func nextReset(from time.Time, hour int) time.Time {
	boundary := time.Date(from.Year(), from.Month(), from.Day(), hour, 0, 0, 0, from.Location())
	if !boundary.After(from) {
		boundary = boundary.AddDate(0, 0, 1)
	}
	return boundary
}
