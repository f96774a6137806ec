// Package notify routes alert events to the channels subscribed for their
// severity. Delivery is best-effort with a bounded retry; a notification
// that cannot be delivered is logged and never affects the pipeline run.
package notify

import (
	"context"
	"time"

	"github.com/vk/conductor/internal/ctxlog"
)

// Severity classifies an event for routing.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Kind names what happened.
type Kind string

const (
	KindComponentFailure Kind = "component_failure"
	KindComponentTimeout Kind = "component_timeout"
	KindGlobalTimeout    Kind = "global_timeout"
	KindThresholdBreach  Kind = "threshold_breach"
	KindQuotaExhausted   Kind = "quota_exhausted"
	KindRunSummary       Kind = "run_summary"
)

// Event is a single alert. Consumed once; the manager keeps no queue.
type Event struct {
	Kind        Kind
	Severity    Severity
	ComponentID string
	Message     string
	Payload     map[string]any
	Time        time.Time
}

// Channel delivers events somewhere external.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// deliveryAttempts bounds retries per event per channel.
const deliveryAttempts = 2

type subscription struct {
	channel    Channel
	severities map[Severity]bool
}

// Manager fans events out to subscribed channels.
type Manager struct {
	subs []subscription
}

// NewManager returns a manager with no subscriptions.
func NewManager() *Manager {
	return &Manager{}
}

// Subscribe routes events of the given severities to the channel.
func (m *Manager) Subscribe(ch Channel, severities ...Severity) {
	set := make(map[Severity]bool, len(severities))
	for _, s := range severities {
		set[s] = true
	}
	m.subs = append(m.subs, subscription{channel: ch, severities: set})
}

// Publish delivers an event to every matching channel. Each channel gets up
// to deliveryAttempts tries; failures are logged only.
func (m *Manager) Publish(ctx context.Context, ev Event) {
	logger := ctxlog.FromContext(ctx)
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	for _, sub := range m.subs {
		if !sub.severities[ev.Severity] {
			continue
		}
		var err error
		for attempt := 1; attempt <= deliveryAttempts; attempt++ {
			if err = sub.channel.Deliver(ctx, ev); err == nil {
				break
			}
			logger.Warn("Notification delivery attempt failed.",
				"channel", sub.channel.Name(), "kind", ev.Kind, "attempt", attempt, "error", err)
		}
		if err != nil {
			logger.Error("Notification dropped after retries.",
				"channel", sub.channel.Name(), "kind", ev.Kind, "error", err)
		}
	}
}
