package config

import (
	"fmt"
	"time"
)

// Frequency is a component's scheduling cadence.
type Frequency string

const (
	FreqHourly   Frequency = "hourly"
	FreqDaily    Frequency = "daily"
	FreqWeekly   Frequency = "weekly"
	FreqMonthly  Frequency = "monthly"
	FreqOnDemand Frequency = "on-demand"
)

// ParseFrequency validates a frequency string from configuration.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case FreqHourly, FreqDaily, FreqWeekly, FreqMonthly, FreqOnDemand:
		return f, nil
	case "":
		return FreqDaily, nil
	default:
		return "", fmt.Errorf("unknown frequency %q", s)
	}
}

// Interval returns the minimum duration between runs, and whether the
// frequency is ever due without an override. On-demand components only run
// when forced.
func (f Frequency) Interval() (time.Duration, bool) {
	switch f {
	case FreqHourly:
		return time.Hour, true
	case FreqDaily:
		return 24 * time.Hour, true
	case FreqWeekly:
		return 7 * 24 * time.Hour, true
	case FreqMonthly:
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Due reports whether a component with this frequency is due at now, given
// the timestamp of its last successful run. A zero lastSuccess means the
// component has never run and is always due (on-demand excepted).
func (f Frequency) Due(now, lastSuccess time.Time) bool {
	interval, schedulable := f.Interval()
	if !schedulable {
		return false
	}
	if lastSuccess.IsZero() {
		return true
	}
	return now.Sub(lastSuccess) >= interval
}
