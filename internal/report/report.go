// Package report defines the per-run outcome model shared by the engine,
// the execution history, and the CLI summary output.
package report

import (
	"time"
)

// Status is a component's terminal (or transient) state within one run.
type Status string

const (
	StatusPending          Status = "pending"
	StatusRunning          Status = "running"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusSkippedFrequency Status = "skipped-frequency"
	StatusSkippedUnchanged Status = "skipped-unchanged"
	StatusSkippedUpstream  Status = "skipped-upstream-failed"
	StatusDeferredQuota    Status = "deferred-quota"
	StatusTimeout          Status = "timeout"
)

// Terminal reports whether a status is final for the run.
func (s Status) Terminal() bool {
	return s != StatusPending && s != StatusRunning
}

// Satisfies reports whether a dependency ending in this status lets its
// dependents proceed. A frequency skip means the upstream's outputs from its
// last successful run are still current, so it satisfies dependents the same
// way a completion does.
func (s Status) Satisfies() bool {
	switch s {
	case StatusCompleted, StatusSkippedUnchanged, StatusSkippedFrequency:
		return true
	default:
		return false
	}
}

// Record is one component's outcome within a run. Append-only once terminal.
type Record struct {
	ComponentID string        `yaml:"component_id" json:"component_id"`
	Status      Status        `yaml:"status" json:"status"`
	Start       time.Time     `yaml:"start,omitempty" json:"start,omitzero"`
	End         time.Time     `yaml:"end,omitempty" json:"end,omitzero"`
	Error       string        `yaml:"error,omitempty" json:"error,omitempty"`
	// Upstream names the dependency that caused a skipped-upstream-failed.
	Upstream string `yaml:"upstream,omitempty" json:"upstream,omitempty"`
	// Overrun marks a task that kept running past its deadline.
	Overrun    bool          `yaml:"overrun,omitempty" json:"overrun,omitempty"`
	RetryAfter time.Duration `yaml:"retry_after,omitempty" json:"retry_after,omitempty"`
	DryRun     bool          `yaml:"dry_run,omitempty" json:"dry_run,omitempty"`
	Optional   bool          `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// Duration returns the wall-clock time the component spent, zero if it
// never started.
func (r *Record) Duration() time.Duration {
	if r.Start.IsZero() || r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}

// Run is one orchestrator invocation's outcome.
type Run struct {
	ID      string             `yaml:"id" json:"run_id"`
	Start   time.Time          `yaml:"start" json:"start"`
	End     time.Time          `yaml:"end" json:"end"`
	Records map[string]*Record `yaml:"records" json:"components"`
	// Success means no required component ended failed or timed out.
	Success bool `yaml:"success" json:"success"`
}

// Finalize stamps the end time and computes overall success: every
// non-optional component must have avoided failed and timeout.
func (r *Run) Finalize(end time.Time) {
	r.End = end
	r.Success = true
	for _, rec := range r.Records {
		if rec.Optional {
			continue
		}
		if rec.Status == StatusFailed || rec.Status == StatusTimeout {
			r.Success = false
			return
		}
	}
}

// Counts tallies records by status.
func (r *Run) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, rec := range r.Records {
		counts[rec.Status]++
	}
	return counts
}
