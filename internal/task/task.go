// Package task defines the contract between the orchestration engine and the
// units of work it dispatches. The engine never inspects a task's internals:
// it hands over a run context with a deadline, a cancellation signal, and a
// quota handle, and receives back a result or a typed failure.
package task

import (
	"context"
	"fmt"
	"time"
)

// Task is one opaque unit of work. Implementations are expected to observe
// ctx cancellation at their own checkpoints; a task that does not is allowed
// to run to completion but will be flagged as having overrun its deadline.
type Task interface {
	Run(ctx context.Context, rc *RunContext) (*Result, error)
}

// Func adapts a plain function to the Task interface.
type Func func(ctx context.Context, rc *RunContext) (*Result, error)

// Run implements Task.
func (f Func) Run(ctx context.Context, rc *RunContext) (*Result, error) {
	return f(ctx, rc)
}

// QuotaHandle is the task-facing view of the quota tracker. Every governed
// call the task issues must be acquired first.
type QuotaHandle interface {
	// Acquire consumes one call against the endpoint's budget. It returns a
	// quota.ErrExhausted-typed error once a non-priority budget is spent.
	Acquire(endpoint string) error
}

// RunContext carries everything a task may use during one execution.
type RunContext struct {
	ComponentID string
	// Deadline is the component's absolute cutoff, mirrored from ctx.
	Deadline time.Time
	// Endpoints lists the quota-governed endpoint ids the component declared.
	Endpoints []string
	Quota     QuotaHandle
	// DryRun tasks are never invoked; the flag exists so shared helpers can
	// be built against the same context type.
	DryRun bool
}

// Result is what a completed task reports back.
type Result struct {
	// Artifacts are references to whatever the task produced. Opaque to the
	// engine except for change-detection probes.
	Artifacts []string
	// RecordCount feeds the record-count change detection method and the
	// throughput metric. Negative means unreported.
	RecordCount int
	// MemoryPeakMB is optional; zero means unreported.
	MemoryPeakMB float64
	// APIResponseMS is the slowest governed call the task observed, optional.
	APIResponseMS float64
}

// ExecError is the typed failure a task raises. Anything else returned as an
// error is wrapped into one by the engine.
type ExecError struct {
	ComponentID string
	Err         error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("task %s: %v", e.ComponentID, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}
