package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/conductor/internal/config"
	"github.com/vk/conductor/internal/ctxlog"
	"github.com/vk/conductor/internal/notify"
	"github.com/vk/conductor/internal/perfmon"
	"github.com/vk/conductor/internal/quota"
	"github.com/vk/conductor/internal/report"
	"github.com/vk/conductor/internal/task"
)

// execute runs one component's task under its own deadline. Panics inside
// the task are confined to this worker and reported as a failure.
func (e *Engine) execute(ctx context.Context, comp *config.Component, tsk task.Task, results chan<- outcome) {
	deadline := e.now().Add(comp.MaxRuntime)
	taskCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	out := outcome{id: comp.ID}
	defer func() {
		if r := recover(); r != nil {
			out.status = report.StatusFailed
			out.err = fmt.Errorf("panic: %v", r)
		}
		out.end = e.now()
		if out.status == report.StatusCompleted && out.end.After(deadline) {
			// The task ignored its cancellation signal and ran to completion
			// past the cutoff. Its output is kept; the overrun is flagged.
			out.overrun = true
		}
		results <- out
	}()

	rc := &task.RunContext{
		ComponentID: comp.ID,
		Deadline:    deadline,
		Endpoints:   comp.Endpoints,
		Quota:       e.quota,
	}

	res, err := tsk.Run(taskCtx, rc)
	out.result = res
	out.status, out.err, out.retryAfter = classify(comp.ID, err)
}

// classify maps a task error to the component's terminal status.
func classify(componentID string, err error) (report.Status, error, time.Duration) {
	if err == nil {
		return report.StatusCompleted, nil, 0
	}

	var exhausted *quota.ErrExhausted
	if errors.As(err, &exhausted) {
		return report.StatusDeferredQuota, err, exhausted.RetryAfter
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return report.StatusTimeout, err, 0
	}

	var execErr *task.ExecError
	if !errors.As(err, &execErr) {
		err = &task.ExecError{ComponentID: componentID, Err: err}
	}
	return report.StatusFailed, err, 0
}

// apply folds one worker outcome into the run report, feeds the performance
// monitor, routes alerts, and commits change fingerprints on completion.
func (e *Engine) apply(ctx context.Context, run *report.Run, out outcome) {
	logger := ctxlog.FromContext(ctx)
	rec := run.Records[out.id]
	if rec == nil || rec.Status != report.StatusRunning {
		// The drain cutoff already settled this record; the late result only
		// gets logged.
		logger.Warn("Discarding late result from abandoned component.", "component", out.id)
		return
	}

	rec.Status = out.status
	rec.End = out.end
	rec.Overrun = out.overrun
	rec.RetryAfter = out.retryAfter
	if out.err != nil {
		rec.Error = out.err.Error()
	}

	switch out.status {
	case report.StatusCompleted:
		logger.Info("Component completed.", "component", out.id,
			"duration", rec.Duration().Round(time.Millisecond).String(), "overrun", out.overrun)
		e.detector.RecordResult(out.id, out.result)
		e.detector.Commit(out.id)
	case report.StatusTimeout:
		logger.Error("Component timed out.", "component", out.id, "duration", rec.Duration().Round(time.Millisecond).String())
		e.notifier.Publish(ctx, notify.Event{
			Kind:        notify.KindComponentTimeout,
			Severity:    notify.SeverityError,
			ComponentID: out.id,
			Message:     fmt.Sprintf("%s exceeded its max runtime", out.id),
		})
	case report.StatusDeferredQuota:
		logger.Warn("Component deferred mid-run, quota exhausted.",
			"component", out.id, "retry_after", out.retryAfter.String())
		e.notifier.Publish(ctx, notify.Event{
			Kind:        notify.KindQuotaExhausted,
			Severity:    notify.SeverityWarning,
			ComponentID: out.id,
			Message:     fmt.Sprintf("%s deferred mid-run: %v", out.id, out.err),
		})
	default:
		logger.Error("Component failed.", "component", out.id, "error", rec.Error)
		e.notifier.Publish(ctx, notify.Event{
			Kind:        notify.KindComponentFailure,
			Severity:    notify.SeverityError,
			ComponentID: out.id,
			Message:     fmt.Sprintf("%s failed: %s", out.id, rec.Error),
		})
	}

	e.recordMetrics(ctx, rec, out)
}

// recordMetrics turns an executed component's outcome into a performance
// sample and publishes any threshold breaches it triggers.
func (e *Engine) recordMetrics(ctx context.Context, rec *report.Record, out outcome) {
	sample := perfmon.Sample{
		Time:      out.end,
		RuntimeMS: float64(rec.Duration().Milliseconds()),
		Success:   out.status == report.StatusCompleted,
	}
	if out.result != nil {
		sample.MemoryMB = out.result.MemoryPeakMB
		sample.APIResponseMS = out.result.APIResponseMS
	}
	for _, ev := range e.monitor.Record(out.id, sample) {
		e.notifier.Publish(ctx, ev)
	}
}
