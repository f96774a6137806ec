// Package engine executes a validated pipeline: it walks the dependency
// graph in topological order, dispatches due components onto a bounded
// worker pool, and folds every gating concern (frequency, change detection,
// quotas, timeouts, upstream failures) into one per-run report.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vk/conductor/internal/changedetect"
	"github.com/vk/conductor/internal/config"
	"github.com/vk/conductor/internal/ctxlog"
	"github.com/vk/conductor/internal/graph"
	"github.com/vk/conductor/internal/history"
	"github.com/vk/conductor/internal/notify"
	"github.com/vk/conductor/internal/perfmon"
	"github.com/vk/conductor/internal/quota"
	"github.com/vk/conductor/internal/report"
	"github.com/vk/conductor/internal/task"
)

// Options wires an engine. Every field except Now is required.
type Options struct {
	Model    *config.Model
	Graph    *graph.Graph
	Registry *task.Registry
	Quota    *quota.Tracker
	Detector *changedetect.Detector
	History  *history.Store
	Monitor  *perfmon.Monitor
	Notifier *notify.Manager
	// Now is the clock, injectable for tests.
	Now func() time.Time
}

// Engine runs one pipeline invocation. Not reusable across runs.
type Engine struct {
	model    *config.Model
	graph    *graph.Graph
	registry *task.Registry
	quota    *quota.Tracker
	detector *changedetect.Detector
	history  *history.Store
	monitor  *perfmon.Monitor
	notifier *notify.Manager
	now      func() time.Time
}

// New builds an engine from options.
func New(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		model:    opts.Model,
		graph:    opts.Graph,
		registry: opts.Registry,
		quota:    opts.Quota,
		detector: opts.Detector,
		history:  opts.History,
		monitor:  opts.Monitor,
		notifier: opts.Notifier,
		now:      now,
	}
}

// outcome is what a worker reports back to the coordinator.
type outcome struct {
	id         string
	status     report.Status
	err        error
	overrun    bool
	retryAfter time.Duration
	result     *task.Result
	end        time.Time
}

// Run executes the pipeline and returns the completed report. Components
// that never became dispatchable before the global timeout are marked
// timed out; in-flight work gets a drain grace period before the engine
// stops waiting for it.
func (e *Engine) Run(ctx context.Context) *report.Run {
	logger := ctxlog.FromContext(ctx)
	start := e.now()

	run := &report.Run{
		ID:      uuid.NewString(),
		Start:   start,
		Records: make(map[string]*report.Record),
	}
	for _, c := range e.model.Components {
		if !c.Enabled {
			continue
		}
		run.Records[c.ID] = &report.Record{
			ComponentID: c.ID,
			Status:      report.StatusPending,
			Optional:    c.Optional,
		}
	}

	logger.Info("Pipeline run starting.",
		"run_id", run.ID,
		"components", len(run.Records),
		"workers", e.model.Runtime.MaxConcurrentComponents,
		"dry_run", e.model.Overrides.DryRun,
	)

	e.applyFrequencyGate(ctx, run)

	runCtx, cancel := context.WithDeadline(ctx, start.Add(e.model.Runtime.ExecutionTimeout))
	defer cancel()

	// Buffered so abandoned workers can still exit after the drain cutoff.
	results := make(chan outcome, len(run.Records))
	inFlight := 0

	timedOut := false
	for {
		e.dispatchReady(runCtx, run, results, &inFlight)
		if inFlight == 0 {
			if e.pendingCount(run) > 0 {
				// No runnable work left but components remain pending. A
				// validated graph cannot produce this; fail them visibly
				// rather than spin.
				e.failStranded(ctx, run)
			}
			break
		}
		select {
		case out := <-results:
			inFlight--
			e.apply(ctx, run, out)
		case <-runCtx.Done():
			timedOut = true
		}
		if timedOut {
			break
		}
	}

	if timedOut {
		e.haltOnGlobalTimeout(ctx, run, results, inFlight)
	}

	run.Finalize(e.now())
	e.publishSummary(ctx, run)
	logger.Info("Pipeline run finished.",
		"run_id", run.ID,
		"success", run.Success,
		"duration", run.End.Sub(run.Start).Round(time.Millisecond).String(),
	)
	return run
}

// applyFrequencyGate pre-marks components that are not due. Frequency is the
// outermost gate: a component outside its window is skipped before change
// detection or quota checks are consulted. On-demand components run only
// under force_run_all.
func (e *Engine) applyFrequencyGate(ctx context.Context, run *report.Run) {
	logger := ctxlog.FromContext(ctx)
	ov := e.model.Overrides
	now := e.now()

	for _, c := range e.model.Components {
		rec := run.Records[c.ID]
		if rec == nil {
			continue
		}
		if ov.ForceRunAll {
			continue
		}
		if c.Frequency == config.FreqOnDemand {
			rec.Status = report.StatusSkippedFrequency
			logger.Debug("Component is on-demand, skipping.", "component", c.ID)
			continue
		}
		if ov.SkipFrequencyCheck {
			continue
		}
		last, _ := e.history.LastSuccess(c.ID)
		if !c.Frequency.Due(now, last) {
			rec.Status = report.StatusSkippedFrequency
			logger.Debug("Component not due yet, skipping.",
				"component", c.ID, "frequency", string(c.Frequency), "last_success", last)
		}
	}
}

// dispatchReady walks the topological order to a fixpoint: synchronous
// outcomes (upstream skips, unchanged skips, quota deferrals, dry runs) are
// settled inline, and runnable components are handed to workers while pool
// slots remain. Components waiting only for a slot are left untouched, so
// their gate checks are evaluated exactly once. Parallel group members
// become ready together and are dispatched in the same pass.
func (e *Engine) dispatchReady(ctx context.Context, run *report.Run, results chan<- outcome, inFlight *int) {
	logger := ctxlog.FromContext(ctx)
	ov := e.model.Overrides

	for {
		progressed := false
		for _, id := range e.graph.Order() {
			rec := run.Records[id]
			if rec == nil || rec.Status != report.StatusPending {
				continue
			}
			ready, failedDep := e.upstreamState(run, id)
			if !ready {
				continue
			}
			if failedDep != "" && !ov.SkipDependencyCheck {
				rec.Status = report.StatusSkippedUpstream
				rec.Upstream = failedDep
				rec.Error = fmt.Sprintf("upstream component %q did not succeed", failedDep)
				logger.Warn("Skipping component, upstream failed.", "component", id, "upstream", failedDep)
				progressed = true
				continue
			}

			// Gate checks from here on may probe the outside world (validator
			// HEAD requests, count samples). They run once, when a pool slot
			// is free for the component, not on every scheduling pass.
			if *inFlight >= e.model.Runtime.MaxConcurrentComponents {
				continue
			}

			comp := e.model.Component(id)

			if !ov.SkipChangeDetection {
				decision := e.detector.Check(ctx, comp)
				if decision.Skip && !ov.ForceRunAll {
					now := e.now()
					rec.Status = report.StatusSkippedUnchanged
					// The data was verified current, which counts as a
					// success for the frequency gate's purposes.
					rec.Start, rec.End = now, now
					e.detector.Commit(id)
					logger.Info("Source unchanged, skipping component.", "component", id)
					progressed = true
					continue
				}
			}

			if endpoint, retry, deferred := e.quotaDeferred(comp); deferred {
				rec.Status = report.StatusDeferredQuota
				rec.RetryAfter = retry
				rec.Error = fmt.Sprintf("daily quota exhausted for endpoint %q", endpoint)
				logger.Warn("Deferring component, quota exhausted.",
					"component", id, "endpoint", endpoint, "retry_after", retry.String())
				e.notifier.Publish(ctx, notify.Event{
					Kind:        notify.KindQuotaExhausted,
					Severity:    notify.SeverityWarning,
					ComponentID: id,
					Message:     fmt.Sprintf("%s deferred: endpoint %s quota exhausted", id, endpoint),
					Payload:     map[string]any{"endpoint": endpoint, "retry_after": retry.String()},
				})
				progressed = true
				continue
			}

			if ov.DryRun {
				now := e.now()
				rec.Status = report.StatusCompleted
				rec.DryRun = true
				rec.Start, rec.End = now, now
				logger.Info("Dry run, component would execute.", "component", id)
				progressed = true
				continue
			}

			tsk, err := e.registry.Lookup(id)
			if err != nil {
				rec.Status = report.StatusFailed
				rec.Error = err.Error()
				logger.Error("Component has no task implementation.", "component", id)
				progressed = true
				continue
			}
			rec.Status = report.StatusRunning
			rec.Start = e.now()
			*inFlight++
			logger.Info("Dispatching component.", "component", id, "in_flight", *inFlight)
			go e.execute(ctx, comp, tsk, results)
			progressed = true
		}
		if !progressed {
			return
		}
	}
}

// upstreamState reports whether every dependency of id has reached a
// terminal status, and if so, names the first one whose outcome does not
// satisfy the dependent. Disabled dependencies carry no record and count
// as satisfied.
func (e *Engine) upstreamState(run *report.Run, id string) (ready bool, failedDep string) {
	for _, dep := range e.graph.Dependencies(id) {
		depRec := run.Records[dep]
		if depRec == nil {
			continue
		}
		if !depRec.Status.Terminal() {
			return false, ""
		}
		if failedDep == "" && !depRec.Status.Satisfies() {
			failedDep = dep
		}
	}
	return true, failedDep
}

// quotaDeferred pre-checks every endpoint the component declared. One
// exhausted non-priority endpoint defers the whole component; the check
// consumes no budget.
func (e *Engine) quotaDeferred(c *config.Component) (endpoint string, retryAfter time.Duration, deferred bool) {
	for _, ep := range c.Endpoints {
		remaining, priority, retry := e.quota.Remaining(ep)
		if remaining == 0 && !priority {
			return ep, retry, true
		}
	}
	return "", 0, false
}

func (e *Engine) pendingCount(run *report.Run) int {
	n := 0
	for _, rec := range run.Records {
		if rec.Status == report.StatusPending {
			n++
		}
	}
	return n
}

func (e *Engine) failStranded(ctx context.Context, run *report.Run) {
	logger := ctxlog.FromContext(ctx)
	for _, rec := range run.Records {
		if rec.Status == report.StatusPending {
			rec.Status = report.StatusFailed
			rec.Error = "component never became schedulable"
			logger.Error("Component stranded in pending state.", "component", rec.ComponentID)
		}
	}
}

// haltOnGlobalTimeout marks everything still pending as timed out, then
// waits out the drain grace for in-flight workers. Workers still running
// when the grace expires are abandoned and flagged as overruns.
func (e *Engine) haltOnGlobalTimeout(ctx context.Context, run *report.Run, results <-chan outcome, inFlight int) {
	logger := ctxlog.FromContext(ctx)
	logger.Error("Global execution timeout reached, halting submissions.",
		"timeout", e.model.Runtime.ExecutionTimeout.String(), "in_flight", inFlight)

	e.notifier.Publish(ctx, notify.Event{
		Kind:     notify.KindGlobalTimeout,
		Severity: notify.SeverityError,
		Message:  "global execution timeout reached",
		Payload:  map[string]any{"timeout": e.model.Runtime.ExecutionTimeout.String()},
	})

	for _, rec := range run.Records {
		if rec.Status == report.StatusPending {
			rec.Status = report.StatusTimeout
			rec.Error = "global execution timeout reached before dispatch"
		}
	}

	grace := time.NewTimer(e.model.Runtime.DrainGrace)
	defer grace.Stop()
	for inFlight > 0 {
		select {
		case out := <-results:
			inFlight--
			e.apply(ctx, run, out)
		case <-grace.C:
			for _, rec := range run.Records {
				if rec.Status == report.StatusRunning {
					rec.Status = report.StatusTimeout
					rec.Overrun = true
					rec.End = e.now()
					rec.Error = "still running when the drain grace expired"
					logger.Error("Abandoning component after drain grace.", "component", rec.ComponentID)
				}
			}
			return
		}
	}
}

func (e *Engine) publishSummary(ctx context.Context, run *report.Run) {
	counts := run.Counts()
	payload := make(map[string]any, len(counts))
	for status, n := range counts {
		payload[string(status)] = n
	}
	severity := notify.SeverityInfo
	if !run.Success {
		severity = notify.SeverityError
	}
	e.notifier.Publish(ctx, notify.Event{
		Kind:     notify.KindRunSummary,
		Severity: severity,
		Message:  fmt.Sprintf("pipeline run %s finished, success=%t", run.ID, run.Success),
		Payload:  payload,
	})
}
