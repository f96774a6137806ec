package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vk/conductor/internal/task"
)

// ExecutionRecord holds the start and end times for one component execution.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Recorder collects execution order and timing across stub tasks. Safe for
// concurrent use by pool workers.
type Recorder struct {
	mu    sync.Mutex
	order []string
	times map[string]*ExecutionRecord
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{times: make(map[string]*ExecutionRecord)}
}

func (r *Recorder) record(id string, start, end time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, id)
	r.times[id] = &ExecutionRecord{Start: start, End: end}
}

// Order returns component ids in completion order.
func (r *Recorder) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Times returns the execution record for a component, or nil.
func (r *Recorder) Times(id string) *ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.times[id]
}

// Ran reports whether the component executed.
func (r *Recorder) Ran(id string) bool {
	return r.Times(id) != nil
}

// Overlap reports whether two recorded executions ran concurrently.
func (r *Recorder) Overlap(a, b string) bool {
	ra, rb := r.Times(a), r.Times(b)
	if ra == nil || rb == nil {
		return false
	}
	return ra.Start.Before(rb.End) && rb.Start.Before(ra.End)
}

// NoopTask records its execution and succeeds immediately.
func NoopTask(r *Recorder) task.Task {
	return SleepTask(r, 0)
}

// SleepTask records its execution, sleeping for d in between. The sleep does
// not observe cancellation, which keeps timings deterministic for short runs.
func SleepTask(r *Recorder, d time.Duration) task.Task {
	return task.Func(func(ctx context.Context, rc *task.RunContext) (*task.Result, error) {
		start := time.Now()
		if d > 0 {
			time.Sleep(d)
		}
		r.record(rc.ComponentID, start, time.Now())
		return &task.Result{RecordCount: -1}, nil
	})
}

// FailTask records its execution and fails with the given message.
func FailTask(r *Recorder, msg string) task.Task {
	return task.Func(func(ctx context.Context, rc *task.RunContext) (*task.Result, error) {
		now := time.Now()
		r.record(rc.ComponentID, now, now)
		return nil, errors.New(msg)
	})
}

// PanicTask panics mid-execution.
func PanicTask(msg string) task.Task {
	return task.Func(func(ctx context.Context, rc *task.RunContext) (*task.Result, error) {
		panic(msg)
	})
}

// BlockTask waits for ctx cancellation and returns its error, imitating a
// cooperative long-running task.
func BlockTask() task.Task {
	return task.Func(func(ctx context.Context, rc *task.RunContext) (*task.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

// QuotaTask acquires the component's declared endpoints once each before
// recording success, exercising mid-run quota exhaustion.
func QuotaTask(r *Recorder) task.Task {
	return task.Func(func(ctx context.Context, rc *task.RunContext) (*task.Result, error) {
		for _, ep := range rc.Endpoints {
			if err := rc.Quota.Acquire(ep); err != nil {
				return nil, err
			}
		}
		now := time.Now()
		r.record(rc.ComponentID, now, now)
		return &task.Result{RecordCount: -1}, nil
	})
}

// CountTask records success and reports a fixed record count.
func CountTask(r *Recorder, count int) task.Task {
	return task.Func(func(ctx context.Context, rc *task.RunContext) (*task.Result, error) {
		now := time.Now()
		r.record(rc.ComponentID, now, now)
		return &task.Result{RecordCount: count}, nil
	})
}
