package taskthrottler

import (
	"context"
	"time"

	"github.com/tickloop/go-task-throttler/core"
)

// Task is the unit of work (Closure)
type Task = core.Task

// Engine wires a Scheduler and a ThrottlingHelper behind a facade whose
// methods may be called from any goroutine. Mutations hop onto the control
// thread, which stays the sole writer of scheduler state.
type Engine struct {
	scheduler *core.Scheduler
	throttler *core.ThrottlingHelper
}

// New creates an engine with numSets priority bands. Band 0 drains first.
// A nil config selects all defaults.
func New(numSets int, config *core.SchedulerConfig) *Engine {
	scheduler := core.NewScheduler(numSets, config)
	return &Engine{
		scheduler: scheduler,
		throttler: core.NewThrottlingHelper(scheduler),
	}
}

// CreateQueue registers a queue in setIndex. Call during setup, before work
// is posted.
func (e *Engine) CreateQueue(name string, setIndex int) *core.WorkQueue {
	return e.scheduler.CreateWorkQueue(name, setIndex)
}

// PostTask makes task eligible to run in queue's band.
func (e *Engine) PostTask(queue *core.WorkQueue, task Task) {
	e.onControlThread(func() { e.scheduler.PostTask(queue, task) })
}

// PostDelayedTask runs task no earlier than delay from now. For throttled
// queues delivery batches onto the next pump boundary after the delay.
func (e *Engine) PostDelayedTask(queue *core.WorkQueue, task Task, delay time.Duration) {
	e.onControlThread(func() { e.scheduler.PostDelayedTask(queue, task, delay) })
}

// Throttle places queue under throttling control.
func (e *Engine) Throttle(queue *core.WorkQueue) {
	e.onControlThread(func() { e.throttler.Throttle(queue) })
}

// Unthrottle restores normal scheduling for queue.
func (e *Engine) Unthrottle(queue *core.WorkQueue) {
	e.onControlThread(func() { e.throttler.Unthrottle(queue) })
}

// Flush blocks until every control-thread task posted before the call has
// executed, or ctx is done.
func (e *Engine) Flush(ctx context.Context) error {
	done := make(chan struct{})
	e.scheduler.ControlTaskRunner().PostTask(func(taskCtx context.Context) {
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scheduler exposes the underlying scheduler for control-thread callers.
func (e *Engine) Scheduler() *core.Scheduler { return e.scheduler }

// Throttler exposes the underlying helper for control-thread callers.
func (e *Engine) Throttler() *core.ThrottlingHelper { return e.throttler }

// Stop shuts the engine down. Pending work is dropped.
func (e *Engine) Stop() {
	e.throttler.Close()
	e.scheduler.Shutdown()
}

func (e *Engine) onControlThread(fn func()) {
	runner := e.scheduler.ControlTaskRunner()
	if runner.RunsOnCurrentThread() {
		fn()
		return
	}
	runner.PostTask(func(ctx context.Context) { fn() })
}
