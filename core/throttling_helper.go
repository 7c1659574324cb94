package core

import (
	"context"
	"time"

	"k8s.io/utils/clock"
)

// ThrottlingHelper limits how often a designated subset of queues may wake
// the control thread: every wake-up they request coalesces onto one-second-
// aligned pump ticks, and a single recurring pump drains all throttled
// queues and re-arms itself while delayed work remains. Ordering within each
// queue is preserved; across queues a pump drains each queue exactly once in
// no particular order.
type ThrottlingHelper struct {
	scheduler  *Scheduler
	taskRunner TaskRunner
	clock      clock.PassiveClock
	timeDomain *ThrottledTimeDomain
	logger     Logger
	metrics    Metrics

	throttledQueues map[*WorkQueue]struct{}

	// pendingPumpRunTime is zero when no pump is armed. When non-zero it
	// always corresponds to a task actually posted on the control runner,
	// and is cleared exactly when that task runs or is superseded.
	pendingPumpRunTime time.Time
	pumpTask           *CancelableTask
	forwardImmediate   Task
}

var _ TimeDomainObserver = (*ThrottlingHelper)(nil)

// NewThrottlingHelper creates a helper bound to scheduler's control runner
// and clock, and registers its throttled time domain with the scheduler.
func NewThrottlingHelper(scheduler *Scheduler) *ThrottlingHelper {
	h := &ThrottlingHelper{
		scheduler:       scheduler,
		taskRunner:      scheduler.ControlTaskRunner(),
		clock:           scheduler.Clock(),
		logger:          scheduler.Logger(),
		metrics:         scheduler.Metrics(),
		throttledQueues: make(map[*WorkQueue]struct{}),
	}
	h.timeDomain = NewThrottledTimeDomain(h, h.clock, h.metrics)
	h.pumpTask = NewCancelableTask(h.PumpThrottledTasks)
	h.forwardImmediate = func(ctx context.Context) { h.OnTimeDomainHasImmediateWork() }
	scheduler.RegisterTimeDomain(h.timeDomain)
	return h
}

// Close cancels any armed pump and unregisters the throttled time domain.
func (h *ThrottlingHelper) Close() {
	h.pumpTask.Cancel()
	h.pendingPumpRunTime = time.Time{}
	h.scheduler.UnregisterTimeDomain(h.timeDomain)
}

func (h *ThrottlingHelper) TimeDomain() *ThrottledTimeDomain { return h.timeDomain }

// IsThrottled reports whether queue is currently under throttling control.
func (h *ThrottlingHelper) IsThrottled(queue *WorkQueue) bool {
	_, ok := h.throttledQueues[queue]
	return ok
}

// PendingPumpRunTime returns the run time of the armed pump, zero when none.
func (h *ThrottlingHelper) PendingPumpRunTime() time.Time { return h.pendingPumpRunTime }

// Throttle places queue under throttling control: its time domain becomes
// the virtual throttled domain and it stops auto-draining on push. A queue
// that already has pending work immediately triggers the matching "has work"
// path so a pump gets armed without waiting for a new post.
func (h *ThrottlingHelper) Throttle(queue *WorkQueue) {
	h.throttledQueues[queue] = struct{}{}

	h.scheduler.SetQueuePumpPolicy(queue, PumpPolicyManual)
	h.scheduler.SetQueueTimeDomain(queue, h.timeDomain)
	h.logger.Debug("queue throttled", F("queue", queue.Name()))

	if !queue.IsEmpty() {
		if queue.HasPendingImmediateWork() {
			h.OnTimeDomainHasImmediateWork()
		} else {
			h.OnTimeDomainHasDelayedWork()
		}
	}
}

// Unthrottle restores the real time domain and automatic pumping, and lets
// any parked work run on the next scheduler pass.
func (h *ThrottlingHelper) Unthrottle(queue *WorkQueue) {
	delete(h.throttledQueues, queue)

	h.scheduler.SetQueueTimeDomain(queue, h.scheduler.RealTimeDomain())
	h.scheduler.SetQueuePumpPolicy(queue, PumpPolicyAuto)
	h.logger.Debug("queue unthrottled", F("queue", queue.Name()))

	if queue.HasPendingImmediateWork() {
		h.scheduler.PumpQueue(queue)
		h.scheduler.MaybeScheduleImmediateWork()
	}
}

// OnTimeDomainHasImmediateWork schedules a pump for "now": immediate work is
// never artificially delayed a full second, but still coalesces with an
// already imminent pump. Forwarded to the control thread if called from any
// other goroutine.
func (h *ThrottlingHelper) OnTimeDomainHasImmediateWork() {
	if !h.taskRunner.RunsOnCurrentThread() {
		h.taskRunner.PostTask(h.forwardImmediate)
		return
	}
	now := h.clock.Now()
	h.MaybeSchedulePumpThrottledTasks(now, now)
}

// OnTimeDomainHasDelayedWork schedules a pump for the throttled domain's
// next scheduled run time, which must exist.
func (h *ThrottlingHelper) OnTimeDomainHasDelayedWork() {
	next, ok := h.timeDomain.NextScheduledRunTime()
	if !ok {
		panic(ErrNoScheduledWork)
	}
	h.MaybeSchedulePumpThrottledTasks(h.clock.Now(), next)
}

// PumpThrottledTasks is the recurring tick: advance the throttled domain to
// now, pump every throttled queue with pending work exactly once, then
// re-arm the next pump if delayed work remains.
func (h *ThrottlingHelper) PumpThrottledTasks() {
	h.pendingPumpRunTime = time.Time{}

	now := h.clock.Now()
	h.timeDomain.AdvanceTo(now)
	pumped := 0
	for queue := range h.throttledQueues {
		if queue.IsEmpty() {
			continue
		}
		h.scheduler.PumpQueue(queue)
		pumped++
	}
	// Keep NextScheduledRunTime honest before deciding on the next pump.
	h.timeDomain.ClearExpiredWakeups(now)

	h.metrics.RecordThrottledPump(pumped)
	h.logger.Debug("throttled pump", F("queues", pumped))
	if pumped > 0 {
		h.scheduler.MaybeScheduleImmediateWork()
	}

	// A future non-delayed post lands via OnTimeDomainHasImmediateWork, so
	// only remaining delayed work needs a pre-armed pump here.
	if next, ok := h.timeDomain.NextScheduledRunTime(); ok {
		h.MaybeSchedulePumpThrottledTasks(now, next)
	}
}

// ThrottledRunTime rounds t up to the next exact one-second boundary
// relative to the epoch. A time already on a boundary still moves a full
// second forward, so a pump never fires in the same instant as the request
// that asked for it.
func ThrottledRunTime(t time.Time) time.Time {
	const granularity = time.Second
	return t.Add(granularity - time.Duration(t.UnixNano())%granularity)
}

// MaybeSchedulePumpThrottledTasks arms a pump at the throttled run time
// derived from unthrottledRunTime, unless an equal-or-earlier pump is
// already pending, in which case the request coalesces into it. A pending
// later pump is cancelled and superseded.
func (h *ThrottlingHelper) MaybeSchedulePumpThrottledTasks(now, unthrottledRunTime time.Time) {
	throttledRunTime := ThrottledRunTime(unthrottledRunTime)
	if !h.pendingPumpRunTime.IsZero() && !throttledRunTime.Before(h.pendingPumpRunTime) {
		return
	}

	h.pendingPumpRunTime = throttledRunTime

	h.pumpTask.Cancel()
	h.logger.Debug("throttled pump armed",
		F("run_time", throttledRunTime), F("delay", throttledRunTime.Sub(now)))
	h.taskRunner.PostDelayedTask(h.pumpTask.Task(), throttledRunTime.Sub(now))
}
