package core

import (
	"container/heap"
	"time"

	"k8s.io/utils/clock"
)

// SchedulerDelegate arranges a future DoWork pass on behalf of a time domain.
type SchedulerDelegate interface {
	// MaybeScheduleDelayedWork asks for a DoWork after delay. The delegate is
	// free to coalesce the request with an earlier pending one.
	MaybeScheduleDelayedWork(lazyNow *LazyNow, delay time.Duration)
}

// TimeDomain is a notion of "now" shared by a group of work queues, plus the
// bookkeeping of the delayed wake-ups those queues have requested. The real
// domain follows the wall clock; a throttled domain's now only moves when it
// is explicitly advanced, so its queues perceive time at pump boundaries.
type TimeDomain interface {
	Name() string

	// Now returns the domain's current time.
	Now() time.Time

	// ComputeDelayedRunTime converts a delay into the absolute run time a
	// delayed task should target.
	ComputeDelayedRunTime(domainNow time.Time, delay time.Duration) time.Time

	// ScheduleDelayedWork records a wake-up for queue at runTime, and
	// requests an actual wake-up iff runTime is sooner than everything
	// already pending in this domain.
	ScheduleDelayedWork(queue *WorkQueue, runTime time.Time, lazyNow *LazyNow)

	// NextScheduledRunTime returns the earliest pending wake-up.
	NextScheduledRunTime() (time.Time, bool)

	// WakeUpReadyQueues consumes every wake-up due at the domain's now and
	// moves the corresponding queues' due delayed tasks into their incoming
	// lanes.
	WakeUpReadyQueues()

	// ClearExpiredWakeups drops wake-ups whose deadline has passed so
	// NextScheduledRunTime reflects only genuinely future work.
	ClearExpiredWakeups(now time.Time)

	// UnregisterQueue forgets every wake-up recorded for queue. Used when a
	// queue migrates between domains.
	UnregisterQueue(queue *WorkQueue)

	// OnQueueHasImmediateWork is invoked when an immediate task lands in a
	// manually pumped queue belonging to this domain.
	OnQueueHasImmediateWork(queue *WorkQueue)

	// MaybeAdvanceTime reports whether delayed work is already due. When it
	// is not, the domain arranges a future wake-up instead and reports false.
	MaybeAdvanceTime() bool
}

// =============================================================================
// wakeupHeap: Min-heap of (run time, queue) wake-up requests
// =============================================================================

type scheduledWakeup struct {
	runTime time.Time
	queue   *WorkQueue
	index   int // for heap interface
}

type wakeupHeap []*scheduledWakeup

func (h wakeupHeap) Len() int           { return len(h) }
func (h wakeupHeap) Less(i, j int) bool { return h[i].runTime.Before(h[j].runTime) }
func (h wakeupHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *wakeupHeap) Push(x any) {
	n := len(*h)
	item := x.(*scheduledWakeup)
	item.index = n
	*h = append(*h, item)
}

func (h *wakeupHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *wakeupHeap) Peek() *scheduledWakeup {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// =============================================================================
// timeDomainBase: Wake-up bookkeeping shared by every domain
// =============================================================================

// timeDomainBase implements the wake-up heap behind every TimeDomain.
// requestWakeup is the concrete domain's hook; per the contract it is only
// invoked when the new deadline is sooner than every pending one. The
// monotonicity precondition lives here, with the caller, and concrete
// domains do not re-validate it.
type timeDomainBase struct {
	wakeups       wakeupHeap
	domainNow     func() time.Time
	requestWakeup func(lazyNow *LazyNow, delay time.Duration)
}

func (b *timeDomainBase) ScheduleDelayedWork(queue *WorkQueue, runTime time.Time, lazyNow *LazyNow) {
	earliest := b.wakeups.Len() == 0 || runTime.Before(b.wakeups.Peek().runTime)
	heap.Push(&b.wakeups, &scheduledWakeup{runTime: runTime, queue: queue})
	if earliest {
		b.requestWakeup(lazyNow, runTime.Sub(lazyNow.Now()))
	}
}

func (b *timeDomainBase) NextScheduledRunTime() (time.Time, bool) {
	item := b.wakeups.Peek()
	if item == nil {
		return time.Time{}, false
	}
	return item.runTime, true
}

func (b *timeDomainBase) WakeUpReadyQueues() {
	now := b.domainNow()
	for b.wakeups.Len() > 0 && !b.wakeups.Peek().runTime.After(now) {
		wakeup := heap.Pop(&b.wakeups).(*scheduledWakeup)
		wakeup.queue.moveReadyDelayedTasks(now)
	}
}

func (b *timeDomainBase) ClearExpiredWakeups(now time.Time) {
	for b.wakeups.Len() > 0 && !b.wakeups.Peek().runTime.After(now) {
		heap.Pop(&b.wakeups)
	}
}

func (b *timeDomainBase) UnregisterQueue(queue *WorkQueue) {
	kept := b.wakeups[:0]
	for _, wakeup := range b.wakeups {
		if wakeup.queue != queue {
			kept = append(kept, wakeup)
		}
	}
	for i := len(kept); i < len(b.wakeups); i++ {
		b.wakeups[i] = nil
	}
	b.wakeups = kept
	heap.Init(&b.wakeups)
}

// =============================================================================
// RealTimeDomain: The wall-clock domain normal queues live in
// =============================================================================

type RealTimeDomain struct {
	timeDomainBase
	clock    clock.PassiveClock
	delegate SchedulerDelegate
	metrics  Metrics
}

func NewRealTimeDomain(c clock.PassiveClock, delegate SchedulerDelegate, metrics Metrics) *RealTimeDomain {
	if metrics == nil {
		metrics = &NilMetrics{}
	}
	d := &RealTimeDomain{clock: c, delegate: delegate, metrics: metrics}
	d.timeDomainBase = timeDomainBase{
		domainNow:     d.Now,
		requestWakeup: d.doRequestWakeup,
	}
	return d
}

func (d *RealTimeDomain) Name() string { return "RealTimeDomain" }

func (d *RealTimeDomain) Now() time.Time { return d.clock.Now() }

func (d *RealTimeDomain) ComputeDelayedRunTime(domainNow time.Time, delay time.Duration) time.Time {
	return domainNow.Add(delay)
}

// doRequestWakeup is only called when the scheduled run time is sooner than
// any previously scheduled one, or no wake-up is outstanding.
func (d *RealTimeDomain) doRequestWakeup(lazyNow *LazyNow, delay time.Duration) {
	d.metrics.RecordWakeupRequested(d.Name())
	d.delegate.MaybeScheduleDelayedWork(lazyNow, delay)
}

// OnQueueHasImmediateWork is a no-op: real-domain queues are auto-pumped and
// the scheduler signals itself directly on post.
func (d *RealTimeDomain) OnQueueHasImmediateWork(queue *WorkQueue) {}

// MaybeAdvanceTime reports true when the next scheduled run time has already
// passed (the caller should run work now); otherwise it arranges a future
// DoWork and reports false.
func (d *RealTimeDomain) MaybeAdvanceTime() bool {
	next, ok := d.NextScheduledRunTime()
	if !ok {
		return false
	}
	lazyNow := NewLazyNow(d.clock)
	if !lazyNow.Now().Before(next) {
		return true
	}
	// The next task is sometime in the future; make sure a DoWork runs it.
	d.delegate.MaybeScheduleDelayedWork(lazyNow, next.Sub(lazyNow.Now()))
	return false
}
