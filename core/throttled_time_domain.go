package core

import (
	"time"

	"k8s.io/utils/clock"
)

// TimeDomainObserver is notified when work appears in an observed domain.
// The ThrottlingHelper implements it to intercept wake-ups for the queues it
// throttles.
type TimeDomainObserver interface {
	OnTimeDomainHasImmediateWork()
	OnTimeDomainHasDelayedWork()
}

// ThrottledTimeDomain is a virtual domain whose now only moves forward when
// AdvanceTo is called, decoupled from wall-clock ticking. Queues bound to it
// perceive time exclusively at pump boundaries, which is what batches their
// timer firing.
type ThrottledTimeDomain struct {
	timeDomainBase
	clock    clock.PassiveClock
	observer TimeDomainObserver
	metrics  Metrics
	now      time.Time
}

func NewThrottledTimeDomain(observer TimeDomainObserver, c clock.PassiveClock, metrics Metrics) *ThrottledTimeDomain {
	if metrics == nil {
		metrics = &NilMetrics{}
	}
	d := &ThrottledTimeDomain{
		clock:    c,
		observer: observer,
		metrics:  metrics,
		now:      c.Now(),
	}
	d.timeDomainBase = timeDomainBase{
		domainNow:     d.Now,
		requestWakeup: d.doRequestWakeup,
	}
	return d
}

func (d *ThrottledTimeDomain) Name() string { return "ThrottledTimeDomain" }

// Now returns the virtual time. It changes only through AdvanceTo.
func (d *ThrottledTimeDomain) Now() time.Time { return d.now }

// AdvanceTo moves the virtual now forward. Time never runs backwards; an
// older timestamp is ignored.
func (d *ThrottledTimeDomain) AdvanceTo(t time.Time) {
	if t.After(d.now) {
		d.now = t
	}
}

// ComputeDelayedRunTime targets wall-clock time: delays requested by
// throttled queues are still measured in real time, only their delivery is
// batched onto pump ticks.
func (d *ThrottledTimeDomain) ComputeDelayedRunTime(domainNow time.Time, delay time.Duration) time.Time {
	return d.clock.Now().Add(delay)
}

// doRequestWakeup runs after the wake-up is recorded, so the observer can
// read NextScheduledRunTime immediately.
func (d *ThrottledTimeDomain) doRequestWakeup(lazyNow *LazyNow, delay time.Duration) {
	d.metrics.RecordWakeupRequested(d.Name())
	d.observer.OnTimeDomainHasDelayedWork()
}

func (d *ThrottledTimeDomain) OnQueueHasImmediateWork(queue *WorkQueue) {
	d.observer.OnTimeDomainHasImmediateWork()
}

// MaybeAdvanceTime always reports false: only the pump advances this domain.
func (d *ThrottledTimeDomain) MaybeAdvanceTime() bool { return false }
