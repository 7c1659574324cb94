package core

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"
)

// Scheduler owns the work queues, the per-set selection index, and the real
// time domain, and drives task execution on a single control thread.
//
// Threading model: every method that mutates scheduler state must run on the
// control thread. The only sanctioned cross-thread entry points are the
// TaskRunner itself and ThrottlingHelper.OnTimeDomainHasImmediateWork, which
// hops by re-posting. The root package's Engine wraps this contract for
// callers on arbitrary goroutines.
type Scheduler struct {
	runner       TaskRunner
	ownsRunner   bool
	clock        clock.PassiveClock
	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler

	gen        *EnqueueOrderGenerator
	sets       *WorkQueueSets
	queues     []*WorkQueue
	realDomain *RealTimeDomain
	domains    []TimeDomain

	doWorkPosted atomic.Bool
	// nextDelayedDoWork coalesces delayed DoWork posts, earliest-wins.
	// Control-thread confined.
	nextDelayedDoWork time.Time

	shuttingDown atomic.Bool
}

// NewScheduler creates a scheduler with numSets priority bands. Band 0 is
// drained first. A nil config selects all defaults, including a dedicated
// control runner owned (and stopped) by the scheduler.
func NewScheduler(numSets int, config *SchedulerConfig) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config == nil {
		config = defaults
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Metrics == nil {
		config.Metrics = defaults.Metrics
	}
	if config.PanicHandler == nil {
		config.PanicHandler = defaults.PanicHandler
	}

	s := &Scheduler{
		clock:        config.Clock,
		logger:       config.Logger,
		metrics:      config.Metrics,
		panicHandler: config.PanicHandler,
		gen:          NewEnqueueOrderGenerator(),
		sets:         NewWorkQueueSets(numSets),
	}
	if config.TaskRunner != nil {
		s.runner = config.TaskRunner
	} else {
		s.runner = NewSingleThreadTaskRunner()
		s.ownsRunner = true
	}
	s.realDomain = NewRealTimeDomain(s.clock, s, s.metrics)
	s.domains = append(s.domains, s.realDomain)
	return s
}

func (s *Scheduler) ControlTaskRunner() TaskRunner   { return s.runner }
func (s *Scheduler) Clock() clock.PassiveClock       { return s.clock }
func (s *Scheduler) Logger() Logger                  { return s.logger }
func (s *Scheduler) Metrics() Metrics                { return s.metrics }
func (s *Scheduler) RealTimeDomain() *RealTimeDomain { return s.realDomain }
func (s *Scheduler) NumSets() int                    { return s.sets.NumSets() }
func (s *Scheduler) QueueSets() *WorkQueueSets       { return s.sets }

// CreateWorkQueue registers a queue in setIndex, bound to the real time
// domain with automatic pumping. Queues are created during setup, before
// work is posted.
func (s *Scheduler) CreateWorkQueue(name string, setIndex int) *WorkQueue {
	queue := newWorkQueue(name, s.gen, s.realDomain)
	s.sets.AssignQueueToSet(queue, setIndex)
	s.queues = append(s.queues, queue)
	s.logger.Debug("work queue created", F("queue", name), F("set", setIndex))
	return queue
}

// PostTask makes task eligible to run in queue's band. For manually pumped
// queues the task parks until a pump; the queue's time domain is notified so
// the throttler can arm one.
func (s *Scheduler) PostTask(queue *WorkQueue, task Task) {
	if s.shuttingDown.Load() {
		s.metrics.RecordTaskRejected(queue.Name(), "shutting down")
		return
	}
	wasVisible := queue.HasFrontTask()
	queue.Push(task)
	if queue.PumpPolicy() == PumpPolicyManual {
		queue.TimeDomain().OnQueueHasImmediateWork(queue)
		return
	}
	if !wasVisible {
		s.sets.OnPushQueue(queue)
	}
	s.MaybeScheduleImmediateWork()
}

// PostDelayedTask parks task until queue's time domain reaches its run time.
func (s *Scheduler) PostDelayedTask(queue *WorkQueue, task Task, delay time.Duration) {
	if s.shuttingDown.Load() {
		s.metrics.RecordTaskRejected(queue.Name(), "shutting down")
		return
	}
	if delay <= 0 {
		s.PostTask(queue, task)
		return
	}
	lazyNow := NewLazyNow(s.clock)
	domain := queue.TimeDomain()
	runTime := domain.ComputeDelayedRunTime(domain.Now(), delay)
	queue.PushDelayed(task, runTime)
	domain.ScheduleDelayedWork(queue, runTime, lazyNow)
}

// PumpQueue makes queue's due and parked work visible to the selector:
// delayed tasks that reached their run time in the queue's domain move in
// first, then the incoming lane promotes wholesale.
func (s *Scheduler) PumpQueue(queue *WorkQueue) {
	queue.moveReadyDelayedTasks(queue.TimeDomain().Now())
	hadFront := queue.HasFrontTask()
	queue.moveIncomingToReady()
	if !hadFront && queue.HasFrontTask() {
		s.sets.OnPushQueue(queue)
	}
}

// SetQueueTimeDomain rebinds queue to domain, migrating its pending wake-up
// so delayed work is not lost across the move.
func (s *Scheduler) SetQueueTimeDomain(queue *WorkQueue, domain TimeDomain) {
	old := queue.TimeDomain()
	if old == domain {
		return
	}
	old.UnregisterQueue(queue)
	queue.timeDomain = domain
	if runTime, ok := queue.NextDelayedRunTime(); ok {
		domain.ScheduleDelayedWork(queue, runTime, NewLazyNow(s.clock))
	}
}

// SetQueuePumpPolicy switches how pushes become visible. Flipping back to
// auto does not retroactively promote parked work; callers pump explicitly
// when they need that (see ThrottlingHelper.Unthrottle).
func (s *Scheduler) SetQueuePumpPolicy(queue *WorkQueue, policy PumpPolicy) {
	queue.pumpPolicy = policy
}

func (s *Scheduler) RegisterTimeDomain(domain TimeDomain) {
	s.domains = append(s.domains, domain)
}

func (s *Scheduler) UnregisterTimeDomain(domain TimeDomain) {
	for i, d := range s.domains {
		if d == domain {
			s.domains = append(s.domains[:i], s.domains[i+1:]...)
			return
		}
	}
}

// MaybeScheduleImmediateWork posts a DoWork unless one is already pending.
func (s *Scheduler) MaybeScheduleImmediateWork() {
	if s.shuttingDown.Load() {
		return
	}
	if !s.doWorkPosted.CompareAndSwap(false, true) {
		return
	}
	s.runner.PostTask(func(ctx context.Context) { s.DoWork(ctx) })
}

// MaybeScheduleDelayedWork implements SchedulerDelegate with earliest-wins
// coalescing: a DoWork already scheduled at or before the new run time
// absorbs the request. A superseded later post is left to fire as a no-op.
func (s *Scheduler) MaybeScheduleDelayedWork(lazyNow *LazyNow, delay time.Duration) {
	if s.shuttingDown.Load() {
		return
	}
	if delay < 0 {
		delay = 0
	}
	runTime := lazyNow.Now().Add(delay)
	if !s.nextDelayedDoWork.IsZero() && !runTime.Before(s.nextDelayedDoWork) {
		return
	}
	s.nextDelayedDoWork = runTime
	s.runner.PostDelayedTask(func(ctx context.Context) {
		s.nextDelayedDoWork = time.Time{}
		s.DoWork(ctx)
	}, delay)
}

// DoWork is one control-thread pass: wake due delayed work, pump auto-policy
// queues, then run ready tasks oldest-first within each band, band 0 first.
// Finally, arrange the wake-up for whatever delayed work remains.
func (s *Scheduler) DoWork(ctx context.Context) {
	s.doWorkPosted.Store(false)
	if s.shuttingDown.Load() {
		return
	}

	for _, domain := range s.domains {
		domain.WakeUpReadyQueues()
	}
	for _, queue := range s.queues {
		if queue.PumpPolicy() == PumpPolicyAuto && len(queue.incoming) > 0 {
			s.PumpQueue(queue)
		}
	}

	for {
		queue, ok := s.selectOldestQueue()
		if !ok {
			break
		}
		s.runTask(ctx, queue)
	}

	needsContinuation := false
	for _, domain := range s.domains {
		if domain.MaybeAdvanceTime() {
			needsContinuation = true
		}
	}
	if needsContinuation {
		s.MaybeScheduleImmediateWork()
	}
}

// selectOldestQueue picks the next queue to run: the oldest ready task in
// the highest non-empty band.
func (s *Scheduler) selectOldestQueue() (*WorkQueue, bool) {
	for i := 0; i < s.sets.NumSets(); i++ {
		if queue, ok := s.sets.GetOldestQueueInSet(i); ok {
			return queue, true
		}
	}
	return nil, false
}

func (s *Scheduler) runTask(ctx context.Context, queue *WorkQueue) {
	task, err := queue.PopFront()
	invariant(err == nil, "runTask: selected queue %q is empty", queue.Name())
	s.sets.OnPopQueue(queue)
	s.metrics.RecordQueueDepth(queue.Name(), queue.ReadyLen())

	start := s.clock.Now()
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				stack := debug.Stack()
				s.logger.Error("task panicked", F("queue", queue.Name()), F("panic", rec))
				s.panicHandler.HandlePanic(ctx, queue.Name(), rec, stack)
				s.metrics.RecordTaskPanic(queue.Name(), rec)
			}
		}()
		task(ctx)
	}()
	s.metrics.RecordTaskDuration(queue.Name(), s.clock.Since(start))
}

// Shutdown stops accepting work. A scheduler that created its own control
// runner stops it as well; an injected runner stays up for its owner.
func (s *Scheduler) Shutdown() {
	if !s.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	s.logger.Info("scheduler shutting down")
	if s.ownsRunner {
		if r, ok := s.runner.(*SingleThreadTaskRunner); ok {
			r.Stop()
		}
	}
}
