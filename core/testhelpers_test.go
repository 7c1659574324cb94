package core

import (
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// fakeTaskRunner records posts instead of spawning a goroutine so tests can
// drive the control thread deterministically against a fake clock.
type fakeTaskRunner struct {
	clock clock.PassiveClock
	tasks []fakePost

	// onLoop is what RunsOnCurrentThread reports. Tests default to true:
	// the test goroutine plays the control thread.
	onLoop bool
}

type fakePost struct {
	task    Task
	runTime time.Time
}

func newFakeTaskRunner(c clock.PassiveClock) *fakeTaskRunner {
	return &fakeTaskRunner{clock: c, onLoop: true}
}

func (r *fakeTaskRunner) PostTask(task Task) {
	r.tasks = append(r.tasks, fakePost{task: task, runTime: r.clock.Now()})
}

func (r *fakeTaskRunner) PostDelayedTask(task Task, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	r.tasks = append(r.tasks, fakePost{task: task, runTime: r.clock.Now().Add(delay)})
}

func (r *fakeTaskRunner) RunsOnCurrentThread() bool { return r.onLoop }

// RunDueTasks executes every post whose run time has arrived, in post order,
// including posts made by the tasks themselves. Returns how many ran.
func (r *fakeTaskRunner) RunDueTasks(ctx context.Context) int {
	ran := 0
	for {
		idx := -1
		for i, p := range r.tasks {
			if !p.runTime.After(r.clock.Now()) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ran
		}
		post := r.tasks[idx]
		r.tasks = append(r.tasks[:idx], r.tasks[idx+1:]...)
		post.task(ctx)
		ran++
	}
}

func (r *fakeTaskRunner) pendingCount() int { return len(r.tasks) }

func (r *fakeTaskRunner) nextRunTime() (time.Time, bool) {
	if len(r.tasks) == 0 {
		return time.Time{}, false
	}
	earliest := r.tasks[0].runTime
	for _, p := range r.tasks[1:] {
		if p.runTime.Before(earliest) {
			earliest = p.runTime
		}
	}
	return earliest, true
}

// recordingMetrics counts Metrics calls for assertions.
type recordingMetrics struct {
	mu             sync.Mutex
	durations      int
	panics         int
	rejected       map[string]int
	throttledPumps int
	pumpedQueues   int
	wakeups        map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		rejected: make(map[string]int),
		wakeups:  make(map[string]int),
	}
}

func (m *recordingMetrics) RecordTaskDuration(queueName string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations++
}

func (m *recordingMetrics) RecordTaskPanic(queueName string, panicInfo any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics++
}

func (m *recordingMetrics) RecordQueueDepth(queueName string, depth int) {}

func (m *recordingMetrics) RecordTaskRejected(queueName string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[queueName]++
}

func (m *recordingMetrics) RecordThrottledPump(queuesPumped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.throttledPumps++
	m.pumpedQueues += queuesPumped
}

func (m *recordingMetrics) RecordWakeupRequested(domainName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wakeups[domainName]++
}

func noopTask(ctx context.Context) {}

// expectInvariantPanic fails the test unless fn panics with *InvariantError.
func expectInvariantPanic(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, fn func()) {
	t.Helper()
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatalf("expected invariant panic, got none")
		}
		if _, ok := rec.(*InvariantError); !ok {
			t.Fatalf("panic value = %v (%T), want *InvariantError", rec, rec)
		}
	}()
	fn()
}
