package core

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// SingleThreadTaskRunner binds a dedicated Goroutine to execute tasks
// sequentially. It guarantees that all tasks submitted to it run on the same
// Goroutine (Thread Affinity), which makes it suitable as the scheduler's
// control thread: everything that mutates scheduler state runs here, and
// RunsOnCurrentThread lets callers detect when they need to hop.
type SingleThreadTaskRunner struct {
	// Task queue: Buffered channel for tasks
	workQueue chan Task

	// Lifecycle control
	ctx    context.Context
	cancel context.CancelFunc

	// For graceful shutdown
	stopped chan struct{}
	once    sync.Once
	closed  atomic.Bool

	// Goroutine ID of the run loop, for RunsOnCurrentThread.
	loopGoroutineID atomic.Uint64

	name string
}

// NewSingleThreadTaskRunner creates and starts a new SingleThreadTaskRunner.
// It immediately spawns a dedicated goroutine for task execution.
func NewSingleThreadTaskRunner() *SingleThreadTaskRunner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &SingleThreadTaskRunner{
		workQueue: make(chan Task, 100), // Buffer to avoid blocking senders
		ctx:       ctx,
		cancel:    cancel,
		stopped:   make(chan struct{}),
		name:      "control",
	}

	started := make(chan struct{})
	go r.runLoop(started)
	<-started

	return r
}

// Name returns the name of the task runner
func (r *SingleThreadTaskRunner) Name() string { return r.name }

// SetName sets the name of the task runner
func (r *SingleThreadTaskRunner) SetName(name string) { r.name = name }

// PostTask submits a task for execution
func (r *SingleThreadTaskRunner) PostTask(task Task) {
	// Check if runner is closed to avoid panic on closed channel
	if r.closed.Load() {
		return
	}

	select {
	case <-r.ctx.Done():
		// Runner stopped, drop task
		return
	case r.workQueue <- task:
		// Successfully queued
	}
}

// PostDelayedTask submits a delayed task.
// Uses time.AfterFunc so delayed tasks are independent of queue load; when
// the timer fires the task is injected back into the run loop.
func (r *SingleThreadTaskRunner) PostDelayedTask(task Task, delay time.Duration) {
	if r.closed.Load() {
		return
	}
	if delay <= 0 {
		r.PostTask(task)
		return
	}

	select {
	case <-r.ctx.Done():
		return
	default:
		time.AfterFunc(delay, func() {
			r.PostTask(task)
		})
	}
}

// RunsOnCurrentThread reports whether the caller is executing on the
// runner's dedicated goroutine.
func (r *SingleThreadTaskRunner) RunsOnCurrentThread() bool {
	return r.loopGoroutineID.Load() == curGoroutineID()
}

// IsClosed returns true if the runner has been stopped
func (r *SingleThreadTaskRunner) IsClosed() bool {
	return r.closed.Load()
}

// Stop stops the runner and releases resources
func (r *SingleThreadTaskRunner) Stop() {
	r.once.Do(func() {
		// 1. Mark as closed
		r.closed.Store(true)

		// 2. Cancel context to stop accepting new tasks
		r.cancel()

		// 3. Wait for runLoop to finish (ensures current task completes)
		<-r.stopped
	})
}

// runLoop is the core of this runner, it occupies a dedicated goroutine
func (r *SingleThreadTaskRunner) runLoop(started chan<- struct{}) {
	defer close(r.stopped) // Signal that Stop() can return

	r.loopGoroutineID.Store(curGoroutineID())
	close(started)

	// Create context with taskRunnerKey for GetCurrentTaskRunner
	runCtx := context.WithValue(r.ctx, taskRunnerKey, r)

	for {
		select {
		case task := <-r.workQueue:
			// Execute task and catch panics
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						fmt.Printf("[SingleThreadTaskRunner %s] Panic: %v\n", r.name, rec)
					}
				}()
				task(runCtx)
			}()

		case <-r.ctx.Done():
			// Received stop signal; exit immediately
			return
		}
	}
}

// =============================================================================
// Synchronization Methods
// =============================================================================

// WaitIdle blocks until all currently queued tasks have completed execution.
// This is implemented by posting a barrier task and waiting for it to execute.
//
// Note: Tasks posted after WaitIdle is called are not waited for.
func (r *SingleThreadTaskRunner) WaitIdle(ctx context.Context) error {
	if r.IsClosed() {
		return fmt.Errorf("runner is closed")
	}

	done := make(chan struct{})

	// Post a barrier task that closes the done channel
	r.PostTask(func(taskCtx context.Context) {
		close(done)
	})

	// Wait for barrier task or context cancellation
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// curGoroutineID parses the current goroutine's ID out of the runtime.Stack
// header ("goroutine 123 [running]:"). Slow, but only used on notification
// paths that are rare by construction.
func curGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	header := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(header, ' '); i > 0 {
		if id, err := strconv.ParseUint(string(header[:i]), 10, 64); err == nil {
			return id
		}
	}
	return 0
}
