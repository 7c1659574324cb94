package core

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"
)

// =============================================================================
// TaskRunner: Task submission interface
// =============================================================================

// TaskRunner posts closures for later execution on the thread it owns.
// Posting never blocks the caller; the work happens when the owning loop
// reaches the task.
type TaskRunner interface {
	PostTask(task Task)
	PostDelayedTask(task Task, delay time.Duration)

	// RunsOnCurrentThread reports whether the caller is already executing on
	// the runner's dedicated goroutine. Used by the throttler's cross-thread
	// guard to decide whether a notification needs to hop.
	RunsOnCurrentThread() bool
}

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context from the panicked task
	// - queueName: The name of the work queue the task was popped from
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, queueName string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, queueName string, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Queue %s] Panic: %v\nStack trace:\n%s", queueName, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(queueName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(queueName string, panicInfo any)

	// RecordQueueDepth records the number of ready tasks left in a queue.
	RecordQueueDepth(queueName string, depth int)

	// RecordTaskRejected records that a task was rejected (e.g., during shutdown).
	RecordTaskRejected(queueName string, reason string)

	// RecordThrottledPump records one throttled pump tick and how many queues
	// it drained.
	RecordThrottledPump(queuesPumped int)

	// RecordWakeupRequested records that a time domain asked for a wake-up.
	RecordWakeupRequested(domainName string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(queueName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(queueName string, panicInfo any)             {}
func (m *NilMetrics) RecordQueueDepth(queueName string, depth int)                {}
func (m *NilMetrics) RecordTaskRejected(queueName string, reason string)          {}
func (m *NilMetrics) RecordThrottledPump(queuesPumped int)                        {}
func (m *NilMetrics) RecordWakeupRequested(domainName string)                     {}

// =============================================================================
// SchedulerConfig: Configuration for Scheduler
// =============================================================================

// SchedulerConfig holds configuration options for Scheduler.
// All fields are optional; if not provided, default implementations are used.
type SchedulerConfig struct {
	// Clock supplies "now". Defaults to the real clock. Tests inject a fake.
	Clock clock.PassiveClock

	// TaskRunner is the control-thread runner the scheduler posts DoWork to.
	// Defaults to a fresh SingleThreadTaskRunner owned by the scheduler.
	TaskRunner TaskRunner

	// Logger receives structured scheduler logs. Defaults to NoOpLogger.
	Logger Logger

	// Metrics is called to record scheduler metrics. Defaults to NilMetrics.
	Metrics Metrics

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler
}

// DefaultSchedulerConfig returns a config with default handlers.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Clock:        clock.RealClock{},
		Logger:       &NoOpLogger{},
		Metrics:      &NilMetrics{},
		PanicHandler: &DefaultPanicHandler{},
	}
}
