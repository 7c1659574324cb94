package core

import "context"

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// =============================================================================
// PumpPolicy: Controls when posted tasks become visible to the selector
// =============================================================================

type PumpPolicy int

const (
	// PumpPolicyAuto: tasks become runnable as soon as they are posted.
	// This is the normal mode for foreground queues.
	PumpPolicyAuto PumpPolicy = iota

	// PumpPolicyManual: tasks park in the queue's incoming lane and only
	// become runnable when something pumps the queue explicitly. The
	// ThrottlingHelper switches queues to this mode so their work drains
	// exclusively at coalesced pump ticks.
	PumpPolicyManual
)

func (p PumpPolicy) String() string {
	switch p {
	case PumpPolicyAuto:
		return "auto"
	case PumpPolicyManual:
		return "manual"
	default:
		return "unknown"
	}
}

// =============================================================================
// Context Helper
// =============================================================================
type taskRunnerKeyType struct{}

var taskRunnerKey taskRunnerKeyType

// GetCurrentTaskRunner returns the TaskRunner executing the current task,
// or nil when the context did not come from a task runner.
func GetCurrentTaskRunner(ctx context.Context) TaskRunner {
	if v := ctx.Value(taskRunnerKey); v != nil {
		return v.(TaskRunner)
	}
	return nil
}
