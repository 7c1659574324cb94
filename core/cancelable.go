package core

import (
	"context"
	"sync/atomic"
)

// CancelableTask makes posted closures cancelable without tracking the posts
// themselves. Cancel bumps a generation counter; a callback produced before
// the bump refuses to fire even if it is already sitting in a timer list.
// Cancellation is idempotent, and one CancelableTask can be re-posted any
// number of times after cancelling its predecessors.
type CancelableTask struct {
	generation atomic.Uint64
	fn         func()
}

func NewCancelableTask(fn func()) *CancelableTask {
	return &CancelableTask{fn: fn}
}

// Cancel invalidates every callback produced so far.
func (c *CancelableTask) Cancel() {
	c.generation.Add(1)
}

// Task returns a closure bound to the current generation. The closure runs
// the wrapped function only if no Cancel happened in between.
func (c *CancelableTask) Task() Task {
	gen := c.generation.Load()
	return func(ctx context.Context) {
		if c.generation.Load() == gen {
			c.fn()
		}
	}
}
