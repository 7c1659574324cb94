package core

import (
	"errors"
	"fmt"
)

// ErrEmptyQueue is returned when popping the front of an empty work queue.
// Callers are expected to check IsEmpty (or HasFrontTask) first.
var ErrEmptyQueue = errors.New("work queue is empty")

// ErrNoScheduledWork is the panic value used when a delayed-work notification
// arrives while the time domain reports no scheduled run time.
var ErrNoScheduledWork = errors.New("time domain has no scheduled run time")

// InvariantError is the panic value for scheduler precondition violations:
// popping a queue that is not the current minimum of its set, indexing a
// queue with no front task, and the like. These are programming errors, not
// recoverable failures; continuing would corrupt the ordering index for
// every future selection.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string {
	return "scheduler invariant violated: " + e.Message
}

func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(&InvariantError{Message: fmt.Sprintf(format, args...)})
	}
}
