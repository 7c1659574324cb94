package core

import "sync/atomic"

// EnqueueOrder is a strictly increasing, process-wide sequence number
// assigned when a task becomes visible to the selector. It is the sole
// tie-break for cross-queue fairness: the lower order always runs first.
type EnqueueOrder uint64

// EnqueueOrderNone is the zero sentinel for "no front task".
const EnqueueOrderNone EnqueueOrder = 0

// EnqueueOrderGenerator hands out enqueue orders. It is an explicit object
// rather than a package-level counter so tests can run isolated sequences
// and multiple schedulers never share a counter by accident.
type EnqueueOrderGenerator struct {
	next atomic.Uint64
}

func NewEnqueueOrderGenerator() *EnqueueOrderGenerator {
	return &EnqueueOrderGenerator{}
}

// Next returns the next order. Orders start at 1; EnqueueOrderNone is never
// returned. Two calls never return the same value, so ties are impossible.
func (g *EnqueueOrderGenerator) Next() EnqueueOrder {
	return EnqueueOrder(g.next.Add(1))
}
