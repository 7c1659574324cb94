package core

import (
	"container/heap"
	"time"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// workItem is a task plus the enqueue order it became visible with.
type workItem struct {
	task  Task
	order EnqueueOrder
}

// =============================================================================
// delayedTaskHeap: Min-heap of tasks waiting for their run time
// =============================================================================

// delayedTask is a task parked until its run time in the owning time domain.
type delayedTask struct {
	task  Task
	runAt time.Time
	index int // for heap interface
}

type delayedTaskHeap []*delayedTask

func (h delayedTaskHeap) Len() int           { return len(h) }
func (h delayedTaskHeap) Less(i, j int) bool { return h[i].runAt.Before(h[j].runAt) }
func (h delayedTaskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayedTaskHeap) Push(x any) {
	n := len(*h)
	item := x.(*delayedTask)
	item.index = n
	*h = append(*h, item)
}

func (h *delayedTaskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *delayedTaskHeap) Peek() *delayedTask {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// =============================================================================
// WorkQueue: One logical lane of pending tasks
// =============================================================================

// WorkQueue holds the pending tasks of one logical lane in three stages:
//
//   - ready: the visible FIFO the WorkQueueSets index tracks. Only ready
//     tasks participate in oldest-first selection.
//   - incoming: immediate tasks parked by the manual pump policy until the
//     next pump makes them visible.
//   - delayed: a min-heap of tasks waiting for their run time in the queue's
//     time domain.
//
// A WorkQueue has no internal locking: every mutation happens on the control
// thread (see the package doc for the confinement model).
type WorkQueue struct {
	name string
	gen  *EnqueueOrderGenerator

	ready    []workItem
	incoming []workItem
	delayed  delayedTaskHeap

	// setIndex records which WorkQueueSets slot this queue belongs to.
	// Mutated exclusively by WorkQueueSets.AssignQueueToSet.
	setIndex   int
	pumpPolicy PumpPolicy
	timeDomain TimeDomain
}

func newWorkQueue(name string, gen *EnqueueOrderGenerator, domain TimeDomain) *WorkQueue {
	return &WorkQueue{
		name:       name,
		gen:        gen,
		ready:      make([]workItem, 0, defaultQueueCap),
		timeDomain: domain,
	}
}

func (q *WorkQueue) Name() string { return q.name }

// SetIndex returns the WorkQueueSets slot the queue currently belongs to.
func (q *WorkQueue) SetIndex() int { return q.setIndex }

func (q *WorkQueue) PumpPolicy() PumpPolicy { return q.pumpPolicy }

func (q *WorkQueue) TimeDomain() TimeDomain { return q.timeDomain }

// Push appends task with the next enqueue order. Auto-policy pushes land in
// the ready lane; manual-policy pushes park in the incoming lane until the
// queue is pumped. When a push makes the ready lane's front task visible for
// the first time, the caller must notify the owning WorkQueueSets via
// OnPushQueue.
func (q *WorkQueue) Push(task Task) EnqueueOrder {
	order := q.gen.Next()
	item := workItem{task: task, order: order}
	if q.pumpPolicy == PumpPolicyManual {
		q.incoming = append(q.incoming, item)
	} else {
		q.ready = append(q.ready, item)
	}
	return order
}

// PopFront removes and returns the oldest ready task, or ErrEmptyQueue if
// none is visible. The caller must notify the owning WorkQueueSets via
// OnPopQueue afterwards.
func (q *WorkQueue) PopFront() (Task, error) {
	if len(q.ready) == 0 {
		return nil, ErrEmptyQueue
	}
	task := q.ready[0].task
	// Zero out the element in the underlying array to prevent memory leak
	q.ready[0] = workItem{}
	q.ready = q.ready[1:]
	q.maybeCompact()
	return task, nil
}

// PeekFrontEnqueueOrder returns the enqueue order of the oldest ready task.
func (q *WorkQueue) PeekFrontEnqueueOrder() (EnqueueOrder, bool) {
	if len(q.ready) == 0 {
		return EnqueueOrderNone, false
	}
	return q.ready[0].order, true
}

// HasFrontTask reports whether a ready task is visible to the selector.
func (q *WorkQueue) HasFrontTask() bool { return len(q.ready) > 0 }

// ReadyLen returns the number of visible tasks.
func (q *WorkQueue) ReadyLen() int { return len(q.ready) }

// IsEmpty reports whether no work is pending in any lane.
func (q *WorkQueue) IsEmpty() bool {
	return len(q.ready) == 0 && len(q.incoming) == 0 && q.delayed.Len() == 0
}

// HasPendingImmediateWork reports whether a non-delayed task is pending,
// visible or parked.
func (q *WorkQueue) HasPendingImmediateWork() bool {
	return len(q.ready) > 0 || len(q.incoming) > 0
}

// PushDelayed parks task until runAt in the queue's time domain.
func (q *WorkQueue) PushDelayed(task Task, runAt time.Time) {
	heap.Push(&q.delayed, &delayedTask{task: task, runAt: runAt})
}

// NextDelayedRunTime returns the earliest parked run time.
func (q *WorkQueue) NextDelayedRunTime() (time.Time, bool) {
	item := q.delayed.Peek()
	if item == nil {
		return time.Time{}, false
	}
	return item.runAt, true
}

// moveReadyDelayedTasks moves every delayed task due at now into the
// incoming lane, assigning enqueue orders in run-time order. Returns the
// number of tasks moved.
func (q *WorkQueue) moveReadyDelayedTasks(now time.Time) int {
	moved := 0
	for q.delayed.Len() > 0 && !q.delayed.Peek().runAt.After(now) {
		item := heap.Pop(&q.delayed).(*delayedTask)
		q.incoming = append(q.incoming, workItem{task: item.task, order: q.gen.Next()})
		moved++
	}
	return moved
}

// moveIncomingToReady promotes parked immediate tasks into the visible lane.
// Returns the number of tasks promoted.
func (q *WorkQueue) moveIncomingToReady() int {
	moved := len(q.incoming)
	if moved == 0 {
		return 0
	}
	q.ready = append(q.ready, q.incoming...)
	for i := range q.incoming {
		q.incoming[i] = workItem{}
	}
	q.incoming = q.incoming[:0]
	return moved
}

func (q *WorkQueue) maybeCompact() {
	n := len(q.ready)
	c := cap(q.ready)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.ready = make([]workItem, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]workItem, n, newCap)
	copy(newSlice, q.ready)
	q.ready = newSlice
}
