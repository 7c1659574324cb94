package core

import (
	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
)

// WorkQueueSets groups work queues into indexed sets (typically priority
// bands) and tracks, per set, which queue holds the oldest ready task. Each
// set keeps an ordered map from front-task EnqueueOrder to queue, so "which
// queue runs next" is the minimum of one tree instead of a scan over every
// queue in the set. Within a band this yields cross-queue FIFO: the task
// enqueued earliest anywhere runs first, regardless of which queue holds it.
//
// Invariant: a queue appears in a set's tree iff it has a front task, and in
// at most one set at a time. A binary heap alone would not do here because
// AssignQueueToSet and RemoveQueue delete arbitrary non-minimum entries.
type WorkQueueSets struct {
	sets []*rbt.Tree[EnqueueOrder, *WorkQueue]
}

func NewWorkQueueSets(numSets int) *WorkQueueSets {
	invariant(numSets > 0, "NewWorkQueueSets: numSets = %d", numSets)
	s := &WorkQueueSets{
		sets: make([]*rbt.Tree[EnqueueOrder, *WorkQueue], numSets),
	}
	for i := range s.sets {
		s.sets[i] = rbt.New[EnqueueOrder, *WorkQueue]()
	}
	return s
}

func (s *WorkQueueSets) NumSets() int { return len(s.sets) }

// RemoveQueue takes queue out of its set's index. No-op when the queue has
// no front task. The queue's set index is left unchanged.
func (s *WorkQueueSets) RemoveQueue(queue *WorkQueue) {
	order, ok := queue.PeekFrontEnqueueOrder()
	if !ok {
		return
	}
	s.checkSetIndex(queue.setIndex)
	tracked, found := s.sets[queue.setIndex].Get(order)
	invariant(found && tracked == queue,
		"RemoveQueue: queue %q not tracked under order %d in set %d", queue.name, order, queue.setIndex)
	s.sets[queue.setIndex].Remove(order)
}

// AssignQueueToSet moves the queue's index entry (if any) from its old set
// to setIndex. The queue's set index is updated unconditionally, even when
// the queue is empty.
func (s *WorkQueueSets) AssignQueueToSet(queue *WorkQueue, setIndex int) {
	s.checkSetIndex(setIndex)
	s.checkSetIndex(queue.setIndex)
	order, ok := queue.PeekFrontEnqueueOrder()
	oldSet := queue.setIndex
	queue.setIndex = setIndex
	if !ok {
		return
	}
	s.sets[oldSet].Remove(order)
	s.sets[setIndex].Put(order, queue)
}

// OnPushQueue indexes the queue under its front task. Call exactly when a
// push made the front task visible for the first time.
func (s *WorkQueueSets) OnPushQueue(queue *WorkQueue) {
	order, ok := queue.PeekFrontEnqueueOrder()
	invariant(ok, "OnPushQueue: queue %q has no front task", queue.name)
	s.checkSetIndex(queue.setIndex)
	s.sets[queue.setIndex].Put(order, queue)
}

// OnPopQueue erases the minimum entry of the queue's set, asserting that it
// references the queue: callers may only pop the queue previously returned
// by GetOldestQueueInSet. If the queue still has a front task it is
// re-indexed under the new front. Amortized O(1) per call since removal is
// always of the minimum.
func (s *WorkQueueSets) OnPopQueue(queue *WorkQueue) {
	s.checkSetIndex(queue.setIndex)
	tree := s.sets[queue.setIndex]
	invariant(!tree.Empty(), "OnPopQueue: set %d is empty", queue.setIndex)
	oldest := tree.Left()
	invariant(oldest.Value == queue,
		"OnPopQueue: queue %q is not the oldest in set %d", queue.name, queue.setIndex)
	tree.Remove(oldest.Key)
	if order, ok := queue.PeekFrontEnqueueOrder(); ok {
		tree.Put(order, queue)
	}
}

// GetOldestQueueInSet returns the queue holding the lowest ready enqueue
// order in the set, or false when the set has no ready work.
func (s *WorkQueueSets) GetOldestQueueInSet(setIndex int) (*WorkQueue, bool) {
	s.checkSetIndex(setIndex)
	tree := s.sets[setIndex]
	if tree.Empty() {
		return nil, false
	}
	return tree.Left().Value, true
}

func (s *WorkQueueSets) IsSetEmpty(setIndex int) bool {
	s.checkSetIndex(setIndex)
	return s.sets[setIndex].Empty()
}

func (s *WorkQueueSets) checkSetIndex(setIndex int) {
	invariant(setIndex >= 0 && setIndex < len(s.sets),
		"set index %d out of range [0, %d)", setIndex, len(s.sets))
}
