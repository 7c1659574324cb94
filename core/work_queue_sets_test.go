package core

import (
	"testing"
)

func newTestSets(t *testing.T, numSets, numQueues int) (*WorkQueueSets, []*WorkQueue) {
	t.Helper()
	gen := NewEnqueueOrderGenerator()
	sets := NewWorkQueueSets(numSets)
	queues := make([]*WorkQueue, numQueues)
	for i := range queues {
		queues[i] = newWorkQueue("queue", gen, nil)
		sets.AssignQueueToSet(queues[i], 0)
	}
	return sets, queues
}

// push makes a task visible and notifies the index, like the scheduler does.
func push(sets *WorkQueueSets, q *WorkQueue) {
	wasVisible := q.HasFrontTask()
	q.Push(noopTask)
	if !wasVisible {
		sets.OnPushQueue(q)
	}
}

// pop drains one task from the selected queue, index included.
func pop(t *testing.T, sets *WorkQueueSets, q *WorkQueue) {
	t.Helper()
	if _, err := q.PopFront(); err != nil {
		t.Fatalf("PopFront failed: %v", err)
	}
	sets.OnPopQueue(q)
}

// TestWorkQueueSets_OldestAcrossQueues verifies cross-queue FIFO selection
// Given: Two queues in one set with interleaved pushes
// When: The oldest queue is selected and popped repeatedly
// Then: Tasks drain in global enqueue order regardless of queue
func TestWorkQueueSets_OldestAcrossQueues(t *testing.T) {
	// Arrange - Interleave pushes: a, b, a, b
	sets, queues := newTestSets(t, 1, 2)
	a, b := queues[0], queues[1]
	push(sets, a)
	push(sets, b)
	push(sets, a)
	push(sets, b)

	// Act + Assert - Selection alternates following enqueue order
	want := []*WorkQueue{a, b, a, b}
	for i, expected := range want {
		selected, ok := sets.GetOldestQueueInSet(0)
		if !ok {
			t.Fatalf("step %d: GetOldestQueueInSet = empty, want a queue", i)
		}
		if selected != expected {
			t.Fatalf("step %d: selected wrong queue", i)
		}
		pop(t, sets, selected)
	}
	if !sets.IsSetEmpty(0) {
		t.Error("IsSetEmpty(0) = false after draining, want true")
	}
}

// TestWorkQueueSets_PopReindexesNewFront verifies re-indexing after a pop
// Given: A queue with two tasks and a sibling pushed in between
// When: The first task is popped
// Then: The sibling with the older front becomes the selected queue
func TestWorkQueueSets_PopReindexesNewFront(t *testing.T) {
	// Arrange - a holds orders 1 and 3, b holds order 2
	sets, queues := newTestSets(t, 1, 2)
	a, b := queues[0], queues[1]
	push(sets, a)
	push(sets, b)
	push(sets, a)

	// Act
	pop(t, sets, a)

	// Assert - b's order 2 now beats a's order 3
	selected, ok := sets.GetOldestQueueInSet(0)
	if !ok || selected != b {
		t.Error("selected queue after pop is not the sibling with the older front")
	}
}

// TestWorkQueueSets_AssignMovesBetweenSets verifies set reassignment
// Given: A queue with ready work indexed in set 0
// When: It is assigned to set 1
// Then: Selection finds it in set 1 only
func TestWorkQueueSets_AssignMovesBetweenSets(t *testing.T) {
	// Arrange
	sets, queues := newTestSets(t, 2, 1)
	q := queues[0]
	push(sets, q)

	// Act
	sets.AssignQueueToSet(q, 1)

	// Assert
	if !sets.IsSetEmpty(0) {
		t.Error("set 0 still tracks the moved queue")
	}
	selected, ok := sets.GetOldestQueueInSet(1)
	if !ok || selected != q {
		t.Error("set 1 does not track the moved queue")
	}
	if q.SetIndex() != 1 {
		t.Errorf("SetIndex() = %d, want 1", q.SetIndex())
	}
}

// TestWorkQueueSets_AssignEmptyQueueUpdatesIndexOnly verifies empty reassignment
// Given: An empty queue
// When: It is assigned to another set
// Then: Only the set index changes, no tree entry appears
func TestWorkQueueSets_AssignEmptyQueueUpdatesIndexOnly(t *testing.T) {
	sets, queues := newTestSets(t, 2, 1)
	q := queues[0]

	sets.AssignQueueToSet(q, 1)

	if q.SetIndex() != 1 {
		t.Errorf("SetIndex() = %d, want 1", q.SetIndex())
	}
	if !sets.IsSetEmpty(0) || !sets.IsSetEmpty(1) {
		t.Error("empty queue produced a tree entry")
	}
}

// TestWorkQueueSets_RemoveQueue verifies removal semantics
// Given: A queue with ready work and one without
// When: RemoveQueue is called on each
// Then: The tracked queue disappears from selection; the empty one is a no-op
func TestWorkQueueSets_RemoveQueue(t *testing.T) {
	sets, queues := newTestSets(t, 1, 2)
	tracked, empty := queues[0], queues[1]
	push(sets, tracked)

	sets.RemoveQueue(tracked)
	sets.RemoveQueue(empty)

	if !sets.IsSetEmpty(0) {
		t.Error("set 0 still tracks a removed queue")
	}
}

// TestWorkQueueSets_PushInvariant verifies the push precondition
// Given: A queue with no front task
// When: OnPushQueue is called
// Then: An InvariantError panic is raised
func TestWorkQueueSets_PushInvariant(t *testing.T) {
	sets, queues := newTestSets(t, 1, 1)

	expectInvariantPanic(t, func() {
		sets.OnPushQueue(queues[0])
	})
}

// TestWorkQueueSets_PopNonOldestInvariant verifies the pop precondition
// Given: Two indexed queues where one holds the oldest front
// When: OnPopQueue is called for the younger queue
// Then: An InvariantError panic is raised
func TestWorkQueueSets_PopNonOldestInvariant(t *testing.T) {
	sets, queues := newTestSets(t, 1, 2)
	older, younger := queues[0], queues[1]
	push(sets, older)
	push(sets, younger)

	if _, err := younger.PopFront(); err != nil {
		t.Fatalf("PopFront failed: %v", err)
	}
	expectInvariantPanic(t, func() {
		sets.OnPopQueue(younger)
	})
}

// TestWorkQueueSets_PopEmptySetInvariant verifies popping from an empty set
// Given: A set tracking no queues
// When: OnPopQueue is called
// Then: An InvariantError panic is raised
func TestWorkQueueSets_PopEmptySetInvariant(t *testing.T) {
	sets, queues := newTestSets(t, 1, 1)

	expectInvariantPanic(t, func() {
		sets.OnPopQueue(queues[0])
	})
}

// TestWorkQueueSets_BadSetIndexInvariant verifies index range checks
// Given: A sets container with one set
// When: A queue is assigned to an out-of-range index
// Then: An InvariantError panic is raised
func TestWorkQueueSets_BadSetIndexInvariant(t *testing.T) {
	sets, queues := newTestSets(t, 1, 1)

	expectInvariantPanic(t, func() {
		sets.AssignQueueToSet(queues[0], 5)
	})
}
