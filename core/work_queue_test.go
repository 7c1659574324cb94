package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestQueue(name string) *WorkQueue {
	return newWorkQueue(name, NewEnqueueOrderGenerator(), nil)
}

// TestWorkQueue_FIFO verifies in-queue ordering
// Given: A queue with three pushed tasks
// When: Tasks are popped
// Then: They come out in push order
func TestWorkQueue_FIFO(t *testing.T) {
	// Arrange
	q := newTestQueue("fifo")
	var order []int
	for i := 0; i < 3; i++ {
		id := i
		q.Push(func(ctx context.Context) { order = append(order, id) })
	}

	// Act
	for q.HasFrontTask() {
		task, err := q.PopFront()
		if err != nil {
			t.Fatalf("PopFront failed: %v", err)
		}
		task(context.Background())
	}

	// Assert
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("execution order = %v, want [0 1 2]", order)
	}
}

// TestWorkQueue_PopEmpty verifies the empty-queue error
// Given: An empty queue
// When: PopFront is called
// Then: ErrEmptyQueue is returned
func TestWorkQueue_PopEmpty(t *testing.T) {
	q := newTestQueue("empty")

	_, err := q.PopFront()
	if !errors.Is(err, ErrEmptyQueue) {
		t.Errorf("PopFront() error = %v, want ErrEmptyQueue", err)
	}
}

// TestWorkQueue_ManualPumpParksIncoming verifies the manual pump policy
// Given: A queue with the manual pump policy
// When: An immediate task is pushed
// Then: It parks in the incoming lane, invisible until pumped
func TestWorkQueue_ManualPumpParksIncoming(t *testing.T) {
	// Arrange
	q := newTestQueue("manual")
	q.pumpPolicy = PumpPolicyManual

	// Act
	q.Push(noopTask)

	// Assert - Invisible but pending
	if q.HasFrontTask() {
		t.Error("HasFrontTask() = true before pump, want false")
	}
	if !q.HasPendingImmediateWork() {
		t.Error("HasPendingImmediateWork() = false, want true")
	}
	if q.IsEmpty() {
		t.Error("IsEmpty() = true with parked work, want false")
	}

	// Act - Pump
	moved := q.moveIncomingToReady()

	// Assert - Now visible
	if moved != 1 {
		t.Errorf("moveIncomingToReady() = %d, want 1", moved)
	}
	if !q.HasFrontTask() {
		t.Error("HasFrontTask() = false after pump, want true")
	}
}

// TestWorkQueue_PumpPreservesOrder verifies ordering across lanes
// Given: Ready tasks followed by parked incoming tasks
// When: The incoming lane is promoted
// Then: Ready tasks stay ahead, incoming tasks append in push order
func TestWorkQueue_PumpPreservesOrder(t *testing.T) {
	// Arrange
	q := newTestQueue("order")
	firstOrder := q.Push(noopTask)
	q.pumpPolicy = PumpPolicyManual
	secondOrder := q.Push(noopTask)
	thirdOrder := q.Push(noopTask)

	// Act
	q.moveIncomingToReady()

	// Assert
	if q.ReadyLen() != 3 {
		t.Fatalf("ReadyLen() = %d, want 3", q.ReadyLen())
	}
	front, _ := q.PeekFrontEnqueueOrder()
	if front != firstOrder {
		t.Errorf("front order = %d, want %d", front, firstOrder)
	}
	if !(firstOrder < secondOrder && secondOrder < thirdOrder) {
		t.Errorf("orders not increasing: %d, %d, %d", firstOrder, secondOrder, thirdOrder)
	}
}

// TestWorkQueue_DelayedTasks verifies the delayed lane
// Given: Delayed tasks with out-of-order run times
// When: moveReadyDelayedTasks runs with an intermediate now
// Then: Only due tasks move, in run-time order, receiving fresh enqueue orders
func TestWorkQueue_DelayedTasks(t *testing.T) {
	// Arrange
	q := newTestQueue("delayed")
	base := time.Unix(1000, 0)
	var ran []string
	mk := func(label string) Task {
		return func(ctx context.Context) { ran = append(ran, label) }
	}
	q.PushDelayed(mk("late"), base.Add(3*time.Second))
	q.PushDelayed(mk("early"), base.Add(1*time.Second))
	q.PushDelayed(mk("mid"), base.Add(2*time.Second))

	next, ok := q.NextDelayedRunTime()
	if !ok || !next.Equal(base.Add(1*time.Second)) {
		t.Fatalf("NextDelayedRunTime() = %v, %v, want %v", next, ok, base.Add(1*time.Second))
	}

	// Act - Advance past the first two run times
	moved := q.moveReadyDelayedTasks(base.Add(2 * time.Second))

	// Assert
	if moved != 2 {
		t.Fatalf("moveReadyDelayedTasks() = %d, want 2", moved)
	}
	q.moveIncomingToReady()
	for q.HasFrontTask() {
		task, _ := q.PopFront()
		task(context.Background())
	}
	if len(ran) != 2 || ran[0] != "early" || ran[1] != "mid" {
		t.Errorf("ran = %v, want [early mid]", ran)
	}
	if next, ok := q.NextDelayedRunTime(); !ok || !next.Equal(base.Add(3*time.Second)) {
		t.Errorf("NextDelayedRunTime() = %v, %v, want the late task", next, ok)
	}
}

// TestWorkQueue_Compaction verifies the ready slice shrinks after a burst
// Given: A queue that grew past the compaction threshold
// When: Most tasks are popped
// Then: The backing array is reallocated smaller
func TestWorkQueue_Compaction(t *testing.T) {
	// Arrange - Grow well past compactMinCap
	q := newTestQueue("compact")
	for i := 0; i < compactMinCap*2; i++ {
		q.Push(noopTask)
	}
	grownCap := cap(q.ready)

	// Act - Drain until far below the shrink threshold
	for q.ReadyLen() > 2 {
		if _, err := q.PopFront(); err != nil {
			t.Fatalf("PopFront failed: %v", err)
		}
	}

	// Assert
	if cap(q.ready) >= grownCap {
		t.Errorf("cap after drain = %d, want < %d", cap(q.ready), grownCap)
	}
	if q.ReadyLen() != 2 {
		t.Errorf("ReadyLen() = %d, want 2", q.ReadyLen())
	}
}
