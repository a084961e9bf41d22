package ecs

import "container/heap"

// ScheduledEvent is a single (deadline, payload) pair as described in
// spec.md §3. Deadline is expressed in absolute tick numbers.
type ScheduledEvent[T any] struct {
	Deadline int64
	Payload  T

	index int
}

// ScheduledQueue is a min-heap of ScheduledEvent ordered by Deadline, polled
// at tick start to drive delayed block destruction, particle stages, and
// similar deferred effects.
type ScheduledQueue[T any] struct {
	items scheduledHeap[T]
}

// NewScheduledQueue creates an empty scheduled-event queue.
func NewScheduledQueue[T any]() *ScheduledQueue[T] {
	q := &ScheduledQueue[T]{}
	heap.Init(&q.items)
	return q
}

// Push schedules payload to fire at the given absolute tick.
func (q *ScheduledQueue[T]) Push(deadline int64, payload T) {
	heap.Push(&q.items, &ScheduledEvent[T]{Deadline: deadline, Payload: payload})
}

// Len reports the number of pending events.
func (q *ScheduledQueue[T]) Len() int { return len(q.items) }

// PollDue pops and returns every event whose Deadline is <= now, in
// nondecreasing deadline order.
func (q *ScheduledQueue[T]) PollDue(now int64) []ScheduledEvent[T] {
	var due []ScheduledEvent[T]
	for len(q.items) > 0 && q.items[0].Deadline <= now {
		ev := heap.Pop(&q.items).(*ScheduledEvent[T])
		due = append(due, *ev)
	}
	return due
}

type scheduledHeap[T any] []*ScheduledEvent[T]

func (h scheduledHeap[T]) Len() int            { return len(h) }
func (h scheduledHeap[T]) Less(i, j int) bool  { return h[i].Deadline < h[j].Deadline }
func (h scheduledHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *scheduledHeap[T]) Push(x any) {
	ev := x.(*ScheduledEvent[T])
	ev.index = len(*h)
	*h = append(*h, ev)
}
func (h *scheduledHeap[T]) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}
