package core

import "sync"

// PriorityQueue implements a thread-safe generic min-heap. Items that compare
// lower through their Less method are dequeued first; the keeper uses it to
// poll the most overdue stops ahead of the rest.
type PriorityQueue[T interface{ Less(T) bool }] struct {
	mu   sync.Mutex
	data []T
}

// NewPriorityQueue creates a queue seeded with the provided items, which are
// heapified in place.
func NewPriorityQueue[T interface{ Less(T) bool }](data []T) *PriorityQueue[T] {
	q := &PriorityQueue[T]{data: data}
	for i := len(data) >> 1; i >= 0; i-- {
		q.down(i)
	}
	return q
}

// Push adds an item to the queue.
func (q *PriorityQueue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.data = append(q.data, item)
	q.up(len(q.data) - 1)
}

// Pop removes and returns the lowest item. The second return is false when
// the queue is empty.
func (q *PriorityQueue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.data) == 0 {
		return zero, false
	}

	top := q.data[0]
	last := len(q.data) - 1
	q.data[0] = q.data[last]
	q.data[last] = zero
	q.data = q.data[:last]
	if last > 0 {
		q.down(0)
	}
	return top, true
}

// Peek returns the lowest item without removing it.
func (q *PriorityQueue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.data) == 0 {
		return zero, false
	}
	return q.data[0], true
}

// Len returns the number of queued items.
func (q *PriorityQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.data)
}

// down restores the heap property from pos toward the leaves.
func (q *PriorityQueue[T]) down(pos int) {
	data := q.data
	if pos >= len(data) {
		return
	}
	half := len(data) >> 1
	item := data[pos]

	for pos < half {
		left := (pos << 1) + 1
		right := left + 1

		best := data[left]
		bestPos := left
		if right < len(data) && data[right].Less(best) {
			best = data[right]
			bestPos = right
		}

		if !best.Less(item) {
			break
		}

		data[pos] = best
		pos = bestPos
	}

	data[pos] = item
}

// up restores the heap property from pos toward the root.
func (q *PriorityQueue[T]) up(pos int) {
	data := q.data
	item := data[pos]

	for pos > 0 {
		parent := (pos - 1) >> 1
		current := data[parent]

		if !item.Less(current) {
			break
		}

		data[pos] = current
		pos = parent
	}

	data[pos] = item
}
