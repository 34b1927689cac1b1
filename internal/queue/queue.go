package queue

import (
	"sync"
)

// Queue is a generic thread-safe FIFO. When a limit is set, pushing onto a
// full queue evicts the oldest items.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	limit int
}

// New creates an empty queue. A limit of 0 or less means unbounded.
func New[T any](limit int) *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
		limit: limit,
	}
}

// Push appends items, evicting from the front if the limit is exceeded.
// It returns the number of evicted items.
func (q *Queue[T]) Push(items ...T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	if q.limit <= 0 || len(q.items) <= q.limit {
		return 0
	}
	evicted := len(q.items) - q.limit
	// copy so the backing array does not grow without bound
	kept := make([]T, q.limit, max(q.limit, cap(q.items)/2))
	copy(kept, q.items[evicted:])
	q.items = kept
	return evicted
}

// Pop removes and returns the first item. Returns zero value if empty.
func (q *Queue[T]) Pop() T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Limit returns the configured capacity.
func (q *Queue[T]) Limit() int {
	return q.limit
}

// Items returns a copy of the queued items, oldest first.
func (q *Queue[T]) Items() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}

// GetAndEmpty returns all items and clears the queue.
func (q *Queue[T]) GetAndEmpty() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = make([]T, 0)
	return result
}
