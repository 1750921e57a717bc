package sequence

// Queue is a simple generic FIFO queue. It is not safe for concurrent use;
// callers own the synchronization model.
type Queue[T any] struct {
	items []T
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends a value to the tail of the queue.
func (q *Queue[T]) Push(value T) {
	q.items = append(q.items, value)
}

// Pop removes and returns the head of the queue.
func (q *Queue[T]) Pop() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	value := q.items[0]
	q.items[0] = *new(T) // avoid memory leak
	q.items = q.items[1:]
	return value, true
}

// Peek returns the head of the queue without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[0], true
}

func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Drain removes all elements and returns them in order.
func (q *Queue[T]) Drain() []T {
	items := q.items
	q.items = nil
	return items
}
