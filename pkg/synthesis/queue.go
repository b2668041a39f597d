package synthesis

import (
	"context"
	"sync"
	"time"
)

// fifo is an unbounded queue. push never blocks; pop waits up to a timeout.
type fifo[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
}

func newFIFO[T any]() *fifo[T] {
	return &fifo[T]{signal: make(chan struct{}, 1)}
}

func (q *fifo[T]) push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.notify()
}

func (q *fifo[T]) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *fifo[T]) tryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.notify()
	}
	return v, true
}

// pop returns the head item, waiting up to timeout or until ctx ends.
func (q *fifo[T]) pop(ctx context.Context, timeout time.Duration) (T, bool) {
	if v, ok := q.tryPop(); ok {
		return v, true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case <-q.signal:
			if v, ok := q.tryPop(); ok {
				return v, true
			}
		case <-t.C:
			return q.tryPop()
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

func (q *fifo[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
