// File: queue/concurrentqueue.go
// Author: momentics <momentics@gmail.com>
//
// ConcurrentQueue is the bounded FIFO used to hand NetworkEvents from
// reactors to workers. It wraps eapache/queue's unbounded ring (declared in
// the upstream go.mod but, prior to this package, never imported anywhere)
// with a capacity check plus the blocking enqueue/dequeue and stop
// semantics the upstream ring does not provide on its own.
package queue

import (
	"sync"
	"time"

	eapache "github.com/eapache/queue"
)

// ConcurrentQueue is a bounded, generic FIFO safe for concurrent
// producers/consumers. FIFO order is preserved per producer; across
// producers, interleaving is unspecified.
type ConcurrentQueue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    *eapache.Queue
	capacity int
	stopped  bool
}

// New creates a ConcurrentQueue with the given bounded capacity.
func New[T any](capacity int) *ConcurrentQueue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	q := &ConcurrentQueue[T]{items: eapache.New(), capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Enqueue blocks while the queue is full, returning false if the queue is
// (or becomes) stopped before room is available.
func (q *ConcurrentQueue[T]) Enqueue(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Length() >= q.capacity && !q.stopped {
		q.notFull.Wait()
	}
	if q.stopped {
		return false
	}
	q.items.Add(v)
	q.notEmpty.Signal()
	return true
}

// TryEnqueue never blocks; it fails if the queue is full or stopped.
func (q *ConcurrentQueue[T]) TryEnqueue(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped || q.items.Length() >= q.capacity {
		return false
	}
	q.items.Add(v)
	q.notEmpty.Signal()
	return true
}

// TryDequeue never blocks.
func (q *ConcurrentQueue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.items.Length() == 0 {
		return zero, false
	}
	v := q.items.Remove().(T)
	q.notFull.Signal()
	return v, true
}

// WaitDequeue blocks up to timeout for an item, returning false on timeout,
// or on stop once no item is left.
func (q *ConcurrentQueue[T]) WaitDequeue(timeout time.Duration) (T, bool) {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Length() == 0 && !q.stopped {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			var zero T
			return zero, false
		}
		timer := time.AfterFunc(remaining, func() {
			q.mu.Lock()
			q.notEmpty.Broadcast()
			q.mu.Unlock()
		})
		q.notEmpty.Wait()
		timer.Stop()
	}

	if q.items.Length() == 0 {
		var zero T
		return zero, false
	}
	v := q.items.Remove().(T)
	q.notFull.Signal()
	return v, true
}

// NotifyStop wakes all waiters; subsequent Enqueue/TryEnqueue calls fail
// immediately. Items already queued can still be dequeued; WaitDequeue
// returns false at once only when the queue is empty.
func (q *ConcurrentQueue[T]) NotifyStop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Reset clears the stopped flag, allowing the queue to be reused.
func (q *ConcurrentQueue[T]) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = false
}

// Len reports the number of items currently queued.
func (q *ConcurrentQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}
