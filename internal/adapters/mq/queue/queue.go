// Package queue holds the FIFO of pending-write handles between the
// correlation path and the completion tracker.
//
// The queue is unbounded so Enqueue never blocks the request path. A single
// pump goroutine feeds the consumer channel and closes it only after every
// handle accepted before Close has been delivered.
package queue

import (
	"context"
	"sync"

	"github.com/okian/sessiond/internal/adapters/repository"
	"github.com/okian/sessiond/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultInitialCapacity = 1024
	compactThreshold       = 4096
)

// Handle is the payload flowing through the queue.
type Handle = *repository.Future

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue appends h. It returns false only when the queue is closed.
	Enqueue(ctx context.Context, h Handle) bool

	// Dequeue returns the channel handles are delivered on, in FIFO order.
	// The channel is closed once the queue is closed and empty.
	Dequeue() <-chan Handle

	// Len returns the number of accepted handles not yet received by the consumer.
	Len(ctx context.Context) int

	// Close stops accepting handles. Handles already accepted are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue with a mutex-guarded slice and a pump goroutine.
type InMemoryQueue struct {
	initialCapacity int

	mu     sync.Mutex
	items  []Handle
	head   int
	held   int // popped by the pump, not yet received
	closed bool

	ready chan struct{}
	out   chan Handle
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a queue and starts its pump.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		initialCapacity: defaultInitialCapacity,
		ready:           make(chan struct{}, 1),
		out:             make(chan Handle),
	}

	for _, opt := range opts {
		opt(q)
	}

	q.items = make([]Handle, 0, q.initialCapacity)
	metrics.UpdatePendingHandles(0)

	go q.pump()
	return q
}

// Enqueue adds a handle to the tail of the queue.
func (q *InMemoryQueue) Enqueue(_ context.Context, h Handle) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}
	q.items = append(q.items, h)
	n := q.lenLocked()
	q.mu.Unlock()

	metrics.UpdatePendingHandles(n)
	q.signal()
	return true
}

// Dequeue returns the delivery channel. Every call returns the same channel.
func (q *InMemoryQueue) Dequeue() <-chan Handle {
	return q.out
}

// Len returns the current number of undelivered handles.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.signal()
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *InMemoryQueue) lenLocked() int {
	return len(q.items) - q.head + q.held
}

// signal wakes the pump without blocking. One pending wakeup is enough
// because the pump re-checks the slice after every wakeup.
func (q *InMemoryQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *InMemoryQueue) pump() {
	defer close(q.out)
	for {
		h, ok := q.next()
		if !ok {
			return
		}
		q.out <- h

		q.mu.Lock()
		q.held = 0
		n := q.lenLocked()
		q.mu.Unlock()
		metrics.UpdatePendingHandles(n)
	}
}

// next blocks until a handle is available. It returns false when the queue
// is closed and empty.
func (q *InMemoryQueue) next() (Handle, bool) {
	q.mu.Lock()
	for q.head == len(q.items) {
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()
		<-q.ready
		q.mu.Lock()
	}

	h := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	q.held = 1
	q.mu.Unlock()
	return h, true
}
