package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithInitialCapacity preallocates room for n handles. The queue still grows
// past n.
func WithInitialCapacity(n int) Option {
	return func(q *InMemoryQueue) {
		if n > 0 {
			q.initialCapacity = n
		}
	}
}
