// Package worker runs the completion tracker: the background task that
// observes every asynchronous store write until it has an outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/sessiond/internal/adapters/mq/queue"
	"github.com/okian/sessiond/internal/adapters/repository"
	"github.com/okian/sessiond/pkg/logger"
	"github.com/okian/sessiond/pkg/metrics"
)

// ErrStopped is returned by Submit once shutdown has begun.
var ErrStopped = errors.New("tracker stopped")

// State is the tracker lifecycle state. Transitions only move forward.
type State int32

// Tracker states.
const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Queue is the handle FIFO the tracker drains.
type Queue interface {
	Enqueue(ctx context.Context, h queue.Handle) bool
	Dequeue() <-chan queue.Handle
	Len(ctx context.Context) int
	Close() error
}

// Observer is called once per handle after its outcome is known.
type Observer func(h *repository.Future, err error)

// Worker is a background loop with a graceful shutdown.
type Worker interface {
	// Run processes handles until the queue is closed and drained.
	Run(ctx context.Context)

	// Shutdown stops intake and waits until every queued handle was observed.
	Shutdown(ctx context.Context) error
}

// Stats is a point-in-time view of the tracker.
type Stats struct {
	State     string `json:"state"`
	Submitted int64  `json:"submitted"`
	Observed  int64  `json:"observed"`
	Failed    int64  `json:"failed"`
	Pending   int    `json:"pending"`
}

// Tracker drains write handles and reports failed writes. Failures are
// logged and counted and never reach the code that submitted the write.
type Tracker struct {
	queue    Queue
	name     string
	logger   logger.Logger
	observer Observer

	// mu orders Submit against the shutdown transition so that nothing is
	// enqueued after the queue is closed.
	mu    sync.RWMutex
	state atomic.Int32

	running atomic.Bool
	done    chan struct{}

	submitted atomic.Int64
	observed  atomic.Int64
	failed    atomic.Int64
}

var _ Worker = (*Tracker)(nil)

// NewTracker creates a tracker over q. Call Start to begin draining.
func NewTracker(q Queue, opts ...Option) *Tracker {
	t := &Tracker{
		queue:  q,
		name:   "tracker",
		done:   make(chan struct{}),
		logger: logger.Get().Named("tracker"),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.name != "tracker" {
		t.logger = t.logger.Named(t.name)
	}
	metrics.UpdateTrackerState(int(StateRunning))
	return t
}

// Start runs the drain loop in a new goroutine.
func (t *Tracker) Start(ctx context.Context) {
	go t.Run(ctx)
}

// Run drains the queue until it is closed and empty. Cancelling ctx does not
// stop the loop; only Shutdown does, so no handle is dropped unobserved.
// A second concurrent Run waits for the first to finish.
func (t *Tracker) Run(ctx context.Context) {
	if !t.running.CompareAndSwap(false, true) {
		<-t.done
		return
	}
	defer func() {
		t.state.Store(int32(StateStopped))
		metrics.UpdateTrackerState(int(StateStopped))
		close(t.done)
	}()

	for h := range t.queue.Dequeue() {
		t.observe(ctx, h)
	}
	t.logger.Debug(ctx, "drain loop finished",
		logger.Int64("observed", t.observed.Load()),
		logger.Int64("failed", t.failed.Load()),
	)
}

// Submit hands h to the tracker. It never blocks.
func (t *Tracker) Submit(ctx context.Context, h *repository.Future) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if State(t.state.Load()) != StateRunning {
		return ErrStopped
	}
	if !t.queue.Enqueue(ctx, h) {
		return ErrStopped
	}
	t.submitted.Add(1)
	return nil
}

// Shutdown moves the tracker to draining and blocks until every handle
// submitted before the call has been observed. If ctx ends first the drain
// still runs to completion and the deadline error is returned afterwards.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	if State(t.state.Load()) == StateRunning {
		t.state.Store(int32(StateDraining))
		metrics.UpdateTrackerState(int(StateDraining))
		if err := t.queue.Close(); err != nil {
			t.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	t.mu.Unlock()

	// drain even if Start was never called
	go t.Run(context.WithoutCancel(ctx))

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
	}

	t.logger.Warn(ctx, "shutdown deadline passed, still draining",
		logger.Int("pending", t.queue.Len(ctx)),
	)
	start := time.Now()
	<-t.done
	t.logger.Info(ctx, "drain finished after deadline", logger.Duration("overrun", time.Since(start)))
	return fmt.Errorf("shutdown exceeded deadline: %w", ctx.Err())
}

// Done is closed once the tracker has stopped.
func (t *Tracker) Done() <-chan struct{} { return t.done }

// State returns the lifecycle state.
func (t *Tracker) State() State { return State(t.state.Load()) }

// Stats returns the tracker counters.
func (t *Tracker) Stats(ctx context.Context) Stats {
	return Stats{
		State:     t.State().String(),
		Submitted: t.submitted.Load(),
		Observed:  t.observed.Load(),
		Failed:    t.failed.Load(),
		Pending:   t.queue.Len(ctx),
	}
}

func (t *Tracker) observe(ctx context.Context, h *repository.Future) {
	<-h.Done()
	err := h.Err()
	op := string(h.Op())

	metrics.RecordAsyncLatency(op, float64(time.Since(h.Submitted()).Microseconds())/1000)
	t.observed.Add(1)

	if err != nil {
		t.failed.Add(1)
		metrics.RecordAsyncFailed(op)
		metrics.RecordErrorByComponent("tracker", "async_write")
		key := h.Key()
		t.logger.Error(ctx, "async write failed",
			logger.String("op", op),
			logger.String("player_id", key.PlayerID),
			logger.String("session_id", key.SessionID.String()),
			logger.Error(err),
		)
	}

	if t.observer != nil {
		t.observer(h, err)
	}
}
