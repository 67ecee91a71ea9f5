package repository

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/okian/sessiond/internal/domain/model"
	"github.com/okian/sessiond/pkg/logger"
	"github.com/okian/sessiond/pkg/metrics"
)

// AsyncStore adapts a Backend to Store. Background writes are detached from
// the caller's context, bounded by a timeout and guarded by a circuit breaker
// so a failing backend is not hammered by every promotion.
type AsyncStore struct {
	backend  Backend
	promoter Promoter
	breaker  *gobreaker.CircuitBreaker[struct{}]

	writeTimeout       time.Duration
	breakerThreshold   uint32
	breakerOpenTimeout time.Duration
	logger             logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ Store = (*AsyncStore)(nil)

// NewAsyncStore wraps b.
func NewAsyncStore(b Backend, opts ...AsyncOption) *AsyncStore {
	s := &AsyncStore{
		backend:            b,
		writeTimeout:       defaultWriteTimeout,
		breakerThreshold:   defaultBreakerThreshold,
		breakerOpenTimeout: defaultBreakerOpenTimeout,
		logger:             logger.Get().Named("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if p, ok := b.(Promoter); ok {
		s.promoter = p
	}

	threshold := s.breakerThreshold
	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "store-writes",
		MaxRequests: 1,
		Timeout:     s.breakerOpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(int(to))
			s.logger.Warn(context.Background(), "circuit breaker state changed",
				logger.String("breaker", name),
				logger.Stringer("from", from),
				logger.Stringer("to", to),
			)
		},
	})
	metrics.UpdateBreakerState(int(gobreaker.StateClosed))
	return s
}

// SupportsPromote reports whether the backend can promote atomically.
func (s *AsyncStore) SupportsPromote() bool { return s.promoter != nil }

// BreakerState returns the write breaker state name.
func (s *AsyncStore) BreakerState() string { return s.breaker.State().String() }

func (s *AsyncStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// UpsertIncomplete implements Store.
func (s *AsyncStore) UpsertIncomplete(ctx context.Context, key model.SessionKey, patch model.IncompletePatch, ttl time.Duration) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.backend.UpsertIncomplete(ctx, key, patch, ttl)
}

// ReadIncomplete implements Store.
func (s *AsyncStore) ReadIncomplete(ctx context.Context, key model.SessionKey) (model.IncompleteRecord, bool, error) {
	if s.isClosed() {
		return model.IncompleteRecord{}, false, ErrClosed
	}
	return s.backend.ReadIncomplete(ctx, key)
}

// QueryCompleted implements Store.
func (s *AsyncStore) QueryCompleted(ctx context.Context, playerID string, limit int) ([]model.CompletedRecord, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	return s.backend.QueryCompleted(ctx, playerID, limit)
}

// DeleteIncompleteAsync implements Store.
func (s *AsyncStore) DeleteIncompleteAsync(ctx context.Context, key model.SessionKey) *Future {
	return s.submit(ctx, OpDeleteIncomplete, key, func(ctx context.Context) error {
		return s.backend.DeleteIncomplete(ctx, key)
	})
}

// InsertCompletedAsync implements Store.
func (s *AsyncStore) InsertCompletedAsync(ctx context.Context, rec model.CompletedRecord, ttl time.Duration) *Future {
	return s.submit(ctx, OpInsertCompleted, rec.Key(), func(ctx context.Context) error {
		return s.backend.InsertCompleted(ctx, rec, ttl)
	})
}

// PromoteAsync implements Store.
func (s *AsyncStore) PromoteAsync(ctx context.Context, rec model.CompletedRecord, ttl time.Duration) (*Future, bool) {
	if s.promoter == nil {
		return nil, false
	}
	return s.submit(ctx, OpPromote, rec.Key(), func(ctx context.Context) error {
		return s.promoter.Promote(ctx, rec, ttl)
	}), true
}

func (s *AsyncStore) submit(ctx context.Context, op Op, key model.SessionKey, write func(context.Context) error) *Future {
	f := NewFuture(op, key)

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		f.Resolve(&AsyncWriteError{Op: op, Key: key, Err: ErrClosed})
		return f
	}
	s.wg.Add(1)
	s.mu.RUnlock()

	metrics.RecordAsyncSubmitted(string(op))
	detached := context.WithoutCancel(ctx)
	go func() {
		defer s.wg.Done()
		wctx, cancel := context.WithTimeout(detached, s.writeTimeout)
		defer cancel()

		_, err := s.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, write(wctx)
		})
		if err != nil {
			err = &AsyncWriteError{Op: op, Key: key, Err: err}
		}
		f.Resolve(err)
	}()
	return f
}

// Close rejects new writes, waits for in-flight ones and closes the backend.
func (s *AsyncStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
	return s.backend.Close()
}
