// Package service provides the session correlation facade used by the HTTP
// API: batch ingestion, per-player reads and the component lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	eventqueue "github.com/okian/sessiond/internal/adapters/mq/queue"
	"github.com/okian/sessiond/internal/adapters/mq/worker"
	"github.com/okian/sessiond/internal/adapters/repository"
	"github.com/okian/sessiond/internal/domain/correlation"
	"github.com/okian/sessiond/internal/domain/ingest"
	"github.com/okian/sessiond/internal/domain/model"
	"github.com/okian/sessiond/internal/domain/types"
	"github.com/okian/sessiond/pkg/logger"
	"github.com/okian/sessiond/pkg/metrics"
)

// Store backend names accepted by WithStore.
const (
	StoreBadger = "badger"
	StoreSQLite = "sqlite"
)

// Summary counts what one batch did.
type Summary struct {
	Received   int `json:"received"`
	Staged     int `json:"staged"`
	Promoted   int `json:"promoted"`
	OutOfOrder int `json:"out_of_order"`
}

// Service wires the validator, matcher, store and completion tracker.
type Service struct {
	// mu is held shared by every batch and exclusively by Start and Stop, so
	// the tracker never shuts down under a batch that is still submitting.
	mu sync.RWMutex

	// Core components
	backend repository.Backend
	store   *repository.AsyncStore
	queue   *eventqueue.InMemoryQueue
	tracker *worker.Tracker
	parser  *ingest.Parser
	matcher *correlation.Matcher

	// Configuration
	storeKind          string
	storePath          string
	ttl                time.Duration
	maxBatchSize       int
	fetchLimit         int
	lenientKinds       bool
	atomicPromotion    bool
	writeTimeout       time.Duration
	breakerThreshold   int
	breakerOpenTimeout time.Duration
	sweepInterval      time.Duration
	queueCapacity      int

	// State
	started bool
	stopped bool

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		storeKind:          StoreBadger,
		ttl:                model.DefaultTTL,
		maxBatchSize:       ingest.DefaultMaxBatchSize,
		fetchLimit:         20,
		atomicPromotion:    true,
		writeTimeout:       5 * time.Second,
		breakerThreshold:   5,
		breakerOpenTimeout: 30 * time.Second,
		sweepInterval:      time.Minute,
		queueCapacity:      1024,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start opens the store and starts the completion tracker. Starting a
// running service is a no-op; a stopped service cannot be restarted.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting session service...")

	if s.backend == nil {
		b, err := s.openBackend()
		if err != nil {
			return err
		}
		s.backend = b
	}

	s.store = repository.NewAsyncStore(s.backend,
		repository.WithWriteTimeout(s.writeTimeout),
		repository.WithBreakerThreshold(s.breakerThreshold),
		repository.WithBreakerOpenTimeout(s.breakerOpenTimeout),
	)
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithInitialCapacity(s.queueCapacity))
	s.tracker = worker.NewTracker(s.queue)
	s.tracker.Start(ctx)

	parserOpts := []ingest.Option{ingest.WithMaxBatchSize(s.maxBatchSize)}
	if s.lenientKinds {
		parserOpts = append(parserOpts, ingest.WithLenientKinds())
	}
	s.parser = ingest.NewParser(parserOpts...)
	s.matcher = correlation.NewMatcher(s.store, s.tracker,
		correlation.WithTTL(s.ttl),
		correlation.WithAtomicPromotion(s.atomicPromotion),
	)

	s.started = true
	s.logger.Info(ctx, "session service started",
		logger.String("store", s.storeKind),
		logger.Bool("atomic_promotion", s.atomicPromotion && s.store.SupportsPromote()),
		logger.Bool("lenient_event_kind", s.lenientKinds),
		logger.Duration("ttl", s.ttl),
	)
	return nil
}

func (s *Service) openBackend() (repository.Backend, error) {
	switch s.storeKind {
	case StoreBadger:
		return repository.NewBadgerStore(s.storePath)
	case StoreSQLite:
		return repository.NewSQLiteStore(s.storePath, repository.WithSweepInterval(s.sweepInterval))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, s.storeKind)
	}
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	if err := s.Shutdown(context.Background()); err != nil && s.logger != nil {
		s.logger.Error(context.Background(), "shutdown failed", logger.Error(err))
	}
}

// Shutdown waits for in-flight batches, drains every pending write and
// closes the store. The drain always completes; a ctx deadline that passes
// first is reported in the returned error.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.stopped = true
		return nil
	}
	s.logger.Info(ctx, "stopping session service...")

	var errs []error
	if err := s.tracker.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain tracker: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	st := s.tracker.Stats(ctx)
	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "session service stopped",
		logger.Int64("writes_observed", st.Observed),
		logger.Int64("writes_failed", st.Failed),
	)
	return errors.Join(errs...)
}

func (s *Service) readyLocked() error {
	switch {
	case s.stopped:
		return ErrStopped
	case !s.started:
		return ErrNotStarted
	}
	return nil
}

// ReceiveEvents validates payload and applies its events in order. A size or
// schema error rejects the batch before any write. Ordering errors do not
// stop the batch; they are joined and returned once every event was applied.
// A store failure aborts the batch at the failing event.
func (s *Service) ReceiveEvents(ctx context.Context, payload []byte) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.readyLocked(); err != nil {
		return Summary{}, err
	}

	metrics.RecordBatchReceived()
	events, err := s.parser.Parse(ctx, payload)
	if err != nil {
		reason := "schema"
		if errors.Is(err, ingest.ErrBatchSize) {
			reason = "batch_size"
		}
		metrics.RecordBatchRejected(reason)
		s.logger.Debug(ctx, "batch rejected", logger.String("reason", reason), logger.Error(err))
		return Summary{}, err
	}

	sum := Summary{Received: len(events)}
	var ordering []error
	for _, ev := range events {
		metrics.RecordEventReceived(ev.Kind.String())
		outcome, err := s.matcher.Apply(ctx, ev)
		switch outcome {
		case correlation.OutcomeStaged:
			sum.Staged++
		case correlation.OutcomePromoted:
			sum.Promoted++
		case correlation.OutcomeOutOfOrder:
			sum.OutOfOrder++
		}
		if err == nil {
			continue
		}
		if errors.Is(err, correlation.ErrOrdering) {
			ordering = append(ordering, err)
			continue
		}
		metrics.RecordErrorByComponent("service", "store")
		s.logger.Error(ctx, "batch aborted",
			logger.String("player_id", ev.PlayerID),
			logger.String("session_id", ev.SessionID.String()),
			logger.Error(err),
		)
		return sum, err
	}
	return sum, errors.Join(ordering...)
}

// Fetch returns the newest completed sessions of playerID, newest end time
// first. The result is empty, not nil, when the player has none.
func (s *Service) Fetch(ctx context.Context, playerID string) ([]types.CompletedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.readyLocked(); err != nil {
		return nil, err
	}
	recs, err := s.store.QueryCompleted(ctx, playerID, s.fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("query completed sessions: %w", err)
	}
	return types.FromRecords(recs), nil
}

// Pending returns the staging row of a session, if any.
func (s *Service) Pending(ctx context.Context, key model.SessionKey) (model.IncompleteRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.readyLocked(); err != nil {
		return model.IncompleteRecord{}, false, err
	}
	return s.store.ReadIncomplete(ctx, key)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":            s.started,
		"store_backend":      s.storeKind,
		"max_batch_size":     s.maxBatchSize,
		"fetch_limit":        s.fetchLimit,
		"lenient_event_kind": s.lenientKinds,
		"ttl_seconds":        int64(s.ttl / time.Second),
	}

	if s.tracker != nil {
		stats["tracker"] = s.tracker.Stats(context.Background())
	}
	if s.started {
		stats["atomic_promotion"] = s.atomicPromotion && s.store.SupportsPromote()
		stats["breaker_state"] = s.store.BreakerState()
	}

	return stats
}
