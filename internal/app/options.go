package service

import (
	"time"

	"github.com/okian/sessiond/internal/adapters/repository"
	"github.com/okian/sessiond/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithBackend injects an already opened store backend. The service closes it on Stop.
func WithBackend(b repository.Backend) Option {
	return func(s *Service) {
		if b != nil {
			s.backend = b
		}
	}
}

// WithStore selects the backend Start opens: "badger" or "sqlite". An empty
// Badger path keeps the store in memory.
func WithStore(kind, path string) Option {
	return func(s *Service) {
		if kind != "" {
			s.storeKind = kind
		}
		s.storePath = path
	}
}

// WithSessionTTL sets the lifetime of staged and completed rows.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxBatchSize sets the largest accepted batch.
func WithMaxBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithFetchLimit caps the sessions Fetch returns.
func WithFetchLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fetchLimit = n
		}
	}
}

// WithLenientEventKind treats any event value other than "start" as an end.
func WithLenientEventKind(enabled bool) Option {
	return func(s *Service) {
		s.lenientKinds = enabled
	}
}

// WithAtomicPromotion toggles single-transaction promotion.
func WithAtomicPromotion(enabled bool) Option {
	return func(s *Service) {
		s.atomicPromotion = enabled
	}
}

// WithAsyncWriteTimeout bounds every background store write.
func WithAsyncWriteTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithBreaker configures the store write circuit breaker.
func WithBreaker(failureThreshold int, openTimeout time.Duration) Option {
	return func(s *Service) {
		if failureThreshold > 0 {
			s.breakerThreshold = failureThreshold
		}
		if openTimeout > 0 {
			s.breakerOpenTimeout = openTimeout
		}
	}
}

// WithSweepInterval sets the SQLite expiry sweep period.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithQueueInitialCapacity preallocates the pending-handle queue.
func WithQueueInitialCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueCapacity = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
