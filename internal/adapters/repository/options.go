package repository

import (
	"time"

	"github.com/okian/sessiond/pkg/logger"
)

// Default backend and async-layer settings.
const (
	defaultSweepInterval      = time.Minute
	defaultWriteTimeout       = 5 * time.Second
	defaultBreakerThreshold   = 5
	defaultBreakerOpenTimeout = 30 * time.Second
)

type options struct {
	sweepInterval time.Duration
	syncWrites    bool
	now           func() time.Time
}

func defaultOptions() options {
	return options{
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
	}
}

// Option configures a backend.
type Option func(*options)

// WithSweepInterval sets how often the SQLite backend deletes expired rows.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}

// WithSyncWrites makes the Badger backend fsync every commit.
func WithSyncWrites(enabled bool) Option {
	return func(o *options) {
		o.syncWrites = enabled
	}
}

// WithClock replaces the wall clock used for SQLite expiry bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// AsyncOption configures an AsyncStore.
type AsyncOption func(*AsyncStore)

// WithWriteTimeout bounds every background write.
func WithWriteTimeout(d time.Duration) AsyncOption {
	return func(s *AsyncStore) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithBreakerThreshold trips the write breaker after n consecutive failures.
func WithBreakerThreshold(n int) AsyncOption {
	return func(s *AsyncStore) {
		if n > 0 {
			s.breakerThreshold = uint32(n) //nolint:gosec // positive
		}
	}
}

// WithBreakerOpenTimeout sets how long an open breaker rejects writes.
func WithBreakerOpenTimeout(d time.Duration) AsyncOption {
	return func(s *AsyncStore) {
		if d > 0 {
			s.breakerOpenTimeout = d
		}
	}
}

// WithAsyncLogger sets the logger of the async layer.
func WithAsyncLogger(l logger.Logger) AsyncOption {
	return func(s *AsyncStore) {
		if l != nil {
			s.logger = l
		}
	}
}
