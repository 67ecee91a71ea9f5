package correlation

import (
	"time"

	"github.com/okian/sessiond/pkg/logger"
)

// Option configures a Matcher.
type Option func(*Matcher)

// WithTTL sets the lifetime written with every staging and completed row.
func WithTTL(ttl time.Duration) Option {
	return func(m *Matcher) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithAtomicPromotion selects a single transactional move when the store
// supports it. Disabled, promotion issues two independent writes.
func WithAtomicPromotion(enabled bool) Option {
	return func(m *Matcher) {
		m.atomic = enabled
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.logger = l
		}
	}
}
