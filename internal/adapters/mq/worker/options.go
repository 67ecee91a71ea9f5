package worker

import (
	"github.com/okian/sessiond/pkg/logger"
)

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithName sets the tracker name for identification and logging.
func WithName(name string) Option {
	return func(t *Tracker) {
		if name != "" {
			t.name = name
		}
	}
}

// WithLogger sets a custom logger for the tracker.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithObserver registers a hook called after each handle is observed.
func WithObserver(o Observer) Option {
	return func(t *Tracker) {
		t.observer = o
	}
}
