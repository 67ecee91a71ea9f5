// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and SESSIOND_* env vars.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Supported store backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreBackend selects the session store: badger or sqlite.
	StoreBackend string `koanf:"store_backend"`
	// StorePath is the Badger directory or SQLite file. Empty means an
	// in-memory Badger store.
	StorePath string `koanf:"store_path"`
	// SessionTTLSeconds is the lifetime of staged and completed rows.
	SessionTTLSeconds int `koanf:"session_ttl_seconds"`
	// SweepIntervalS controls how often the SQLite backend purges expired rows.
	SweepIntervalS int `koanf:"sweep_interval_s"`

	// MaxBatchSize is the largest accepted batch.
	MaxBatchSize int `koanf:"max_batch_size"`
	// FetchLimit caps the completed sessions returned per player.
	FetchLimit int `koanf:"fetch_limit"`
	// LenientEventKind treats any event value other than "start" as an end.
	LenientEventKind bool `koanf:"lenient_event_kind"`
	// AtomicPromotion moves a correlated session in one store transaction
	// when the backend supports it.
	AtomicPromotion bool `koanf:"atomic_promotion"`
	// MaxBodyBytes bounds POST /events bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// AsyncWriteTimeoutMS bounds each background store write.
	AsyncWriteTimeoutMS int `koanf:"async_write_timeout_ms"`
	// BreakerFailureThreshold trips the write breaker after this many consecutive failures.
	BreakerFailureThreshold int `koanf:"breaker_failure_threshold"`
	// BreakerOpenTimeoutMS is how long the breaker stays open.
	BreakerOpenTimeoutMS int `koanf:"breaker_open_timeout_ms"`
	// QueueInitialCapacity preallocates the pending-handle queue.
	QueueInitialCapacity int `koanf:"queue_initial_capacity"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		StoreBackend:            BackendBadger,
		StorePath:               "",
		SessionTTLSeconds:       31_556_952,
		SweepIntervalS:          60,
		MaxBatchSize:            10,
		FetchLimit:              20,
		LenientEventKind:        false,
		AtomicPromotion:         true,
		MaxBodyBytes:            1 << 20,
		AsyncWriteTimeoutMS:     5_000,
		BreakerFailureThreshold: 5,
		BreakerOpenTimeoutMS:    30_000,
		QueueInitialCapacity:    1024,
	}
}

// SessionTTL returns SessionTTLSeconds as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

// AsyncWriteTimeout returns AsyncWriteTimeoutMS as a duration.
func (c *Config) AsyncWriteTimeout() time.Duration {
	return time.Duration(c.AsyncWriteTimeoutMS) * time.Millisecond
}

// BreakerOpenTimeout returns BreakerOpenTimeoutMS as a duration.
func (c *Config) BreakerOpenTimeout() time.Duration {
	return time.Duration(c.BreakerOpenTimeoutMS) * time.Millisecond
}

// SweepInterval returns SweepIntervalS as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalS) * time.Second
}

// Validate checks the values Load cannot repair.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreBackend != BackendBadger && c.StoreBackend != BackendSQLite:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	case c.StoreBackend == BackendSQLite && c.StorePath == "":
		return fmt.Errorf("%w: store_path is required for the sqlite backend", ErrInvalidConfig)
	case c.SessionTTLSeconds <= 0:
		return fmt.Errorf("%w: session_ttl_seconds must be positive", ErrInvalidConfig)
	case c.MaxBatchSize < 1:
		return fmt.Errorf("%w: max_batch_size must be at least 1", ErrInvalidConfig)
	case c.FetchLimit < 1:
		return fmt.Errorf("%w: fetch_limit must be at least 1", ErrInvalidConfig)
	}
	return nil
}
