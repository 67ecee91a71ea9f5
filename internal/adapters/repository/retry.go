package repository

import (
	"context"
	"math/rand/v2"
	"time"
)

// retryConfig controls retries of transient backend errors such as
// transaction conflicts or a busy database.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{ //nolint:gochecknoglobals // shared default
	maxRetries: 3,
	baseDelay:  10 * time.Millisecond,
	maxDelay:   200 * time.Millisecond,
}

// retryOp runs fn until it succeeds, returns a non-transient error or the
// retries run out. Backoff is exponential with jitter.
func retryOp(ctx context.Context, cfg retryConfig, transient func(error) bool, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !transient(lastErr) {
			return lastErr
		}
		if attempt == cfg.maxRetries {
			break
		}
		t := time.NewTimer(backoffDelay(cfg, attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return lastErr
		case <-t.C:
		}
	}
	return lastErr
}

func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := cfg.baseDelay << uint(attempt) //nolint:gosec // attempt is small
	if delay > cfg.maxDelay {
		delay = cfg.maxDelay
	}
	return delay + rand.N(cfg.baseDelay) //nolint:gosec // jitter only
}
