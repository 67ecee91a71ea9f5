package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/sessiond/internal/domain/model"
)

// Op names an asynchronous write.
type Op string

// Asynchronous write operations.
const (
	OpInsertCompleted  Op = "insert_completed"
	OpDeleteIncomplete Op = "delete_incomplete"
	OpPromote          Op = "promote"
)

// Future is the handle of one in-flight write. It resolves exactly once.
type Future struct {
	op        Op
	key       model.SessionKey
	submitted time.Time

	once sync.Once
	done chan struct{}
	err  error
}

// NewFuture returns an unresolved handle.
func NewFuture(op Op, key model.SessionKey) *Future {
	return &Future{
		op:        op,
		key:       key,
		submitted: time.Now(),
		done:      make(chan struct{}),
	}
}

// Op returns the write operation.
func (f *Future) Op() Op { return f.op }

// Key returns the session the write targets.
func (f *Future) Key() model.SessionKey { return f.key }

// Submitted returns when the handle was created.
func (f *Future) Submitted() time.Time { return f.submitted }

// Done is closed once the write has an outcome.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err returns the outcome. It is nil until Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Resolve records the outcome. Later calls are ignored.
func (f *Future) Resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Wait blocks until the write resolves or ctx ends.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
