// Package repository defines the session store contracts, the write handles
// returned by asynchronous writes and the concrete storage backends.
package repository

import (
	"context"
	"time"

	"github.com/okian/sessiond/internal/domain/model"
)

// Backend is a synchronous session store with per-row TTL. Implementations
// must offer read-after-write consistency within one process.
type Backend interface {
	// UpsertIncomplete merges patch into the staging row for key and resets its TTL.
	UpsertIncomplete(ctx context.Context, key model.SessionKey, patch model.IncompletePatch, ttl time.Duration) error
	// ReadIncomplete returns the staging row for key. found is false when it
	// does not exist or has expired.
	ReadIncomplete(ctx context.Context, key model.SessionKey) (rec model.IncompleteRecord, found bool, err error)
	// DeleteIncomplete removes the staging row. Deleting a missing row is not an error.
	DeleteIncomplete(ctx context.Context, key model.SessionKey) error
	// InsertCompleted stores rec for its player. A session has at most one
	// completed row; inserting it again replaces the previous one.
	InsertCompleted(ctx context.Context, rec model.CompletedRecord, ttl time.Duration) error
	// QueryCompleted returns up to limit completed rows of playerID, newest end time first.
	QueryCompleted(ctx context.Context, playerID string, limit int) ([]model.CompletedRecord, error)
	// Close releases the backend.
	Close() error
}

// Promoter is implemented by backends that can move a session from staging
// to completed in one transaction.
type Promoter interface {
	// Promote inserts rec and deletes its staging row atomically. It is a
	// no-op when the staging row no longer exists.
	Promote(ctx context.Context, rec model.CompletedRecord, ttl time.Duration) error
}

// Store is the view of the session store used by correlation: synchronous
// staging access plus fire-and-forget writes that return handles.
type Store interface {
	UpsertIncomplete(ctx context.Context, key model.SessionKey, patch model.IncompletePatch, ttl time.Duration) error
	ReadIncomplete(ctx context.Context, key model.SessionKey) (model.IncompleteRecord, bool, error)
	DeleteIncompleteAsync(ctx context.Context, key model.SessionKey) *Future
	InsertCompletedAsync(ctx context.Context, rec model.CompletedRecord, ttl time.Duration) *Future
	// PromoteAsync returns false, and no handle, when the backend cannot
	// promote atomically.
	PromoteAsync(ctx context.Context, rec model.CompletedRecord, ttl time.Duration) (*Future, bool)
	QueryCompleted(ctx context.Context, playerID string, limit int) ([]model.CompletedRecord, error)
}
