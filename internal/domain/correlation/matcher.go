// Package correlation pairs start and end events of a session through the
// staging table and promotes completed sessions.
//
// Every event is written to its staging row and the row is read back. The
// event that supplies the second bound triggers promotion, whichever kind it
// is, so a pair correlates to exactly one promotion attempt regardless of
// arrival order.
package correlation

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/sessiond/internal/adapters/repository"
	"github.com/okian/sessiond/internal/domain/model"
	"github.com/okian/sessiond/pkg/logger"
	"github.com/okian/sessiond/pkg/metrics"
)

// Outcome is what applying one event did.
type Outcome int

// Outcomes.
const (
	OutcomeStaged Outcome = iota + 1
	OutcomePromoted
	OutcomeOutOfOrder
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStaged:
		return "staged"
	case OutcomePromoted:
		return "promoted"
	case OutcomeOutOfOrder:
		return "out_of_order"
	default:
		return "unknown"
	}
}

// Store is the subset of the session store the matcher needs.
type Store interface {
	UpsertIncomplete(ctx context.Context, key model.SessionKey, patch model.IncompletePatch, ttl time.Duration) error
	ReadIncomplete(ctx context.Context, key model.SessionKey) (model.IncompleteRecord, bool, error)
	DeleteIncompleteAsync(ctx context.Context, key model.SessionKey) *repository.Future
	InsertCompletedAsync(ctx context.Context, rec model.CompletedRecord, ttl time.Duration) *repository.Future
	PromoteAsync(ctx context.Context, rec model.CompletedRecord, ttl time.Duration) (*repository.Future, bool)
}

// Submitter accepts write handles for background observation.
type Submitter interface {
	Submit(ctx context.Context, h *repository.Future) error
}

// Matcher applies events to the store. It holds no per-session state.
type Matcher struct {
	store     Store
	submitter Submitter
	ttl       time.Duration
	atomic    bool
	logger    logger.Logger
}

// NewMatcher creates a matcher with the default one-year TTL and atomic
// promotion enabled.
func NewMatcher(store Store, submitter Submitter, opts ...Option) *Matcher {
	m := &Matcher{
		store:     store,
		submitter: submitter,
		ttl:       model.DefaultTTL,
		atomic:    true,
		logger:    logger.Get().Named("matcher"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply stages ev and promotes its session when both bounds are known. It
// returns an *OrderingError with OutcomeOutOfOrder for a pair whose start is
// not before its end, and an ErrStore-wrapped error when the synchronous
// store access fails.
func (m *Matcher) Apply(ctx context.Context, ev model.Event) (Outcome, error) {
	key := ev.Key()

	if err := m.store.UpsertIncomplete(ctx, key, ev.Patch(), m.ttl); err != nil {
		metrics.RecordErrorByComponent("matcher", "upsert")
		return 0, fmt.Errorf("%w: upsert %s: %w", ErrStore, key, err)
	}
	rec, found, err := m.store.ReadIncomplete(ctx, key)
	if err != nil {
		metrics.RecordErrorByComponent("matcher", "read")
		return 0, fmt.Errorf("%w: read %s: %w", ErrStore, key, err)
	}
	if !found {
		metrics.RecordErrorByComponent("matcher", "read_after_write")
		return 0, fmt.Errorf("%w: staging row %s missing right after write", ErrStore, key)
	}

	if !rec.Complete() {
		metrics.RecordSessionStaged()
		return OutcomeStaged, nil
	}

	if !rec.Ordered() {
		metrics.RecordSessionOutOfOrder()
		oerr := &OrderingError{
			PlayerID:  key.PlayerID,
			SessionID: key.SessionID,
			StartTime: *rec.StartTime,
			EndTime:   *rec.EndTime,
		}
		m.logger.Warn(ctx, "session not promoted", logger.Error(oerr))
		return OutcomeOutOfOrder, oerr
	}

	m.promote(ctx, rec.Completed())
	metrics.RecordSessionPromoted()
	return OutcomePromoted, nil
}

func (m *Matcher) promote(ctx context.Context, c model.CompletedRecord) {
	if m.atomic {
		if f, ok := m.store.PromoteAsync(ctx, c, m.ttl); ok {
			m.hand(ctx, f)
			return
		}
	}
	m.hand(ctx, m.store.InsertCompletedAsync(ctx, c, m.ttl))
	m.hand(ctx, m.store.DeleteIncompleteAsync(ctx, c.Key()))
}

// hand gives f to the submitter. When the submitter refuses, the outcome is
// awaited here so it is still observed.
func (m *Matcher) hand(ctx context.Context, f *repository.Future) {
	if err := m.submitter.Submit(ctx, f); err == nil {
		return
	}
	if err := f.Wait(context.WithoutCancel(ctx)); err != nil {
		key := f.Key()
		metrics.RecordAsyncFailed(string(f.Op()))
		m.logger.Error(ctx, "async write failed",
			logger.String("op", string(f.Op())),
			logger.String("player_id", key.PlayerID),
			logger.String("session_id", key.SessionID.String()),
			logger.Error(err),
		)
	}
}
