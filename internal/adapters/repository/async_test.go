package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/okian/sessiond/internal/domain/model"
)

// flakyBackend fails every write while failing is set.
type flakyBackend struct {
	Backend
	failing atomic.Bool
	writes  atomic.Int64
	block   chan struct{}
}

var errBoom = errors.New("boom")

func (f *flakyBackend) InsertCompleted(ctx context.Context, rec model.CompletedRecord, ttl time.Duration) error {
	f.writes.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.failing.Load() {
		return errBoom
	}
	return f.Backend.InsertCompleted(ctx, rec, ttl)
}

func completed(player string) model.CompletedRecord {
	return model.CompletedRecord{
		PlayerID:  player,
		SessionID: uuid.New(),
		Country:   "CA",
		StartTime: ts("2024-01-01T10:00:00Z"),
		EndTime:   ts("2024-01-01T11:00:00Z"),
	}
}

func TestFutureResolvesOnce(t *testing.T) {
	f := NewFuture(OpPromote, model.SessionKey{PlayerID: "p"})
	if f.Err() != nil {
		t.Fatal("unresolved future reported an error")
	}
	select {
	case <-f.Done():
		t.Fatal("done before resolve")
	default:
	}

	f.Resolve(errBoom)
	f.Resolve(nil)
	if !errors.Is(f.Err(), errBoom) {
		t.Fatalf("expected first outcome to stick, got %v", f.Err())
	}
	if err := f.Wait(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("wait returned %v", err)
	}
	if f.Op() != OpPromote || f.Key().PlayerID != "p" || f.Submitted().IsZero() {
		t.Fatal("handle metadata lost")
	}
}

func TestFutureWaitHonorsContext(t *testing.T) {
	f := NewFuture(OpDeleteIncomplete, model.SessionKey{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestAsyncStoreWrites(t *testing.T) {
	ctx := context.Background()
	s := NewAsyncStore(newBadger(t))
	if !s.SupportsPromote() {
		t.Fatal("badger should support promote")
	}

	rec := completed("p")
	f := s.InsertCompletedAsync(ctx, rec, time.Hour)
	if err := f.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := s.QueryCompleted(ctx, "p", 20)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected the inserted row, got %v %v", got, err)
	}

	if err := s.UpsertIncomplete(ctx, rec.Key(), model.IncompletePatch{EndTime: &rec.EndTime}, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteIncompleteAsync(ctx, rec.Key()).Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := s.ReadIncomplete(ctx, rec.Key()); found {
		t.Fatal("delete did not apply")
	}
}

func TestAsyncStoreDetachesFromCaller(t *testing.T) {
	block := make(chan struct{})
	fb := &flakyBackend{Backend: newBadger(t), block: block}
	s := NewAsyncStore(fb, WithWriteTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	f := s.InsertCompletedAsync(ctx, completed("p"), time.Hour)
	cancel()
	close(block)

	if err := f.Wait(context.Background()); err != nil {
		t.Fatalf("canceled request aborted the write: %v", err)
	}
}

func TestAsyncStoreWriteTimeout(t *testing.T) {
	fb := &flakyBackend{Backend: newBadger(t), block: make(chan struct{})}
	s := NewAsyncStore(fb, WithWriteTimeout(20*time.Millisecond))

	err := s.InsertCompletedAsync(context.Background(), completed("p"), time.Hour).Wait(context.Background())
	var awe *AsyncWriteError
	if !errors.As(err, &awe) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timed-out AsyncWriteError, got %v", err)
	}
	if !errors.Is(err, ErrAsyncWrite) || awe.Op != OpInsertCompleted {
		t.Fatalf("unexpected error shape %v", err)
	}
}

func TestAsyncStoreBreakerOpens(t *testing.T) {
	ctx := context.Background()
	fb := &flakyBackend{Backend: newBadger(t)}
	fb.failing.Store(true)
	s := NewAsyncStore(fb, WithBreakerThreshold(2), WithBreakerOpenTimeout(time.Minute))

	for i := 0; i < 2; i++ {
		if err := s.InsertCompletedAsync(ctx, completed("p"), time.Hour).Wait(ctx); !errors.Is(err, errBoom) {
			t.Fatalf("write %d: expected backend error, got %v", i, err)
		}
	}
	err := s.InsertCompletedAsync(ctx, completed("p"), time.Hour).Wait(ctx)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if fb.writes.Load() != 2 {
		t.Fatalf("open breaker let %d writes through", fb.writes.Load())
	}
	if s.BreakerState() != gobreaker.StateOpen.String() {
		t.Fatalf("breaker state %s", s.BreakerState())
	}
}

type plainBackend struct{ Backend }

func TestAsyncStoreWithoutPromoter(t *testing.T) {
	s := NewAsyncStore(plainBackend{newBadger(t)})
	if f, ok := s.PromoteAsync(context.Background(), completed("p"), time.Hour); ok || f != nil {
		t.Fatal("promote offered by a backend without Promoter")
	}
}

func TestAsyncStoreClose(t *testing.T) {
	ctx := context.Background()
	block := make(chan struct{})
	fb := &flakyBackend{Backend: newBadger(t), block: block}
	s := NewAsyncStore(fb, WithWriteTimeout(time.Second))

	inflight := s.InsertCompletedAsync(ctx, completed("p"), time.Hour)
	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()

	select {
	case <-closed:
		t.Fatal("close returned with a write in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(block)
	if err := <-closed; err != nil {
		t.Fatal(err)
	}
	if err := inflight.Err(); err != nil {
		t.Fatalf("in-flight write failed: %v", err)
	}

	if err := s.DeleteIncompleteAsync(ctx, model.SessionKey{PlayerID: "p"}).Wait(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
	if err := s.UpsertIncomplete(ctx, model.SessionKey{}, model.IncompletePatch{}, time.Hour); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
