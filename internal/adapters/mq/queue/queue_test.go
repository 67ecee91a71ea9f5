package queue

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/okian/sessiond/internal/adapters/repository"
	"github.com/okian/sessiond/internal/domain/model"
)

func handle(id string) Handle {
	return repository.NewFuture(repository.OpPromote, model.SessionKey{PlayerID: id})
}

func receive(t *testing.T, ch <-chan Handle) Handle {
	t.Helper()
	select {
	case h, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return h
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a handle")
	}
	return nil
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithInitialCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, handle("p1")) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	h := receive(t, q.Dequeue())
	if h.Key().PlayerID != "p1" {
		t.Errorf("expected p1, got %v", h.Key().PlayerID)
	}

	deadline := time.Now().Add(time.Second)
	for q.Len(ctx) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_GrowsPastInitialCapacity(t *testing.T) {
	q := NewInMemoryQueue(WithInitialCapacity(2))
	ctx := context.Background()

	for i := 0; i < 10_000; i++ {
		if !q.Enqueue(ctx, handle(strconv.Itoa(i))) {
			t.Fatalf("enqueue %d refused", i)
		}
	}
	if l := q.Len(ctx); l != 10_000 {
		t.Fatalf("expected 10000 queued, got %d", l)
	}

	for i := 0; i < 10_000; i++ {
		if got := receive(t, q.Dequeue()).Key().PlayerID; got != strconv.Itoa(i) {
			t.Fatalf("FIFO broken at %d: got %s", i, got)
		}
	}
}

func TestInMemoryQueue_CloseDrainsThenCloses(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q.Enqueue(ctx, handle(strconv.Itoa(i)))
	}
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if !q.IsClosed() {
		t.Fatal("expected closed")
	}
	if q.Enqueue(ctx, handle("late")) {
		t.Fatal("enqueue after close succeeded")
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	var got []string
	for h := range q.Dequeue() {
		got = append(got, h.Key().PlayerID)
	}
	if len(got) != 3 || got[0] != "0" || got[2] != "2" {
		t.Fatalf("expected the three accepted handles in order, got %v", got)
	}
}

func TestInMemoryQueue_IdleConsumerWakes(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	got := make(chan Handle, 1)
	go func() { got <- <-q.Dequeue() }()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue(ctx, handle("late-arrival"))

	select {
	case h := <-got:
		if h.Key().PlayerID != "late-arrival" {
			t.Fatalf("unexpected handle %v", h.Key())
		}
	case <-time.After(time.Second):
		t.Fatal("idle consumer was not woken")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()
	producers, perProducer := 10, 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(ctx, handle(strconv.Itoa(p)+"-"+strconv.Itoa(i)))
			}
		}(p)
	}

	seen := make(map[string]bool)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for h := range q.Dequeue() {
			id := h.Key().PlayerID
			if seen[id] {
				t.Errorf("duplicate handle %s", id)
			}
			seen[id] = true
		}
	}()

	wg.Wait()
	_ = q.Close()
	<-done

	if len(seen) != producers*perProducer {
		t.Fatalf("expected %d handles, got %d", producers*perProducer, len(seen))
	}
}
