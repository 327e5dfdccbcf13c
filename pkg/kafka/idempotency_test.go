package kafka

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestMemoryIdempotencyStore_AddAndContains(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	ctx := context.Background()

	if err := store.Add(ctx, "evt-1"); err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}

	got, err := store.Contains(ctx, "evt-1")
	if err != nil {
		t.Fatalf("Contains() returned error: %v", err)
	}
	if !got {
		t.Error("Contains(evt-1) = false, want true after Add")
	}

	got, err = store.Contains(ctx, "evt-unknown")
	if err != nil {
		t.Fatalf("Contains() returned error: %v", err)
	}
	if got {
		t.Error("Contains(evt-unknown) = true, want false for unknown ID")
	}
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	store := NewMemoryIdempotencyStore(10 * time.Millisecond)
	ctx := context.Background()

	if err := store.Add(ctx, "evt-expire"); err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	got, err := store.Contains(ctx, "evt-expire")
	if err != nil {
		t.Fatalf("Contains() returned error: %v", err)
	}
	if got {
		t.Error("Contains(evt-expire) = true after TTL expiry, want false")
	}
}

func TestMemoryIdempotencyStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	ctx := context.Background()

	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_ = store.Add(ctx, "evt-concurrent")
			_, _ = store.Contains(ctx, "evt-concurrent")
		}()
	}

	wg.Wait()

	if store.Len() != 1 {
		t.Errorf("Len() = %d after concurrent adds of same key, want 1", store.Len())
	}
}

// promotionEvent constructs an Event directly rather than through NewEvent,
// which generates a random ID.
func promotionEvent(eventID string) *Event {
	return &Event{
		EventID:     eventID,
		EventType:   "promotion.activated",
		AggregateID: "promo-1",
	}
}

func TestIdempotentHandler_ProcessesOnce(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)

	var callCount int32
	inner := func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&callCount, 1)
		return nil
	}

	handler := IdempotentHandler(store, inner, testLogger())
	event := promotionEvent("evt-dup")

	if err := handler(context.Background(), event); err != nil {
		t.Fatalf("first call returned error: %v", err)
	}
	if err := handler(context.Background(), event); err != nil {
		t.Fatalf("second call returned error: %v", err)
	}

	if n := atomic.LoadInt32(&callCount); n != 1 {
		t.Errorf("inner handler called %d times, want 1", n)
	}
}

func TestIdempotentHandler_EmptyEventID_PassesThrough(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)

	var callCount int32
	inner := func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&callCount, 1)
		return nil
	}

	handler := IdempotentHandler(store, inner, testLogger())
	event := promotionEvent("")

	for i := 0; i < 3; i++ {
		if err := handler(context.Background(), event); err != nil {
			t.Fatalf("call %d returned error: %v", i+1, err)
		}
	}

	if n := atomic.LoadInt32(&callCount); n != 3 {
		t.Errorf("inner handler called %d times, want 3 without an event ID", n)
	}
}

func TestIdempotentHandler_HandlerError_DoesNotMarkProcessed(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)

	handlerErr := errors.New("processing failed")
	var callCount int32
	inner := func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&callCount, 1)
		return handlerErr
	}

	handler := IdempotentHandler(store, inner, testLogger())
	event := promotionEvent("evt-err")

	if err := handler(context.Background(), event); !errors.Is(err, handlerErr) {
		t.Fatalf("expected handlerErr, got: %v", err)
	}

	exists, storeErr := store.Contains(context.Background(), "evt-err")
	if storeErr != nil {
		t.Fatalf("store.Contains() returned error: %v", storeErr)
	}
	if exists {
		t.Error("event ID was stored despite handler error")
	}

	if err := handler(context.Background(), event); !errors.Is(err, handlerErr) {
		t.Fatalf("expected handlerErr on retry, got: %v", err)
	}
	if n := atomic.LoadInt32(&callCount); n != 2 {
		t.Errorf("inner handler called %d times, want 2", n)
	}
}
