package http

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInFlightTracker_Count(t *testing.T) {
	tracker := &InFlightTracker{}
	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
	tracker.Increment()
	tracker.Increment()
	if got := tracker.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
	tracker.Decrement()
	tracker.Decrement()
	tracker.Decrement()
	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() after extra Decrement = %d, want 0", got)
	}
}

func TestInFlightTracker_WaitForZero_Idle(t *testing.T) {
	tracker := &InFlightTracker{}
	if err := tracker.WaitForZero(context.Background()); err != nil {
		t.Errorf("WaitForZero() on idle tracker = %v, want nil", err)
	}
}

func TestInFlightTracker_WaitForZero(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- tracker.WaitForZero(ctx) }()

	time.Sleep(10 * time.Millisecond)
	tracker.Decrement()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitForZero() = %v, want nil", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("WaitForZero did not return after count reached zero")
	}
}

func TestInFlightTracker_WaitForZero_Reused(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()
	tracker.Decrement()
	tracker.Increment()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tracker.WaitForZero(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForZero() = %v, want DeadlineExceeded while a request is in flight", err)
	}
	tracker.Decrement()
	if err := tracker.WaitForZero(context.Background()); err != nil {
		t.Errorf("WaitForZero() = %v, want nil", err)
	}
}

func TestInFlightTracker_WaitForZero_ContextCanceled(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tracker.WaitForZero(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitForZero() = %v, want context.Canceled", err)
	}
}
