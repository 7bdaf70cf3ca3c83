package http

import (
	"context"
	"sync"
)

// InFlightTracker counts requests being served so shutdown can wait for them to drain.
type InFlightTracker struct {
	mu    sync.Mutex
	count int64
	// drained is closed while count is zero; nil means "zero" before first use.
	drained chan struct{}
}

func (t *InFlightTracker) Increment() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count == 0 {
		t.drained = make(chan struct{})
	}
	t.count++
}

func (t *InFlightTracker) Decrement() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count == 0 {
		return
	}
	t.count--
	if t.count == 0 {
		close(t.drained)
	}
}

func (t *InFlightTracker) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// WaitForZero blocks until the count reaches zero or ctx is done.
func (t *InFlightTracker) WaitForZero(ctx context.Context) error {
	t.mu.Lock()
	if t.count == 0 {
		t.mu.Unlock()
		return nil
	}
	ch := t.drained
	t.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// globalInFlightTracker is the process-wide counter fed by MetricsMiddleware.
var globalInFlightTracker = &InFlightTracker{}

// InFlightCount returns the current number of in-flight requests.
func InFlightCount() int64 {
	return globalInFlightTracker.Count()
}

// WaitForInFlight blocks until in-flight requests reach zero or ctx is done.
func WaitForInFlight(ctx context.Context) error {
	return globalInFlightTracker.WaitForZero(ctx)
}
