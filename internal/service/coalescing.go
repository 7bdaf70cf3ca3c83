package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// requestCoalescer collapses concurrent fetches for the same key into one upstream call.
type requestCoalescer[T any] struct {
	group   singleflight.Group
	timeout time.Duration
}

func newRequestCoalescer[T any](timeout time.Duration) *requestCoalescer[T] {
	return &requestCoalescer[T]{timeout: timeout}
}

// GetOrDo joins the in-flight call for key if there is one, otherwise starts fn.
// shared reports whether the caller joined a call started by someone else.
// Waiting respects ctx and the coalescer timeout; fn keeps running for other waiters.
func (rc *requestCoalescer[T]) GetOrDo(ctx context.Context, key string, fn func() (T, error)) (result T, shared bool, err error) {
	var ran bool
	ch := rc.group.DoChan(key, func() (interface{}, error) {
		ran = true
		v, err := fn()
		return v, err
	})

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case res := <-ch:
		v, _ := res.Val.(T)
		// ran is only written by the goroutine that delivered res
		return v, !ran, res.Err
	case <-waitCtx.Done():
		var zero T
		return zero, false, waitCtx.Err()
	}
}
