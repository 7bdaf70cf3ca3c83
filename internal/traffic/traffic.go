// Package traffic keeps sliding windows of request outcomes. The health
// handler reads them to report overloaded and degraded states.
package traffic

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// retention bounds how long outcomes are kept regardless of the queried window.
const retention = 5 * time.Minute

var defaultTracker = NewTracker(nil)

// RecordSuccess records a successful request outcome.
func RecordSuccess() {
	defaultTracker.RecordSuccess()
}

// RecordError records a failed request outcome (upstream error, timeout, etc.).
func RecordError() {
	defaultTracker.RecordError()
}

// RecordDenied records a rate-limit denial (429).
func RecordDenied() {
	defaultTracker.RecordDenied()
}

// RequestCount returns the number of outcomes (success + error + denied) within the window.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// ErrorRate returns (errorCount, totalCount) within the window. Denials are excluded.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker counts outcomes in one-second buckets, oldest first. Windows are
// resolved to whole seconds.
type Tracker struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	buckets []bucket
}

type bucket struct {
	second                   int64
	success, errors, denials int
}

// NewTracker returns a tracker reading time from clock. A nil clock uses wall time.
func NewTracker(clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{clock: clock}
}

func (t *Tracker) RecordSuccess() { t.record(func(b *bucket) { b.success++ }) }

func (t *Tracker) RecordError() { t.record(func(b *bucket) { b.errors++ }) }

func (t *Tracker) RecordDenied() { t.record(func(b *bucket) { b.denials++ }) }

func (t *Tracker) record(inc func(*bucket)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now().Unix()
	if n := len(t.buckets); n == 0 || t.buckets[n-1].second < now {
		t.buckets = append(t.buckets, bucket{second: now})
	}
	inc(&t.buckets[len(t.buckets)-1])
	t.pruneLocked(now)
}

// sum totals the buckets inside window. Caller must not hold mu.
func (t *Tracker) sum(window time.Duration) bucket {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock.Now().Add(-window).Unix()
	var total bucket
	for i := len(t.buckets) - 1; i >= 0 && t.buckets[i].second >= cutoff; i-- {
		b := t.buckets[i]
		total.success += b.success
		total.errors += b.errors
		total.denials += b.denials
	}
	return total
}

// RequestCount returns every outcome within the window, denials included.
func (t *Tracker) RequestCount(window time.Duration) int {
	b := t.sum(window)
	return b.success + b.errors + b.denials
}

// DenialCount returns the rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	return t.sum(window).denials
}

// ErrorRate returns the errors and the successes plus errors within the window.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	b := t.sum(window)
	return b.errors, b.errors + b.success
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buckets = nil
}

// pruneLocked drops buckets older than retention. Caller holds mu.
func (t *Tracker) pruneLocked(now int64) {
	cutoff := now - int64(retention/time.Second)
	i := 0
	for i < len(t.buckets) && t.buckets[i].second < cutoff {
		i++
	}
	if i > 0 {
		t.buckets = append(t.buckets[:0], t.buckets[i:]...)
	}
}
