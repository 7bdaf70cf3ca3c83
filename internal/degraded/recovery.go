// Package degraded runs upstream recovery checks after the service reports a
// degraded state. Checks back off along a Fibonacci sequence.
package degraded

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/agrimeteo-service/internal/traffic"
)

const attemptTimeout = 10 * time.Second

// ValidateFunc checks upstream health. Returns nil once recovered.
type ValidateFunc func(ctx context.Context) error

// ErrorRate returns (errorCount, totalCount) of weather requests within the window.
func ErrorRate(window time.Duration) (errors, total int) {
	return traffic.ErrorRate(window)
}

// Recovery coordinates recovery attempts. Notify is safe to call from handlers.
type Recovery struct {
	validate    ValidateFunc
	initial     time.Duration
	max         time.Duration
	clock       clockwork.Clock
	logger      *zap.Logger
	onRecovered func()
	onExhausted func()

	trigger chan struct{}
	running atomic.Bool
	wg      sync.WaitGroup
}

// Config configures a Recovery.
type Config struct {
	Validate ValidateFunc
	Initial  time.Duration
	Max      time.Duration
	Clock    clockwork.Clock
	Logger   *zap.Logger
	// OnRecovered runs after a successful check. Defaults to traffic.Reset.
	OnRecovered func()
	OnExhausted func()
}

// NewRecovery builds a Recovery. Nothing runs until Start.
func NewRecovery(cfg Config) *Recovery {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.OnRecovered == nil {
		cfg.OnRecovered = traffic.Reset
	}
	if cfg.OnExhausted == nil {
		cfg.OnExhausted = func() {}
	}
	return &Recovery{
		validate:    cfg.Validate,
		initial:     cfg.Initial,
		max:         cfg.Max,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		onRecovered: cfg.OnRecovered,
		onExhausted: cfg.OnExhausted,
		trigger:     make(chan struct{}, 1),
	}
}

// Notify signals a degraded state. Non-blocking; ignored while a run is in progress.
func (r *Recovery) Notify() {
	if r == nil {
		return
	}
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Running reports whether a recovery sequence is in progress.
func (r *Recovery) Running() bool {
	return r.running.Load()
}

// Start listens for notifications until ctx is done.
func (r *Recovery) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.trigger:
				if r.running.Swap(true) {
					continue
				}
				r.wg.Add(1)
				go func() {
					defer r.wg.Done()
					defer r.running.Store(false)
					r.Run(ctx)
				}()
			}
		}
	}()
}

// Wait blocks until the listener and any in-flight run have returned.
func (r *Recovery) Wait() {
	r.wg.Wait()
}

// Run executes one recovery sequence. It returns true when validate succeeded.
// After the final failed attempt onExhausted is called.
func (r *Recovery) Run(ctx context.Context) bool {
	if r.validate == nil || r.initial <= 0 || r.max < r.initial {
		return false
	}
	delays := fibDelays(r.initial, r.max)
	for i, d := range delays {
		select {
		case <-ctx.Done():
			return false
		case <-r.clock.After(d):
		}
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		err := r.validate(attemptCtx)
		cancel()
		if err == nil {
			r.logger.Info("upstream recovered", zap.Int("attempt", i+1))
			r.onRecovered()
			return true
		}
		r.logger.Warn("recovery attempt failed",
			zap.Int("attempt", i+1),
			zap.Duration("delay", d),
			zap.Error(err),
		)
	}
	r.logger.Error("recovery attempts exhausted", zap.Int("attempts", len(delays)))
	r.onExhausted()
	return false
}

// fibDelays returns initial scaled by 1, 2, 3, 5, 8... while not above max.
func fibDelays(initial, max time.Duration) []time.Duration {
	if initial <= 0 {
		return nil
	}
	a, b := time.Duration(1), time.Duration(2)
	var out []time.Duration
	for {
		d := a * initial
		if d > max {
			break
		}
		out = append(out, d)
		a, b = b, a+b
	}
	return out
}
