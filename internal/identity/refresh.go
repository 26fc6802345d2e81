package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/marketid/internal/dependencies/clock"
	"github.com/mcoot/marketid/internal/model"
)

// RefreshCoordinator collapses bursts of lifecycle signals into at most one
// session check at a time, with a cooldown between completed checks
type RefreshCoordinator struct {
	check    func(ctx context.Context) error
	clock    clock.Clock
	cooldown time.Duration
	debounce time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	bound    bool
	inFlight bool
	last     time.Time
}

// NewRefreshCoordinator creates an unbound coordinator that runs check
func NewRefreshCoordinator(check func(ctx context.Context) error, clk clock.Clock, cooldown, debounce time.Duration, logger *slog.Logger) *RefreshCoordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &RefreshCoordinator{
		check:    check,
		clock:    clk,
		cooldown: cooldown,
		debounce: debounce,
		logger:   logger.With(slog.String("component", "refresh")),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start binds lifecycle signals
func (c *RefreshCoordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bound = true
}

// Stop unbinds lifecycle signals; a check already underway still completes
func (c *RefreshCoordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bound = false
}

// Bound reports whether lifecycle signals are currently honoured
func (c *RefreshCoordinator) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bound
}

// Notify schedules a debounced check in response to signal. Lifecycle signals
// are ignored while unbound; the manual signal is always accepted.
// Returns whether a check was scheduled.
func (c *RefreshCoordinator) Notify(signal model.Signal) bool {
	c.mu.Lock()
	if !c.bound && signal != model.SignalManual {
		c.mu.Unlock()
		c.logger.Debug("signal ignored while unbound", slog.String("signal", string(signal)))
		return false
	}
	c.mu.Unlock()

	if !c.tryBegin(string(signal)) {
		return false
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.finish()

		if c.debounce > 0 {
			timer := time.NewTimer(c.debounce)
			select {
			case <-timer.C:
			case <-c.ctx.Done():
				timer.Stop()
				return
			}
		}
		c.run(c.ctx, string(signal))
	}()
	return true
}

// Refresh runs a check synchronously under the same guard, without debounce.
// Returns false with no error when the check was skipped.
func (c *RefreshCoordinator) Refresh(ctx context.Context) (bool, error) {
	if !c.tryBegin(string(model.SignalManual)) {
		return false, nil
	}
	defer c.finish()
	return true, c.run(ctx, string(model.SignalManual))
}

// Wait blocks until scheduled checks have finished
func (c *RefreshCoordinator) Wait() {
	c.wg.Wait()
}

// Close unbinds, cancels pending debounces and waits for running checks
func (c *RefreshCoordinator) Close() {
	c.Stop()
	c.cancel()
	c.wg.Wait()
}

func (c *RefreshCoordinator) tryBegin(trigger string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		c.logger.Debug("refresh skipped, check in flight", slog.String("trigger", trigger))
		return false
	}
	if !c.last.IsZero() && clock.Since(c.clock, c.last) < c.cooldown {
		c.logger.Debug("refresh skipped, cooling down", slog.String("trigger", trigger))
		return false
	}
	c.inFlight = true
	return true
}

func (c *RefreshCoordinator) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	c.last = c.clock.Now()
}

// run invokes check, converting a panic into a logged failure
func (c *RefreshCoordinator) run(ctx context.Context, trigger string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session check panicked",
				slog.String("trigger", trigger),
				slog.Any("panic", r))
			err = ErrPanicked
		}
	}()
	c.logger.Debug("running session check", slog.String("trigger", trigger))
	return c.check(ctx)
}
