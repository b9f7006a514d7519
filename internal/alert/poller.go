package alert

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Poller drives periodic alert evaluation. Start performs one immediate
// sweep and then sweeps on a fixed cadence; starting again replaces the
// previous timer so two tickers never run at once. A reentrancy guard
// additionally ensures a slow sweep still in flight is never overlapped by
// the next tick, and every sweep runs under a deadline so a hung price
// fetch cannot stall the loop.
type Poller struct {
	store   *Store
	timeout time.Duration
	log     *slog.Logger

	mu       sync.Mutex
	stopCh   chan struct{}
	inFlight atomic.Bool
}

// NewPoller creates a Poller for the given store. timeout bounds each
// sweep's price fetch.
func NewPoller(store *Store, timeout time.Duration, log *slog.Logger) *Poller {
	return &Poller{store: store, timeout: timeout, log: log}
}

// Start begins polling at the given interval, replacing any running timer.
// One sweep runs immediately before the recurring schedule.
func (p *Poller) Start(interval time.Duration) {
	p.mu.Lock()
	if p.stopCh != nil {
		close(p.stopCh)
	}
	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.mu.Unlock()

	p.log.Info("alert polling started", "interval", interval)

	go func() {
		p.sweep()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.sweep()
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop cancels the recurring timer. Stopping when not running is a no-op.
// Stopping once no active alerts remain is the caller's responsibility;
// the poller never stops itself.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
		p.log.Info("alert polling stopped")
	}
	p.mu.Unlock()
}

// Running reports whether a recurring timer is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopCh != nil
}

// sweep runs one guarded evaluation cycle.
func (p *Poller) sweep() {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.log.Warn("previous sweep still in flight, skipping cycle")
		return
	}
	defer p.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	p.store.Evaluate(ctx)
}
