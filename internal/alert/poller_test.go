package alert

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketdesk/internal/domain"
	"marketdesk/internal/localstore"
	"marketdesk/internal/notify"
)

// blockingPrices blocks each fetch until released, counting entries.
type blockingPrices struct {
	mu      sync.Mutex
	entered int
	release chan struct{}
}

func (b *blockingPrices) ComparePrices(ctx context.Context, symbols []string, _ string) (map[string]domain.Quote, error) {
	b.mu.Lock()
	b.entered++
	b.mu.Unlock()
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return map[string]domain.Quote{}, nil
}

func (b *blockingPrices) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entered
}

func newPollerStore(t *testing.T, prices *blockingPrices) *Store {
	t.Helper()
	kv, err := localstore.NewFileKV(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileKV: %v", err)
	}
	s := NewStore(kv, notify.NewNotifier(), prices, nil, nil, slog.Default())
	if _, err := s.Add("AAPL", domain.AlertAbove, decimal.NewFromInt(100), ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return s
}

func TestSweepGuardsAgainstOverlap(t *testing.T) {
	prices := &blockingPrices{release: make(chan struct{})}
	s := newPollerStore(t, prices)
	p := NewPoller(s, time.Minute, slog.Default())

	done := make(chan struct{})
	go func() {
		p.sweep()
		close(done)
	}()

	// Wait for the first sweep to enter the fetch.
	deadline := time.After(2 * time.Second)
	for prices.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("first sweep never reached the price fetch")
		case <-time.After(time.Millisecond):
		}
	}

	// A second sweep while the first is in flight must be skipped entirely.
	p.sweep()
	if got := prices.count(); got != 1 {
		t.Errorf("fetch entered %d times, want the overlapping sweep skipped", got)
	}

	close(prices.release)
	<-done
}

func TestStartRunsImmediateSweep(t *testing.T) {
	prices := &blockingPrices{release: make(chan struct{})}
	close(prices.release) // never block
	s := newPollerStore(t, prices)
	p := NewPoller(s, time.Minute, slog.Default())

	p.Start(time.Hour)
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for prices.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("Start never ran the immediate sweep")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestStartStopLifecycle(t *testing.T) {
	prices := &blockingPrices{release: make(chan struct{})}
	close(prices.release)
	s := newPollerStore(t, prices)
	p := NewPoller(s, time.Minute, slog.Default())

	if p.Running() {
		t.Error("new poller should not be running")
	}

	p.Start(time.Hour)
	if !p.Running() {
		t.Error("poller should be running after Start")
	}

	// Restart replaces the previous timer without error.
	p.Start(time.Hour)
	if !p.Running() {
		t.Error("poller should still be running after restart")
	}

	p.Stop()
	if p.Running() {
		t.Error("poller should not be running after Stop")
	}

	// Stopping again is a no-op.
	p.Stop()
}

func TestSweepTimeoutAbandonsHungFetch(t *testing.T) {
	// The fetch never releases; the sweep's deadline must end it.
	prices := &blockingPrices{release: make(chan struct{})}
	s := newPollerStore(t, prices)
	p := NewPoller(s, 10*time.Millisecond, slog.Default())

	done := make(chan struct{})
	go func() {
		p.sweep()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not return after its deadline")
	}
}
