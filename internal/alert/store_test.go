package alert

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"marketdesk/internal/domain"
	"marketdesk/internal/localstore"
	"marketdesk/internal/notify"
)

// fakePrices returns canned quotes and records the symbols of each call.
type fakePrices struct {
	mu     sync.Mutex
	quotes map[string]float64
	err    error
	calls  [][]string
}

func (f *fakePrices) ComparePrices(_ context.Context, symbols []string, _ string) (map[string]domain.Quote, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), symbols...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.Quote)
	for _, sym := range symbols {
		if price, ok := f.quotes[sym]; ok {
			out[sym] = domain.Quote{Symbol: sym, CurrentPrice: price}
		}
	}
	return out, nil
}

func newTestStore(t *testing.T, prices *fakePrices) (*Store, *notify.Notifier) {
	t.Helper()
	kv, err := localstore.NewFileKV(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileKV: %v", err)
	}
	n := notify.NewNotifier()
	return NewStore(kv, n, prices, nil, nil, slog.Default()), n
}

func TestAddValidation(t *testing.T) {
	s, _ := newTestStore(t, &fakePrices{})

	if _, err := s.Add("", domain.AlertAbove, decimal.NewFromInt(10), ""); !errors.Is(err, ErrEmptySymbol) {
		t.Errorf("empty symbol: err = %v, want ErrEmptySymbol", err)
	}
	if _, err := s.Add("AAPL", domain.AlertKind("crosses"), decimal.NewFromInt(10), ""); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("bad kind: err = %v, want ErrInvalidKind", err)
	}
	if _, err := s.Add("AAPL", domain.AlertAbove, decimal.Zero, ""); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("zero price: err = %v, want ErrInvalidPrice", err)
	}
	if _, err := s.Add("AAPL", domain.AlertAbove, decimal.NewFromInt(-5), ""); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("negative price: err = %v, want ErrInvalidPrice", err)
	}
	if got := s.Active(); len(got) != 0 {
		t.Errorf("failed adds must not mutate: Active() = %v", got)
	}
}

func TestAddNormalizesAndDefaults(t *testing.T) {
	s, _ := newTestStore(t, &fakePrices{})

	a, err := s.Add(" aapl ", domain.AlertAbove, decimal.NewFromInt(150), "earnings play")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if a.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want normalized AAPL", a.Symbol)
	}
	if a.Fired {
		t.Error("new alert must start unfired")
	}
	if a.ID == "" {
		t.Error("new alert must get an id")
	}
	if a.FiredAt != nil || a.FiredPrice != nil {
		t.Error("fired fields must start nil")
	}

	active := s.Active()
	if len(active) != 1 {
		t.Fatalf("Active() has %d alerts, want 1", len(active))
	}
	got := active[0]
	if got.ID != a.ID || got.Kind != domain.AlertAbove || !got.TargetPrice.Equal(decimal.NewFromInt(150)) || got.Note != "earnings play" {
		t.Errorf("stored alert = %+v, want the created one", got)
	}
}

func TestUniqueIDsUnderRapidCreation(t *testing.T) {
	s, _ := newTestStore(t, &fakePrices{})
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		a, err := s.Add("AAPL", domain.AlertAbove, decimal.NewFromInt(1), "")
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		if _, dup := seen[a.ID]; dup {
			t.Fatalf("duplicate alert id %q", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
}

func TestEvaluateBoundaryAbove(t *testing.T) {
	prices := &fakePrices{quotes: map[string]float64{"AAPL": 99.99}}
	s, _ := newTestStore(t, prices)
	s.Add("AAPL", domain.AlertAbove, decimal.NewFromInt(100), "")

	s.Evaluate(context.Background())
	if fired := s.Fired(); len(fired) != 0 {
		t.Fatalf("99.99 must not fire an above-100 alert, fired = %v", fired)
	}

	prices.quotes["AAPL"] = 100.00
	s.Evaluate(context.Background())
	fired := s.Fired()
	if len(fired) != 1 {
		t.Fatalf("100.00 must fire an above-100 alert (boundary-inclusive)")
	}
	if fired[0].FiredAt == nil || fired[0].FiredPrice == nil {
		t.Fatal("fired alert must carry fire time and price")
	}
	if !fired[0].FiredPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("FiredPrice = %v, want 100", fired[0].FiredPrice)
	}
}

func TestEvaluateBoundaryBelow(t *testing.T) {
	prices := &fakePrices{quotes: map[string]float64{"TSLA": 50.01}}
	s, _ := newTestStore(t, prices)
	s.Add("TSLA", domain.AlertBelow, decimal.NewFromInt(50), "")

	s.Evaluate(context.Background())
	if fired := s.Fired(); len(fired) != 0 {
		t.Fatalf("50.01 must not fire a below-50 alert, fired = %v", fired)
	}

	prices.quotes["TSLA"] = 50.00
	s.Evaluate(context.Background())
	if fired := s.Fired(); len(fired) != 1 {
		t.Fatal("50.00 must fire a below-50 alert (boundary-inclusive)")
	}
}

func TestEvaluateBatchesUniqueSymbols(t *testing.T) {
	prices := &fakePrices{quotes: map[string]float64{}}
	s, _ := newTestStore(t, prices)
	s.Add("AAPL", domain.AlertAbove, decimal.NewFromInt(1000), "")
	s.Add("AAPL", domain.AlertBelow, decimal.NewFromInt(1), "")
	s.Add("MSFT", domain.AlertAbove, decimal.NewFromInt(1000), "")

	s.Evaluate(context.Background())

	if len(prices.calls) != 1 {
		t.Fatalf("Evaluate made %d fetches, want one batched call", len(prices.calls))
	}
	call := prices.calls[0]
	if len(call) != 2 {
		t.Errorf("batched call had symbols %v, want two unique symbols", call)
	}
}

func TestEvaluateSkipsMissingSymbols(t *testing.T) {
	prices := &fakePrices{quotes: map[string]float64{"AAPL": 200}}
	s, _ := newTestStore(t, prices)
	s.Add("AAPL", domain.AlertAbove, decimal.NewFromInt(100), "")
	s.Add("UNKNOWN", domain.AlertAbove, decimal.NewFromInt(1), "")

	s.Evaluate(context.Background())

	if fired := s.Fired(); len(fired) != 1 || fired[0].Symbol != "AAPL" {
		t.Errorf("fired = %v, want only AAPL; missing symbols skip the cycle", fired)
	}
	if active := s.Active(); len(active) != 1 || active[0].Symbol != "UNKNOWN" {
		t.Errorf("active = %v, want UNKNOWN still pending", active)
	}
}

func TestEvaluateFetchFailureLeavesStateUntouched(t *testing.T) {
	prices := &fakePrices{err: errors.New("network down")}
	s, _ := newTestStore(t, prices)
	s.Add("AAPL", domain.AlertAbove, decimal.NewFromInt(1), "")

	s.Evaluate(context.Background())

	if fired := s.Fired(); len(fired) != 0 {
		t.Errorf("fired = %v after failed fetch, want none", fired)
	}
	if active := s.Active(); len(active) != 1 {
		t.Errorf("active = %v after failed fetch, want the alert intact", active)
	}
}

func TestFiredIsMonotonic(t *testing.T) {
	prices := &fakePrices{quotes: map[string]float64{"AAPL": 150}}
	s, _ := newTestStore(t, prices)
	s.Add("AAPL", domain.AlertAbove, decimal.NewFromInt(100), "")

	s.Evaluate(context.Background())
	fired := s.Fired()
	if len(fired) != 1 {
		t.Fatal("alert should have fired")
	}
	originalPrice := *fired[0].FiredPrice

	// Price drops back under the threshold; the alert stays fired with its
	// original fire price.
	prices.quotes["AAPL"] = 90
	s.Evaluate(context.Background())

	fired = s.Fired()
	if len(fired) != 1 {
		t.Fatal("fired alert must stay fired")
	}
	if !fired[0].FiredPrice.Equal(originalPrice) {
		t.Errorf("FiredPrice changed from %v to %v", originalPrice, fired[0].FiredPrice)
	}
	if len(prices.calls) != 1 {
		t.Errorf("second Evaluate fetched prices for %d calls, want no fetch with nothing unfired", len(prices.calls)-1)
	}
}

func TestRemove(t *testing.T) {
	s, _ := newTestStore(t, &fakePrices{})
	a, _ := s.Add("AAPL", domain.AlertAbove, decimal.NewFromInt(100), "")

	if s.Remove("no-such-id") {
		t.Error("removing an unknown id should fail")
	}
	if !s.Remove(a.ID) {
		t.Error("removing an existing alert should succeed")
	}
	if got := s.Active(); len(got) != 0 {
		t.Errorf("Active() = %v after remove, want empty", got)
	}
}

func TestClearFiredRemovesOnlyFired(t *testing.T) {
	prices := &fakePrices{quotes: map[string]float64{"AAPL": 200, "MSFT": 10}}
	s, _ := newTestStore(t, prices)
	s.Add("AAPL", domain.AlertAbove, decimal.NewFromInt(100), "") // will fire
	s.Add("MSFT", domain.AlertAbove, decimal.NewFromInt(500), "") // stays active
	s.Add("MSFT", domain.AlertBelow, decimal.NewFromInt(50), "")  // will fire

	s.Evaluate(context.Background())
	if got := len(s.Fired()); got != 2 {
		t.Fatalf("fired = %d, want 2", got)
	}

	if removed := s.ClearFired(); removed != 2 {
		t.Errorf("ClearFired removed %d, want 2", removed)
	}
	if got := len(s.Fired()); got != 0 {
		t.Errorf("fired = %d after clear, want 0", got)
	}
	active := s.Active()
	if len(active) != 1 || active[0].Symbol != "MSFT" {
		t.Errorf("active = %v after clear, want the one pending MSFT alert", active)
	}

	if removed := s.ClearFired(); removed != 0 {
		t.Errorf("second ClearFired removed %d, want 0", removed)
	}
}

func TestPersistsAcrossRestart(t *testing.T) {
	kv, err := localstore.NewFileKV(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileKV: %v", err)
	}
	prices := &fakePrices{quotes: map[string]float64{"AAPL": 200}}

	s := NewStore(kv, notify.NewNotifier(), prices, nil, nil, slog.Default())
	s.Add("AAPL", domain.AlertAbove, decimal.NewFromInt(100), "note")
	s.Add("MSFT", domain.AlertBelow, decimal.NewFromInt(50), "")
	s.Evaluate(context.Background())

	s2 := NewStore(kv, notify.NewNotifier(), prices, nil, nil, slog.Default())
	if got := len(s2.Fired()); got != 1 {
		t.Errorf("fired = %d after reload, want 1", got)
	}
	if got := len(s2.Active()); got != 1 {
		t.Errorf("active = %d after reload, want 1", got)
	}
	fired := s2.Fired()[0]
	if fired.Symbol != "AAPL" || fired.FiredPrice == nil || !fired.FiredPrice.Equal(decimal.NewFromInt(200)) {
		t.Errorf("reloaded fired alert = %+v", fired)
	}
}

func TestFireBroadcastsEvents(t *testing.T) {
	prices := &fakePrices{quotes: map[string]float64{"AAPL": 200}}
	s, n := newTestStore(t, prices)
	id, ch := n.Subscribe(16)
	defer n.Unsubscribe(id)

	s.Add("AAPL", domain.AlertAbove, decimal.NewFromInt(100), "")
	<-ch // alerts snapshot from Add

	s.Evaluate(context.Background())

	firedEvt := <-ch
	if firedEvt.Type != notify.EventAlertFired {
		t.Fatalf("first event after sweep = %q, want %q", firedEvt.Type, notify.EventAlertFired)
	}
	if firedEvt.Fired == nil || firedEvt.Fired.Symbol != "AAPL" {
		t.Errorf("fired event payload = %+v", firedEvt.Fired)
	}

	snapEvt := <-ch
	if snapEvt.Type != notify.EventAlerts {
		t.Fatalf("second event after sweep = %q, want %q", snapEvt.Type, notify.EventAlerts)
	}
	if len(snapEvt.Alerts) != 1 || !snapEvt.Alerts[0].Fired {
		t.Errorf("snapshot = %+v, want one fired alert", snapEvt.Alerts)
	}
}
