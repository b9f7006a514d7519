// Package alert implements the price-threshold alert engine: the alert
// store, the polling evaluator, and the fired-alert archive.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"marketdesk/internal/domain"
	"marketdesk/internal/localstore"
	"marketdesk/internal/marketdata"
	"marketdesk/internal/notify"
)

// Validation failures for Add.
var (
	ErrEmptySymbol  = errors.New("alert symbol is empty")
	ErrInvalidKind  = errors.New("alert kind must be above or below")
	ErrInvalidPrice = errors.New("alert target price must be positive")
)

// evaluationPeriod is the lookback window used for the batched price fetch
// during a sweep. Only the latest close matters for threshold checks, so
// the shortest window keeps the fetch cheap.
const evaluationPeriod = "5d"

// Store owns the alert set. Alerts fire at most once: the fired flag is
// monotonic and only ClearFired removes fired alerts.
type Store struct {
	mu     sync.RWMutex
	alerts []domain.Alert

	kv       localstore.KV
	notifier *notify.Notifier
	prices   marketdata.PriceFetcher
	sound    *notify.Sound
	archive  *Archive
	log      *slog.Logger
}

// NewStore loads persisted alerts from the substrate. sound and archive
// may be nil to disable those channels.
func NewStore(
	kv localstore.KV,
	notifier *notify.Notifier,
	prices marketdata.PriceFetcher,
	sound *notify.Sound,
	archive *Archive,
	log *slog.Logger,
) *Store {
	s := &Store{
		kv:       kv,
		notifier: notifier,
		prices:   prices,
		sound:    sound,
		archive:  archive,
		log:      log,
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := s.kv.Get(localstore.KeyAlerts)
	if err != nil {
		s.log.Warn("loading alerts", "error", err)
		return
	}
	if len(data) == 0 {
		return
	}
	var alerts []domain.Alert
	if err := json.Unmarshal(data, &alerts); err != nil {
		s.log.Warn("decoding alerts, starting empty", "error", err)
		return
	}
	s.alerts = alerts
	s.log.Info("loaded alerts", "count", len(alerts))
}

// Add validates and appends a new unfired alert, persists, and broadcasts.
func (s *Store) Add(symbol string, kind domain.AlertKind, price decimal.Decimal, note string) (*domain.Alert, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrEmptySymbol
	}
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	if !price.IsPositive() {
		return nil, ErrInvalidPrice
	}

	a := domain.Alert{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Kind:        kind,
		TargetPrice: price,
		Note:        note,
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.persistLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notifier.Publish(notify.Event{Type: notify.EventAlerts, Alerts: snapshot})
	return &a, nil
}

// Remove deletes an alert by id, from either state. Returns whether a
// removal occurred.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	idx := -1
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.alerts = append(s.alerts[:idx], s.alerts[idx+1:]...)
	s.persistLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notifier.Publish(notify.Event{Type: notify.EventAlerts, Alerts: snapshot})
	return true
}

// Active returns all unfired alerts.
func (s *Store) Active() []domain.Alert {
	return s.filtered(false)
}

// Fired returns all fired alerts.
func (s *Store) Fired() []domain.Alert {
	return s.filtered(true)
}

func (s *Store) filtered(fired bool) []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if a.Fired == fired {
			out = append(out, a)
		}
	}
	return out
}

// ClearFired removes all fired alerts, leaving unfired alerts untouched.
// Returns the number removed.
func (s *Store) ClearFired() int {
	s.mu.Lock()
	kept := s.alerts[:0]
	removed := 0
	for _, a := range s.alerts {
		if a.Fired {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.alerts = kept
	if removed > 0 {
		s.persistLocked()
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if removed > 0 {
		s.notifier.Publish(notify.Event{Type: notify.EventAlerts, Alerts: snapshot})
	}
	return removed
}

// Evaluate sweeps all unfired alerts against current prices fetched in one
// batched call. Thresholds are boundary-inclusive in both directions:
// "above" fires at current >= target and "below" fires at current <= target.
// Symbols missing from the fetched mapping are skipped this cycle; a failed
// fetch logs and leaves every alert untouched. State is persisted once after
// the sweep when anything fired.
func (s *Store) Evaluate(ctx context.Context) {
	symbols := s.unfiredSymbols()
	if len(symbols) == 0 {
		return
	}

	quotes, err := s.prices.ComparePrices(ctx, symbols, evaluationPeriod)
	if err != nil {
		// Transient data unavailability; the next cycle retries.
		s.log.Warn("price fetch failed, skipping sweep", "symbols", len(symbols), "error", err)
		return
	}

	now := time.Now().UTC()
	var fired []domain.Alert

	s.mu.Lock()
	for i := range s.alerts {
		a := &s.alerts[i]
		if a.Fired {
			continue
		}
		quote, ok := quotes[a.Symbol]
		if !ok {
			continue
		}
		current := decimal.NewFromFloat(quote.CurrentPrice)
		if !a.Satisfied(current) {
			continue
		}
		a.Fired = true
		firedAt := now
		a.FiredAt = &firedAt
		a.FiredPrice = &current
		fired = append(fired, *a)
	}
	if len(fired) > 0 {
		s.persistLocked()
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if len(fired) == 0 {
		return
	}

	for i := range fired {
		a := fired[i]
		s.log.Info("alert fired",
			"id", a.ID,
			"symbol", a.Symbol,
			"kind", a.Kind,
			"target", a.TargetPrice,
			"price", a.FiredPrice,
		)
		s.notifier.Publish(notify.Event{Type: notify.EventAlertFired, Fired: &a})
		if s.sound != nil {
			s.sound.AlertFired(a)
		}
	}
	s.notifier.Publish(notify.Event{Type: notify.EventAlerts, Alerts: snapshot})

	if s.archive != nil {
		if err := s.archive.Append(fired); err != nil {
			s.log.Warn("archiving fired alerts", "count", len(fired), "error", err)
		}
	}
}

// unfiredSymbols returns the distinct symbols carrying at least one unfired
// alert.
func (s *Store) unfiredSymbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var symbols []string
	for _, a := range s.alerts {
		if a.Fired {
			continue
		}
		if _, dup := seen[a.Symbol]; dup {
			continue
		}
		seen[a.Symbol] = struct{}{}
		symbols = append(symbols, a.Symbol)
	}
	return symbols
}

func (s *Store) persistLocked() {
	data, err := json.Marshal(s.alerts)
	if err != nil {
		s.log.Error("marshalling alerts", "error", err)
		return
	}
	if err := s.kv.Put(localstore.KeyAlerts, data); err != nil {
		s.log.Error("persisting alerts", "error", err)
	}
}

func (s *Store) snapshotLocked() []domain.Alert {
	out := make([]domain.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}
