// Package watchlist implements the named symbol-list store: CRUD over
// watchlists, active-list selection, and resolution of the virtual
// portfolio pseudo-list from the holdings source.
package watchlist

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"marketdesk/internal/domain"
	"marketdesk/internal/localstore"
	"marketdesk/internal/marketdata"
	"marketdesk/internal/notify"
)

// Store owns the watchlist collection. Exactly one list is active at any
// time; the active pointer and the full collection are persisted on every
// mutation and a change event is broadcast.
type Store struct {
	mu     sync.RWMutex
	lists  map[string][]string // name -> ordered symbols
	active string

	kv       localstore.KV
	notifier *notify.Notifier
	prices   marketdata.PriceFetcher
	holdings marketdata.HoldingsSource
	log      *slog.Logger
}

// NewStore loads the persisted collection (migrating the legacy single-list
// format if found), guarantees the default list exists, and restores the
// active pointer.
func NewStore(
	kv localstore.KV,
	notifier *notify.Notifier,
	prices marketdata.PriceFetcher,
	holdings marketdata.HoldingsSource,
	log *slog.Logger,
) *Store {
	s := &Store{
		lists:    make(map[string][]string),
		active:   domain.DefaultList,
		kv:       kv,
		notifier: notifier,
		prices:   prices,
		holdings: holdings,
		log:      log,
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := s.kv.Get(localstore.KeyWatchlists)
	if err != nil {
		s.log.Warn("loading watchlists", "error", err)
	}
	if len(data) > 0 {
		lists, migrated, err := decodeCollection(data)
		if err != nil {
			s.log.Warn("decoding watchlists, starting empty", "error", err)
		} else {
			s.lists = lists
			if migrated {
				s.log.Info("migrated legacy watchlist format", "lists", len(lists))
				s.persistLocked()
			}
		}
	}

	// The default list always exists.
	if _, ok := s.lists[domain.DefaultList]; !ok {
		s.lists[domain.DefaultList] = []string{}
	}

	if data, err := s.kv.Get(localstore.KeyActiveList); err != nil {
		s.log.Warn("loading active watchlist", "error", err)
	} else if name := string(data); name != "" {
		if _, ok := s.lists[name]; ok || name == domain.PortfolioList {
			s.active = name
		}
	}
}

// CreateList creates an empty list. It fails when the name is empty after
// trimming, reserved, or already taken.
func (s *Store) CreateList(name string) bool {
	name = trimName(name)
	if name == "" || name == domain.PortfolioList {
		return false
	}

	s.mu.Lock()
	if _, exists := s.lists[name]; exists {
		s.mu.Unlock()
		return false
	}
	s.lists[name] = []string{}
	s.persistLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.publish(state)
	return true
}

// DeleteList removes a list. The default and portfolio lists can never be
// deleted; deleting the active list activates default.
func (s *Store) DeleteList(name string) bool {
	name = trimName(name)
	if name == domain.DefaultList || name == domain.PortfolioList {
		return false
	}

	s.mu.Lock()
	if _, exists := s.lists[name]; !exists {
		s.mu.Unlock()
		return false
	}
	delete(s.lists, name)
	if s.active == name {
		s.active = domain.DefaultList
		s.persistActiveLocked()
	}
	s.persistLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.publish(state)
	return true
}

// RenameList renames a list, preserving its contents and the active pointer
// if the renamed list was active. Reserved names cannot be renamed or taken.
func (s *Store) RenameList(oldName, newName string) bool {
	oldName = trimName(oldName)
	newName = trimName(newName)
	if oldName == domain.DefaultList || oldName == domain.PortfolioList {
		return false
	}
	if newName == "" || newName == oldName || newName == domain.PortfolioList {
		return false
	}

	s.mu.Lock()
	symbols, exists := s.lists[oldName]
	if !exists {
		s.mu.Unlock()
		return false
	}
	if _, taken := s.lists[newName]; taken {
		s.mu.Unlock()
		return false
	}
	delete(s.lists, oldName)
	s.lists[newName] = symbols
	if s.active == oldName {
		s.active = newName
		s.persistActiveLocked()
	}
	s.persistLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.publish(state)
	return true
}

// SetActive switches the active list. The name must be an existing list or
// the portfolio pseudo-list.
func (s *Store) SetActive(name string) bool {
	name = trimName(name)

	s.mu.Lock()
	if _, exists := s.lists[name]; !exists && name != domain.PortfolioList {
		s.mu.Unlock()
		return false
	}
	s.active = name
	s.persistActiveLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.publish(state)
	return true
}

// AddSymbol appends a symbol to the active list. Adding is idempotent; a
// symbol already present leaves the list unchanged. Returns false when the
// active list is the portfolio or the symbol is empty.
func (s *Store) AddSymbol(symbol string) bool {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return false
	}

	s.mu.Lock()
	if s.active == domain.PortfolioList {
		s.mu.Unlock()
		return false
	}
	for _, existing := range s.lists[s.active] {
		if existing == symbol {
			s.mu.Unlock()
			return true
		}
	}
	s.lists[s.active] = append(s.lists[s.active], symbol)
	s.persistLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.publish(state)
	return true
}

// RemoveSymbol removes a symbol from the active list. Returns false when
// the active list is the portfolio or the symbol is absent.
func (s *Store) RemoveSymbol(symbol string) bool {
	symbol = domain.NormalizeSymbol(symbol)

	s.mu.Lock()
	if s.active == domain.PortfolioList {
		s.mu.Unlock()
		return false
	}
	symbols := s.lists[s.active]
	idx := -1
	for i, existing := range symbols {
		if existing == symbol {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.lists[s.active] = append(symbols[:idx], symbols[idx+1:]...)
	s.persistLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.publish(state)
	return true
}

// Active returns the active list name.
func (s *Store) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Symbols returns the active list's contents in order. The portfolio
// pseudo-list has no local contents; resolve it with PortfolioSymbols.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == domain.PortfolioList {
		return []string{}
	}
	out := make([]string, len(s.lists[s.active]))
	copy(out, s.lists[s.active])
	return out
}

// Names returns all list names sorted, excluding the portfolio pseudo-list.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namesLocked()
}

// Holdings returns the broker positions backing the portfolio pseudo-list.
func (s *Store) Holdings(ctx context.Context) ([]domain.Holding, error) {
	return s.holdings.Holdings(ctx)
}

// PortfolioSymbols resolves the portfolio pseudo-list's membership from the
// holdings source, sorted.
func (s *Store) PortfolioSymbols(ctx context.Context) ([]string, error) {
	holdings, err := s.holdings.Holdings(ctx)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		symbols = append(symbols, h.Symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// FetchPrices returns quotes for the given symbols via the price
// collaborator. Transport failures degrade to an empty map so callers can
// render a partial view instead of failing.
func (s *Store) FetchPrices(ctx context.Context, symbols []string, period string) map[string]domain.Quote {
	quotes, err := s.prices.ComparePrices(ctx, symbols, period)
	if err != nil {
		s.log.Warn("fetching prices", "symbols", len(symbols), "error", err)
		return map[string]domain.Quote{}
	}
	return quotes
}

// --- persistence and events ---

func (s *Store) persistLocked() {
	data, err := json.Marshal(collectionEnvelope{Version: collectionVersion, Lists: s.lists})
	if err != nil {
		s.log.Error("marshalling watchlists", "error", err)
		return
	}
	if err := s.kv.Put(localstore.KeyWatchlists, data); err != nil {
		s.log.Error("persisting watchlists", "error", err)
	}
}

func (s *Store) persistActiveLocked() {
	if err := s.kv.Put(localstore.KeyActiveList, []byte(s.active)); err != nil {
		s.log.Error("persisting active watchlist", "error", err)
	}
}

func (s *Store) namesLocked() []string {
	names := make([]string, 0, len(s.lists))
	for name := range s.lists {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) stateLocked() *notify.WatchlistState {
	symbols := []string{}
	if s.active != domain.PortfolioList {
		symbols = make([]string, len(s.lists[s.active]))
		copy(symbols, s.lists[s.active])
	}
	return &notify.WatchlistState{
		Active:  s.active,
		Symbols: symbols,
		Names:   s.namesLocked(),
	}
}

func (s *Store) publish(state *notify.WatchlistState) {
	s.notifier.Publish(notify.Event{Type: notify.EventWatchlist, Watchlist: state})
}
