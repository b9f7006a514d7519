// Package notify is the observable-state bridge between the stores and
// their consumers. Stores publish a typed event after every mutation and
// any number of subscribers (WebSocket hub, CLI, tests) receive it without
// the stores knowing who is listening.
package notify

import (
	"sync"

	"marketdesk/internal/domain"
)

// EventType discriminates the event payload.
type EventType string

const (
	// EventWatchlist carries the watchlist collection state after a mutation.
	EventWatchlist EventType = "watchlist"

	// EventAlerts carries the full alert set after a mutation or sweep.
	EventAlerts EventType = "alerts"

	// EventAlertFired announces a single alert crossing its threshold.
	EventAlertFired EventType = "alert_fired"
)

// WatchlistState is the watchlist payload: the active list's contents, its
// name, and all list names (the portfolio pseudo-list is never included in
// Names).
type WatchlistState struct {
	Active  string   `json:"active"`
	Symbols []string `json:"symbols"`
	Names   []string `json:"names"`
}

// Event is the wire format broadcast to subscribers.
type Event struct {
	Type      EventType       `json:"type"`
	Watchlist *WatchlistState `json:"watchlist,omitempty"`
	Alerts    []domain.Alert  `json:"alerts,omitempty"`
	Fired     *domain.Alert   `json:"fired,omitempty"`
}

// DefaultBufSize is a reasonable subscriber buffer for interactive
// consumers.
const DefaultBufSize = 64

// Notifier fans events out to subscriber channels.
type Notifier struct {
	mu        sync.Mutex
	nextSubID int
	subs      map[int]chan Event
}

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel that receives events. bufSize controls the
// channel buffer; slow consumers will have events dropped.
func (n *Notifier) Subscribe(bufSize int) (int, <-chan Event) {
	ch := make(chan Event, bufSize)
	n.mu.Lock()
	id := n.nextSubID
	n.nextSubID++
	n.subs[id] = ch
	n.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (n *Notifier) Unsubscribe(id int) {
	n.mu.Lock()
	if ch, ok := n.subs[id]; ok {
		delete(n.subs, id)
		close(ch)
	}
	n.mu.Unlock()
}

// Publish sends an event to all subscribers non-blocking (drop on full).
func (n *Notifier) Publish(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- e:
		default:
			// Slow consumer — drop event.
		}
	}
}
