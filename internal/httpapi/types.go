// Package httpapi provides the HTTP REST API and WebSocket event push for
// the marketdesk state engine.
package httpapi

import (
	"encoding/json"

	"marketdesk/internal/alert"
	"marketdesk/internal/domain"
	"marketdesk/internal/news"
)

// WatchlistsResponse lists the collection names and the active list.
type WatchlistsResponse struct {
	Names  []string `json:"names"`
	Active string   `json:"active"`
}

// WatchlistResponse is the active list's contents.
type WatchlistResponse struct {
	Name    string   `json:"name"`
	Symbols []string `json:"symbols"`
}

// CreateListRequest is the body for POST /api/watchlists.
type CreateListRequest struct {
	Name string `json:"name"`
}

// RenameListRequest is the body for PUT /api/watchlists/{name}/name.
type RenameListRequest struct {
	Name string `json:"name"`
}

// SetActiveRequest is the body for PUT /api/watchlists/active.
type SetActiveRequest struct {
	Name string `json:"name"`
}

// CompareResponse maps symbol to quote stats.
type CompareResponse struct {
	Period string                  `json:"period"`
	Quotes map[string]domain.Quote `json:"quotes"`
}

// PortfolioResponse lists broker holdings.
type PortfolioResponse struct {
	Symbols  []string         `json:"symbols"`
	Holdings []domain.Holding `json:"holdings"`
}

// AlertsResponse lists alerts.
type AlertsResponse struct {
	Alerts []domain.Alert `json:"alerts"`
}

// CreateAlertRequest is the body for POST /api/alerts.
type CreateAlertRequest struct {
	Symbol      string      `json:"symbol"`
	Kind        string      `json:"kind"`
	TargetPrice json.Number `json:"target_price"`
	Note        string      `json:"note,omitempty"`
}

// ClearFiredResponse reports how many fired alerts were removed.
type ClearFiredResponse struct {
	Cleared int `json:"cleared"`
}

// FiredArchiveResponse is the archived fired alerts for one day.
type FiredArchiveResponse struct {
	Date    string              `json:"date"`
	Records []alert.FiredRecord `json:"records"`
}

// NewsResponse is the merged news feed for a symbol.
type NewsResponse struct {
	Symbol   string         `json:"symbol"`
	Articles []news.Article `json:"articles"`
}
