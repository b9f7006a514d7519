// Package marketdesk provides a Go SDK for the marketdesk-server API.
package marketdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketdesk/internal/domain"
	"marketdesk/internal/news"
)

// Client talks to a marketdesk-server instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL, e.g.
// "http://127.0.0.1:8087".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Watchlists is the collection state: all list names and the active one.
type Watchlists struct {
	Names  []string `json:"names"`
	Active string   `json:"active"`
}

// Watchlist is one list's contents.
type Watchlist struct {
	Name    string   `json:"name"`
	Symbols []string `json:"symbols"`
}

// Comparison holds per-symbol quote stats for a period.
type Comparison struct {
	Period string                  `json:"period"`
	Quotes map[string]domain.Quote `json:"quotes"`
}

// Portfolio is the broker holdings view.
type Portfolio struct {
	Symbols  []string         `json:"symbols"`
	Holdings []domain.Holding `json:"holdings"`
}

type alertsPayload struct {
	Alerts []domain.Alert `json:"alerts"`
}

type clearedPayload struct {
	Cleared int `json:"cleared"`
}

type newsPayload struct {
	Symbol   string         `json:"symbol"`
	Articles []news.Article `json:"articles"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// --- Watchlists ---

// Watchlists returns all list names and the active list.
func (c *Client) Watchlists(ctx context.Context) (*Watchlists, error) {
	var out Watchlists
	if err := c.call(ctx, http.MethodGet, "/api/watchlists", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateWatchlist creates a new empty list.
func (c *Client) CreateWatchlist(ctx context.Context, name string) error {
	return c.call(ctx, http.MethodPost, "/api/watchlists", map[string]string{"name": name}, nil)
}

// DeleteWatchlist removes a list. The default list cannot be deleted.
func (c *Client) DeleteWatchlist(ctx context.Context, name string) error {
	return c.call(ctx, http.MethodDelete, "/api/watchlists/"+url.PathEscape(name), nil, nil)
}

// RenameWatchlist renames a list.
func (c *Client) RenameWatchlist(ctx context.Context, oldName, newName string) error {
	path := "/api/watchlists/" + url.PathEscape(oldName) + "/name"
	return c.call(ctx, http.MethodPut, path, map[string]string{"name": newName}, nil)
}

// SetActiveWatchlist switches the active list.
func (c *Client) SetActiveWatchlist(ctx context.Context, name string) error {
	return c.call(ctx, http.MethodPut, "/api/watchlists/active", map[string]string{"name": name}, nil)
}

// ActiveWatchlist returns the active list's contents.
func (c *Client) ActiveWatchlist(ctx context.Context) (*Watchlist, error) {
	var out Watchlist
	if err := c.call(ctx, http.MethodGet, "/api/watchlist", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddSymbol adds a symbol to the active list.
func (c *Client) AddSymbol(ctx context.Context, symbol string) error {
	return c.call(ctx, http.MethodPut, "/api/watchlist/"+url.PathEscape(symbol), nil, nil)
}

// RemoveSymbol removes a symbol from the active list.
func (c *Client) RemoveSymbol(ctx context.Context, symbol string) error {
	return c.call(ctx, http.MethodDelete, "/api/watchlist/"+url.PathEscape(symbol), nil, nil)
}

// --- Market data ---

// Compare fetches quote stats for symbols over a period ("1d" through "2y",
// empty for the server default).
func (c *Client) Compare(ctx context.Context, symbols []string, period string) (*Comparison, error) {
	q := url.Values{"symbols": {strings.Join(symbols, ",")}}
	if period != "" {
		q.Set("period", period)
	}
	var out Comparison
	if err := c.call(ctx, http.MethodGet, "/api/compare?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Portfolio returns broker holdings.
func (c *Client) Portfolio(ctx context.Context) (*Portfolio, error) {
	var out Portfolio
	if err := c.call(ctx, http.MethodGet, "/api/portfolio", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Alerts ---

// Alerts returns the active (unfired) alerts.
func (c *Client) Alerts(ctx context.Context) ([]domain.Alert, error) {
	var out alertsPayload
	if err := c.call(ctx, http.MethodGet, "/api/alerts", nil, &out); err != nil {
		return nil, err
	}
	return out.Alerts, nil
}

// CreateAlert registers a price threshold alert and returns it.
func (c *Client) CreateAlert(ctx context.Context, symbol, kind string, target decimal.Decimal, note string) (*domain.Alert, error) {
	body := map[string]any{
		"symbol":       symbol,
		"kind":         kind,
		"target_price": target.String(),
	}
	if note != "" {
		body["note"] = note
	}
	var out domain.Alert
	if err := c.call(ctx, http.MethodPost, "/api/alerts", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAlert removes an alert by id.
func (c *Client) DeleteAlert(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/alerts/"+url.PathEscape(id), nil, nil)
}

// FiredAlerts returns alerts that have crossed their threshold.
func (c *Client) FiredAlerts(ctx context.Context) ([]domain.Alert, error) {
	var out alertsPayload
	if err := c.call(ctx, http.MethodGet, "/api/alerts/fired", nil, &out); err != nil {
		return nil, err
	}
	return out.Alerts, nil
}

// ClearFiredAlerts removes all fired alerts and reports how many.
func (c *Client) ClearFiredAlerts(ctx context.Context) (int, error) {
	var out clearedPayload
	if err := c.call(ctx, http.MethodDelete, "/api/alerts/fired", nil, &out); err != nil {
		return 0, err
	}
	return out.Cleared, nil
}

// CheckAlerts runs an evaluation sweep immediately and returns the active
// alerts afterwards.
func (c *Client) CheckAlerts(ctx context.Context) ([]domain.Alert, error) {
	var out alertsPayload
	if err := c.call(ctx, http.MethodPost, "/api/alerts/check", nil, &out); err != nil {
		return nil, err
	}
	return out.Alerts, nil
}

// --- News ---

// News returns the merged headline feed for a symbol.
func (c *Client) News(ctx context.Context, symbol string) ([]news.Article, error) {
	var out newsPayload
	if err := c.call(ctx, http.MethodGet, "/api/news/"+url.PathEscape(symbol), nil, &out); err != nil {
		return nil, err
	}
	return out.Articles, nil
}

// call performs one request. body is JSON-encoded when non-nil; out is
// JSON-decoded from 2xx responses when non-nil.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr errorPayload
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
