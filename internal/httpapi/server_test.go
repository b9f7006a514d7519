package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"marketdesk/internal/alert"
	"marketdesk/internal/domain"
	"marketdesk/internal/localstore"
	"marketdesk/internal/notify"
	"marketdesk/internal/watchlist"
)

type fakePrices struct {
	quotes map[string]domain.Quote
	err    error
}

func (f *fakePrices) ComparePrices(_ context.Context, symbols []string, _ string) (map[string]domain.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.Quote)
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

type fakeHoldings struct {
	holdings []domain.Holding
	err      error
}

func (f *fakeHoldings) Holdings(context.Context) ([]domain.Holding, error) {
	return f.holdings, f.err
}

type fixture struct {
	srv        *httptest.Server
	watchlists *watchlist.Store
	alerts     *alert.Store
	notifier   *notify.Notifier
}

func newFixture(t *testing.T, prices *fakePrices, holdings *fakeHoldings) *fixture {
	t.Helper()
	if prices == nil {
		prices = &fakePrices{}
	}
	if holdings == nil {
		holdings = &fakeHoldings{}
	}

	kv, err := localstore.NewFileKV(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileKV: %v", err)
	}
	notifier := notify.NewNotifier()
	log := slog.Default()

	wl := watchlist.NewStore(kv, notifier, prices, holdings, log)
	al := alert.NewStore(kv, notifier, prices, nil, nil, log)
	hub := NewHub(notifier, log)
	t.Cleanup(hub.Close)

	api := NewServer(wl, al, nil, nil, hub, log)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, watchlists: wl, alerts: al, notifier: notifier}
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestWatchlistCollectionEndpoints(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp := f.do(t, "POST", "/api/watchlists", `{"name":"tech"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create list status = %d", resp.StatusCode)
	}

	resp = f.do(t, "GET", "/api/watchlists", "")
	got := decode[WatchlistsResponse](t, resp)
	if got.Active != domain.DefaultList {
		t.Errorf("active = %q, want default", got.Active)
	}
	if len(got.Names) != 2 {
		t.Errorf("names = %v, want default and tech", got.Names)
	}

	resp = f.do(t, "PUT", "/api/watchlists/active", `{"name":"tech"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("set active status = %d", resp.StatusCode)
	}

	resp = f.do(t, "PUT", "/api/watchlists/tech/name", `{"name":"growth"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("rename status = %d", resp.StatusCode)
	}
	if f.watchlists.Active() != "growth" {
		t.Errorf("active after rename = %q", f.watchlists.Active())
	}

	resp = f.do(t, "DELETE", "/api/watchlists/growth", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if f.watchlists.Active() != domain.DefaultList {
		t.Errorf("deleting the active list must fall back to default")
	}

	// Reserved names are rejected.
	resp = f.do(t, "DELETE", "/api/watchlists/default", "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("deleting default status = %d, want 422", resp.StatusCode)
	}
}

func TestWatchlistSymbolEndpoints(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp := f.do(t, "PUT", "/api/watchlist/aapl", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("add symbol status = %d", resp.StatusCode)
	}

	resp = f.do(t, "GET", "/api/watchlist", "")
	got := decode[WatchlistResponse](t, resp)
	if len(got.Symbols) != 1 || got.Symbols[0] != "AAPL" {
		t.Errorf("symbols = %v, want [AAPL]", got.Symbols)
	}

	resp = f.do(t, "DELETE", "/api/watchlist/AAPL", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remove symbol status = %d", resp.StatusCode)
	}

	resp = f.do(t, "DELETE", "/api/watchlist/AAPL", "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("removing an absent symbol status = %d, want 422", resp.StatusCode)
	}
}

func TestCompareEndpoint(t *testing.T) {
	prices := &fakePrices{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", CurrentPrice: 150.25, ReturnPct: 3.5},
	}}
	f := newFixture(t, prices, nil)

	resp := f.do(t, "GET", "/api/compare?symbols=aapl,MISSING&period=1mo", "")
	got := decode[CompareResponse](t, resp)
	if got.Period != "1mo" {
		t.Errorf("period = %q", got.Period)
	}
	if len(got.Quotes) != 1 || got.Quotes["AAPL"].CurrentPrice != 150.25 {
		t.Errorf("quotes = %v", got.Quotes)
	}

	resp = f.do(t, "GET", "/api/compare", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("compare without symbols status = %d, want 400", resp.StatusCode)
	}
}

func TestPortfolioEndpoint(t *testing.T) {
	holdings := &fakeHoldings{holdings: []domain.Holding{
		{Symbol: "MSFT", Qty: 10, MarketValue: 4000},
	}}
	f := newFixture(t, nil, holdings)

	resp := f.do(t, "GET", "/api/portfolio", "")
	got := decode[PortfolioResponse](t, resp)
	if len(got.Symbols) != 1 || got.Symbols[0] != "MSFT" {
		t.Errorf("portfolio = %v", got)
	}
}

func TestAlertEndpoints(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp := f.do(t, "POST", "/api/alerts", `{"symbol":"aapl","kind":"above","target_price":150.5}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create alert status = %d", resp.StatusCode)
	}
	created := decode[domain.Alert](t, resp)
	if created.Symbol != "AAPL" || created.ID == "" {
		t.Errorf("created alert = %+v", created)
	}

	resp = f.do(t, "GET", "/api/alerts", "")
	got := decode[AlertsResponse](t, resp)
	if len(got.Alerts) != 1 {
		t.Fatalf("alerts = %v", got.Alerts)
	}

	resp = f.do(t, "POST", "/api/alerts", `{"symbol":"aapl","kind":"sideways","target_price":1}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("invalid kind status = %d, want 422", resp.StatusCode)
	}

	resp = f.do(t, "DELETE", "/api/alerts/"+created.ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete alert status = %d", resp.StatusCode)
	}
	resp = f.do(t, "DELETE", "/api/alerts/"+created.ID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleting a missing alert status = %d, want 404", resp.StatusCode)
	}
}

func TestAlertCheckAndFired(t *testing.T) {
	prices := &fakePrices{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", CurrentPrice: 151},
	}}
	f := newFixture(t, prices, nil)

	f.do(t, "POST", "/api/alerts", `{"symbol":"AAPL","kind":"above","target_price":150}`)

	resp := f.do(t, "POST", "/api/alerts/check", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check status = %d", resp.StatusCode)
	}

	resp = f.do(t, "GET", "/api/alerts/fired", "")
	fired := decode[AlertsResponse](t, resp)
	if len(fired.Alerts) != 1 || !fired.Alerts[0].Fired {
		t.Fatalf("fired = %v", fired.Alerts)
	}

	resp = f.do(t, "DELETE", "/api/alerts/fired", "")
	cleared := decode[ClearFiredResponse](t, resp)
	if cleared.Cleared != 1 {
		t.Errorf("cleared = %d, want 1", cleared.Cleared)
	}
}

func TestEventsWebSocket(t *testing.T) {
	f := newFixture(t, nil, nil)

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	// Mutating the watchlist must push an event to the socket.
	f.do(t, "PUT", "/api/watchlist/TSLA", "")

	var event notify.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if event.Type != notify.EventWatchlist {
		t.Errorf("event type = %q, want watchlist", event.Type)
	}
	if event.Watchlist == nil || len(event.Watchlist.Symbols) != 1 {
		t.Errorf("event payload = %+v", event.Watchlist)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, nil, nil)

	req, _ := http.NewRequest("OPTIONS", f.srv.URL+"/api/watchlists", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS header")
	}
}
