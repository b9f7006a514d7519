package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketdesk/internal/alert"
	"marketdesk/internal/domain"
	"marketdesk/internal/news"
	"marketdesk/internal/watchlist"
)

// newsLookback bounds the news feed window.
const newsLookback = 24 * time.Hour

// Server serves the marketdesk HTTP API.
type Server struct {
	watchlists *watchlist.Store
	alerts     *alert.Store
	archive    *alert.Archive
	news       *news.Fetcher
	hub        *Hub
	log        *slog.Logger
}

// NewServer creates a Server. news may be nil when no news sources are
// configured; archive may be nil when the fired archive is disabled.
func NewServer(
	watchlists *watchlist.Store,
	alerts *alert.Store,
	archive *alert.Archive,
	newsFetcher *news.Fetcher,
	hub *Hub,
	log *slog.Logger,
) *Server {
	return &Server{
		watchlists: watchlists,
		alerts:     alerts,
		archive:    archive,
		news:       newsFetcher,
		hub:        hub,
		log:        log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/watchlists", s.handleListWatchlists)
	mux.HandleFunc("POST /api/watchlists", s.handleCreateWatchlist)
	mux.HandleFunc("DELETE /api/watchlists/{name}", s.handleDeleteWatchlist)
	mux.HandleFunc("PUT /api/watchlists/{name}/name", s.handleRenameWatchlist)
	mux.HandleFunc("PUT /api/watchlists/active", s.handleSetActive)

	mux.HandleFunc("GET /api/watchlist", s.handleGetWatchlist)
	mux.HandleFunc("PUT /api/watchlist/{symbol}", s.handleAddSymbol)
	mux.HandleFunc("DELETE /api/watchlist/{symbol}", s.handleRemoveSymbol)

	mux.HandleFunc("GET /api/compare", s.handleCompare)
	mux.HandleFunc("GET /api/portfolio", s.handlePortfolio)

	mux.HandleFunc("GET /api/alerts", s.handleListAlerts)
	mux.HandleFunc("POST /api/alerts", s.handleCreateAlert)
	mux.HandleFunc("DELETE /api/alerts/{id}", s.handleDeleteAlert)
	mux.HandleFunc("GET /api/alerts/fired", s.handleFiredAlerts)
	mux.HandleFunc("DELETE /api/alerts/fired", s.handleClearFired)
	mux.HandleFunc("POST /api/alerts/check", s.handleCheckAlerts)

	mux.HandleFunc("GET /api/news/{symbol}", s.handleNews)

	if s.hub != nil {
		mux.HandleFunc("GET /api/events", s.hub.ServeWS)
	}
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// --- Watchlist collection ---

func (s *Server) handleListWatchlists(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, WatchlistsResponse{
		Names:  s.watchlists.Names(),
		Active: s.watchlists.Active(),
	})
}

func (s *Server) handleCreateWatchlist(w http.ResponseWriter, r *http.Request) {
	var req CreateListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.watchlists.CreateList(req.Name) {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("cannot create list %q", req.Name))
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteWatchlist(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.watchlists.DeleteList(name) {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("cannot delete list %q", name))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenameWatchlist(w http.ResponseWriter, r *http.Request) {
	var req RenameListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := r.PathValue("name")
	if !s.watchlists.RenameList(name, req.Name) {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("cannot rename list %q to %q", name, req.Name))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.watchlists.SetActive(req.Name) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no list named %q", req.Name))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Active watchlist ---

func (s *Server) handleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	active := s.watchlists.Active()
	if active == domain.PortfolioList {
		symbols, err := s.watchlists.PortfolioSymbols(r.Context())
		if err != nil {
			s.log.Warn("resolving portfolio", "error", err)
			symbols = []string{}
		}
		writeJSON(w, WatchlistResponse{Name: active, Symbols: symbols})
		return
	}
	writeJSON(w, WatchlistResponse{Name: active, Symbols: s.watchlists.Symbols()})
}

func (s *Server) handleAddSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if !s.watchlists.AddSymbol(symbol) {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("cannot add %q to %q", symbol, s.watchlists.Active()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if !s.watchlists.RemoveSymbol(symbol) {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("cannot remove %q from %q", symbol, s.watchlists.Active()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Market data ---

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	var symbols []string
	for _, sym := range strings.Split(raw, ",") {
		if sym = domain.NormalizeSymbol(sym); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols required")
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = "6mo"
	}
	quotes := s.watchlists.FetchPrices(r.Context(), symbols, period)
	writeJSON(w, CompareResponse{Period: period, Quotes: quotes})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	holdings, err := s.watchlists.Holdings(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch holdings")
		return
	}
	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		symbols = append(symbols, h.Symbol)
	}
	writeJSON(w, PortfolioResponse{Symbols: symbols, Holdings: holdings})
}

// --- Alerts ---

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, AlertsResponse{Alerts: s.alerts.Active()})
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	price, err := decimal.NewFromString(req.TargetPrice.String())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid target_price")
		return
	}

	a, err := s.alerts.Add(req.Symbol, domain.AlertKind(req.Kind), price, req.Note)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, a)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.alerts.Remove(id) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no alert %q", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFiredAlerts returns the live fired set, or the Parquet archive for a
// given day when ?date=YYYY-MM-DD is present.
func (s *Server) handleFiredAlerts(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeJSON(w, AlertsResponse{Alerts: s.alerts.Fired()})
		return
	}

	if s.archive == nil {
		writeError(w, http.StatusNotFound, "fired archive not configured")
		return
	}
	records, err := s.archive.Read(date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read fired archive")
		return
	}
	writeJSON(w, FiredArchiveResponse{Date: date, Records: records})
}

func (s *Server) handleClearFired(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ClearFiredResponse{Cleared: s.alerts.ClearFired()})
}

// handleCheckAlerts runs one evaluation sweep immediately.
func (s *Server) handleCheckAlerts(w http.ResponseWriter, r *http.Request) {
	s.alerts.Evaluate(r.Context())
	writeJSON(w, AlertsResponse{Alerts: s.alerts.Active()})
}

// --- News ---

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	symbol := domain.NormalizeSymbol(r.PathValue("symbol"))
	if s.news == nil {
		writeJSON(w, NewsResponse{Symbol: symbol, Articles: []news.Article{}})
		return
	}
	articles := s.news.Fetch(r.Context(), symbol, newsLookback)
	writeJSON(w, NewsResponse{Symbol: symbol, Articles: articles})
}
