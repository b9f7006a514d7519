package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"marketdesk/internal/domain"
	"marketdesk/internal/util"
)

// HoldingsSource resolves the membership of the portfolio pseudo-list.
type HoldingsSource interface {
	Holdings(ctx context.Context) ([]domain.Holding, error)
}

// Compile-time interface check.
var _ HoldingsSource = (*AlpacaHoldings)(nil)

// AlpacaHoldings implements HoldingsSource via the Alpaca trading API's
// positions endpoint.
type AlpacaHoldings struct {
	client *alpaca.Client
	log    *slog.Logger
}

// NewAlpacaHoldings creates an AlpacaHoldings source with the given
// credentials.
func NewAlpacaHoldings(apiKey, apiSecret, baseURL string) *AlpacaHoldings {
	opts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if baseURL != "" {
		opts.BaseURL = baseURL
	}
	return &AlpacaHoldings{
		client: alpaca.NewClient(opts),
		log:    slog.Default().With("component", "holdings"),
	}
}

// Holdings returns the currently held symbols. Transient failures are
// retried with backoff before giving up.
func (h *AlpacaHoldings) Holdings(ctx context.Context) ([]domain.Holding, error) {
	var positions []alpaca.Position
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		var perr error
		positions, perr = h.client.GetPositions()
		return perr
	})
	if err != nil {
		return nil, fmt.Errorf("fetching positions: %w", err)
	}

	holdings := make([]domain.Holding, 0, len(positions))
	for _, p := range positions {
		holding := domain.Holding{
			Symbol: domain.NormalizeSymbol(p.Symbol),
			Qty:    p.Qty.InexactFloat64(),
		}
		if p.MarketValue != nil {
			holding.MarketValue = p.MarketValue.InexactFloat64()
		}
		holdings = append(holdings, holding)
	}
	return holdings, nil
}
