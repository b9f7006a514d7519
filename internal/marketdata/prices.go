// Package marketdata provides the external collaborators the stores depend
// on: batched price comparison and portfolio holdings, both backed by the
// Alpaca APIs.
package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"marketdesk/internal/domain"
	"marketdesk/internal/util"
)

// PriceFetcher returns per-symbol quotes over a lookback period. Unknown
// symbols are omitted from the result, never an error for the whole batch.
type PriceFetcher interface {
	ComparePrices(ctx context.Context, symbols []string, period string) (map[string]domain.Quote, error)
}

// Compile-time interface check.
var _ PriceFetcher = (*AlpacaQuotes)(nil)

// AlpacaQuotes implements PriceFetcher via the Alpaca market-data API using
// a single multi-symbol bar request per call.
type AlpacaQuotes struct {
	client  *marketdata.Client
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpacaQuotes creates an AlpacaQuotes fetcher with the given credentials
// and request rate limit.
func NewAlpacaQuotes(apiKey, apiSecret, dataURL string, ratePerMin int) *AlpacaQuotes {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaQuotes{
		client:  marketdata.NewClient(opts),
		limiter: util.NewRateLimiter(ratePerMin),
		log:     slog.Default().With("component", "quotes"),
	}
}

// NewsClient exposes the underlying market-data client for the news fetcher.
func (q *AlpacaQuotes) NewsClient() *marketdata.Client {
	return q.client
}

// ComparePrices fetches daily bars for all symbols in one batched call and
// reduces each symbol's bars to a Quote. Symbols with no bars in the window
// are absent from the result. The call is abandoned (not cancelled on the
// wire) when ctx expires, so a hung fetch cannot stall the caller.
func (q *AlpacaQuotes) ComparePrices(ctx context.Context, symbols []string, period string) (map[string]domain.Quote, error) {
	if len(symbols) == 0 {
		return map[string]domain.Quote{}, nil
	}

	lookback, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}

	if err := q.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	end := time.Now()
	start := end.Add(-lookback)

	type result struct {
		bars map[string][]marketdata.Bar
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		bars, err := q.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
			Feed:      "iex",
		})
		resCh <- result{bars: bars, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resCh:
		if res.err != nil {
			return nil, fmt.Errorf("GetMultiBars: %w", res.err)
		}
		quotes := make(map[string]domain.Quote, len(res.bars))
		for symbol, bars := range res.bars {
			sym := domain.NormalizeSymbol(symbol)
			if quote, ok := quoteFromBars(sym, bars); ok {
				quotes[sym] = quote
			}
		}
		return quotes, nil
	}
}

// quoteFromBars reduces a symbol's daily bars to a single Quote: latest
// close, percentage return over the window, daily-return volatility, latest
// volume, and window high/low. Returns false when there are no bars.
func quoteFromBars(symbol string, bars []marketdata.Bar) (domain.Quote, bool) {
	if len(bars) == 0 {
		return domain.Quote{}, false
	}

	first := bars[0]
	latest := bars[len(bars)-1]

	quote := domain.Quote{
		Symbol:       symbol,
		CurrentPrice: round2(latest.Close),
		Volume:       int64(latest.Volume),
		High:         round2(first.High),
		Low:          round2(first.Low),
	}

	var returns []float64
	prevClose := first.Close
	for _, b := range bars {
		if b.High > quote.High {
			quote.High = round2(b.High)
		}
		if b.Low < quote.Low {
			quote.Low = round2(b.Low)
		}
		if prevClose != 0 && b.Close != prevClose {
			returns = append(returns, (b.Close-prevClose)/prevClose)
		}
		prevClose = b.Close
	}

	if first.Close != 0 {
		quote.ReturnPct = round2((latest.Close - first.Close) / first.Close * 100)
	}
	quote.Volatility = round2(stddev(returns) * 100)

	return quote, true
}

// stddev is the sample standard deviation, zero for fewer than two samples.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return math.Sqrt(sq / float64(len(xs)-1))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// ParsePeriod converts a dashboard period string (1d, 5d, 1mo, 3mo, 6mo,
// 1y, 2y) into a duration.
func ParsePeriod(period string) (time.Duration, error) {
	const day = 24 * time.Hour
	switch period {
	case "", "6mo":
		return 182 * day, nil
	case "1d":
		return day, nil
	case "5d":
		return 5 * day, nil
	case "1mo":
		return 30 * day, nil
	case "3mo":
		return 91 * day, nil
	case "1y":
		return 365 * day, nil
	case "2y":
		return 730 * day, nil
	}
	return 0, fmt.Errorf("unknown period %q", period)
}
