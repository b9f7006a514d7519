// Package news fetches per-symbol headlines from Alpaca and Google News RSS
// and merges them into a single time-sorted feed.
package news

import (
	"context"
	"encoding/xml"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"marketdesk/internal/domain"
)

// Article is a single headline from any source.
type Article struct {
	Time     time.Time `json:"time"`
	Source   string    `json:"source"`
	Headline string    `json:"headline"`
	Content  string    `json:"content"`
}

// AlpacaNews is the subset of the marketdata client used for news.
type AlpacaNews interface {
	GetNews(req marketdata.GetNewsRequest) ([]marketdata.News, error)
}

// Fetcher pulls headlines for one symbol from every configured source.
// Source failures degrade to partial results rather than an error.
type Fetcher struct {
	alpaca AlpacaNews
	http   *http.Client
	log    *slog.Logger

	// googleBase overrides the Google News endpoint in tests.
	googleBase string
}

// NewFetcher creates a Fetcher. alpaca may be nil when no credentials are
// configured; only the RSS source is used then.
func NewFetcher(alpaca AlpacaNews, log *slog.Logger) *Fetcher {
	return &Fetcher{
		alpaca:     alpaca,
		http:       &http.Client{Timeout: 10 * time.Second},
		log:        log,
		googleBase: "https://news.google.com/rss/search",
	}
}

// Fetch returns articles for symbol published within the last lookback
// window, newest first.
func (f *Fetcher) Fetch(ctx context.Context, symbol string, lookback time.Duration) []Article {
	symbol = domain.NormalizeSymbol(symbol)
	end := time.Now().UTC()
	start := end.Add(-lookback)

	var (
		mu       sync.Mutex
		articles []Article
		wg       sync.WaitGroup
	)
	collect := func(name string, fn func() ([]Article, error)) {
		defer wg.Done()
		got, err := fn()
		if err != nil {
			f.log.Warn("news source failed", "source", name, "symbol", symbol, "error", err)
			return
		}
		mu.Lock()
		articles = append(articles, got...)
		mu.Unlock()
	}

	if f.alpaca != nil {
		wg.Add(1)
		go collect("alpaca", func() ([]Article, error) {
			return f.fetchAlpaca(symbol, start, end)
		})
	}
	wg.Add(1)
	go collect("google", func() ([]Article, error) {
		return f.fetchGoogle(ctx, symbol, start, end)
	})
	wg.Wait()

	sort.Slice(articles, func(i, j int) bool {
		return articles[i].Time.After(articles[j].Time)
	})
	if articles == nil {
		articles = []Article{}
	}
	return articles
}

func (f *Fetcher) fetchAlpaca(symbol string, start, end time.Time) ([]Article, error) {
	items, err := f.alpaca.GetNews(marketdata.GetNewsRequest{
		Symbols:            []string{symbol},
		Start:              start,
		End:                end,
		TotalLimit:         50,
		ExcludeContentless: true,
		Sort:               marketdata.SortDesc,
	})
	if err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(items))
	for _, a := range items {
		articles = append(articles, Article{
			Time:     a.CreatedAt,
			Source:   "alpaca",
			Headline: a.Headline,
			Content:  a.Summary,
		})
	}
	return articles, nil
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	PubDate string `xml:"pubDate"`
	Desc    string `xml:"description"`
}

func (f *Fetcher) fetchGoogle(ctx context.Context, symbol string, start, end time.Time) ([]Article, error) {
	q := url.QueryEscape(symbol + " stock")
	u := f.googleBase + "?q=" + q + "&hl=en-US&gl=US&ceid=US:en"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var feed rssFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, err
	}

	var articles []Article
	for _, item := range feed.Channel.Items {
		t, err := parsePubDate(item.PubDate)
		if err != nil {
			continue
		}
		if t.Before(start) || t.After(end) {
			continue
		}
		headline := item.Title
		// Google appends " - Publisher" to titles.
		if idx := strings.LastIndex(headline, " - "); idx > 0 {
			headline = headline[:idx]
		}
		articles = append(articles, Article{
			Time:     t,
			Source:   "google",
			Headline: headline,
			Content:  StripHTML(item.Desc),
		})
	}
	return articles, nil
}

func parsePubDate(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC1123Z, s)
	if err != nil {
		t, err = time.Parse(time.RFC1123, s)
	}
	return t, err
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes HTML tags and normalizes whitespace.
func StripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
