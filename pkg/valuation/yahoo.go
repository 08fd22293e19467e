package valuation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/position-sync/pkg/market"
)

// ClientConfig represents the configuration for the Yahoo chart client.
type ClientConfig struct {
	BaseURL  string        // Default: https://query2.finance.yahoo.com
	Proxy    string        // Optional HTTP proxy URL
	Timeout  time.Duration // Default: 10 seconds
	CacheTTL time.Duration // Zero disables caching
}

// YahooClient reads quotes from the Yahoo Finance v8 chart API.
type YahooClient struct {
	httpClient *http.Client
	baseURL    string
	ttl        time.Duration

	mu    sync.Mutex
	cache map[string]cachedQuote
}

type cachedQuote struct {
	quote   Quote
	fetched time.Time
}

// NewYahooClient creates a new YahooClient.
func NewYahooClient(config ClientConfig) (*YahooClient, error) {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://query2.finance.yahoo.com"
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.Proxy != "" {
		proxyURL, err := url.Parse(config.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &YahooClient{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     config.CacheTTL,
		cache:   make(map[string]cachedQuote),
	}, nil
}

// chartResponse is the subset of /v8/finance/chart used here.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string   `json:"symbol"`
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
				FiftyTwoWeekLow    *float64 `json:"fiftyTwoWeekLow"`
				FiftyTwoWeekHigh   *float64 `json:"fiftyTwoWeekHigh"`
			} `json:"meta"`
			Events struct {
				Dividends map[string]struct {
					Amount float64 `json:"amount"`
					Date   int64   `json:"date"`
				} `json:"dividends"`
			} `json:"events"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Quote fetches one year of daily history with dividend events and returns
// the current price, 52 week range and the sum of dividends over that year.
func (c *YahooClient) Quote(ctx context.Context, code string, cfg market.Config) (Quote, error) {
	symbol := strings.ToUpper(strings.TrimSpace(Symbol(code, cfg)))
	if symbol == "" {
		return Quote{}, ErrNoData
	}

	if q, ok := c.cached(symbol); ok {
		return q, nil
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=1y&interval=1d&events=div", c.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "position-sync/1.0")

	slog.Debug("Fetching quote", "symbol", symbol)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Quote{}, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, &HTTPError{Symbol: symbol, Status: resp.StatusCode, Body: string(body)}
	}

	var raw chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Quote{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if raw.Chart.Error != nil {
		return Quote{}, fmt.Errorf("%s: %s: %w", symbol, raw.Chart.Error.Description, ErrNoData)
	}
	if len(raw.Chart.Result) == 0 {
		return Quote{}, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}

	r := raw.Chart.Result[0]
	q := Quote{
		Symbol:           symbol,
		CurrentPrice:     r.Meta.RegularMarketPrice,
		FiftyTwoWeekLow:  r.Meta.FiftyTwoWeekLow,
		FiftyTwoWeekHigh: r.Meta.FiftyTwoWeekHigh,
	}

	sum := decimal.Zero
	for _, d := range r.Events.Dividends {
		sum = sum.Add(decimal.NewFromFloat(d.Amount))
	}
	total := sum.InexactFloat64()
	q.TrailingAnnualDividend = &total

	c.store(symbol, q)
	return q, nil
}

func (c *YahooClient) cached(symbol string) (Quote, bool) {
	if c.ttl <= 0 {
		return Quote{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[symbol]
	if !ok || time.Since(entry.fetched) >= c.ttl {
		return Quote{}, false
	}
	return entry.quote, true
}

func (c *YahooClient) store(symbol string, q Quote) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.cache[symbol] = cachedQuote{quote: q, fetched: time.Now()}
	c.mu.Unlock()
}
