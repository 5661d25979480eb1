package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

// YahooClient fetches bars from the Yahoo Finance v8 chart API. It covers
// tradfi symbols (^GSPC, GC=F, ...) and doubles as the crypto fallback.
type YahooClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewYahooClient creates a client against the public chart API.
func NewYahooClient() *YahooClient {
	return &YahooClient{
		baseURL:    "https://query1.finance.yahoo.com",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewYahooClientWithURL creates a client against a custom base URL.
func NewYahooClientWithURL(baseURL string) *YahooClient {
	c := NewYahooClient()
	c.baseURL = baseURL
	return c
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch returns up to limit bars, oldest first. Symbols are translated to
// Yahoo tickers (BTCUSDT -> BTC-USD) before the request.
func (c *YahooClient) Fetch(ctx context.Context, symbol, interval string, limit int) ([]Bar, error) {
	ticker := YahooSymbol(symbol)
	rng, err := yahooRange(interval, limit)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		c.baseURL, url.PathEscape(ticker), interval, rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Source: "yahoo", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &TransientError{Source: "yahoo", Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("marketdata: yahoo returned status %d for %s", resp.StatusCode, ticker)
	}

	var chart yahooChart
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("marketdata: decode yahoo chart: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("marketdata: yahoo error for %s: %s", ticker, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("marketdata: no yahoo data for %s", ticker)
	}

	res := chart.Chart.Result[0]
	quote := res.Indicators.Quote[0]

	bars := make([]Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == 0 {
			continue
		}
		bars = append(bars, Bar{
			Time:   time.Unix(ts, 0).UTC(),
			Open:   at(quote.Open, i),
			High:   at(quote.High, i),
			Low:    at(quote.Low, i),
			Close:  quote.Close[i],
			Volume: at(quote.Volume, i),
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("marketdata: no usable yahoo bars for %s", ticker)
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	log.Debug().Str("ticker", ticker).Int("bars", len(bars)).Msg("Fetched Yahoo chart")
	return bars, nil
}

func at(vals []float64, i int) float64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

// yahooRange picks the smallest chart range that covers limit bars. Yahoo
// caps hourly data at 730 days.
func yahooRange(interval string, limit int) (string, error) {
	ms, ok := intervalToMs(interval)
	if !ok {
		return "", fmt.Errorf("marketdata: unsupported interval %q", interval)
	}
	span := time.Duration(ms) * time.Millisecond * time.Duration(limit)
	switch {
	case span <= 24*time.Hour*5:
		return "5d", nil
	case span <= 24*time.Hour*30:
		return "1mo", nil
	case span <= 24*time.Hour*365:
		return "1y", nil
	default:
		return "2y", nil
	}
}
