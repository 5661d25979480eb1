// Package sentiment provides asset-class sentiment scores for edge results.
//
// Crypto assets use the alternative.me Fear & Greed index; tradfi assets
// use Alpha Vantage news sentiment on a proxy ETF ticker. Both degrade to a
// neutral or empty score on failure; sentiment never blocks an evaluation.
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/0xfreki/edgescan/internal/cache"
)

// Score is a normalized sentiment reading.
type Score struct {
	// Value is on a 0-100 scale: 0 extreme fear, 50 neutral, 100 extreme greed.
	Value int    `json:"value"`
	Label string `json:"label"`
}

// Neutral is the fallback when the crypto index is unreachable.
func Neutral() *Score {
	return &Score{Value: 50, Label: "Neutral"}
}

// Provider fetches a sentiment score for one asset class or ticker.
type Provider interface {
	Fetch(ctx context.Context) (*Score, error)
}

const cacheTTL = time.Hour

// FearGreedClient reads the crypto Fear & Greed index.
type FearGreedClient struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.Cache[*Score]
}

// NewFearGreedClient creates a client against api.alternative.me.
func NewFearGreedClient() *FearGreedClient {
	return &FearGreedClient{
		baseURL:    "https://api.alternative.me",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cache.New[*Score](),
	}
}

// NewFearGreedClientWithURL creates a client against a custom base URL.
func NewFearGreedClientWithURL(baseURL string) *FearGreedClient {
	c := NewFearGreedClient()
	c.baseURL = baseURL
	return c
}

// Fetch returns the current index value. On any failure it returns the
// neutral score and no error; callers can always use the result.
func (c *FearGreedClient) Fetch(ctx context.Context) (*Score, error) {
	if s, ok := c.cache.Get("fng", cacheTTL); ok {
		return s, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fng/", nil)
	if err != nil {
		return Neutral(), nil
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Fear & Greed fetch failed, using neutral")
		return Neutral(), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Msg("Fear & Greed fetch failed, using neutral")
		return Neutral(), nil
	}

	var payload struct {
		Data []struct {
			Value          string `json:"value"`
			Classification string `json:"value_classification"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || len(payload.Data) == 0 {
		return Neutral(), nil
	}

	value := 50
	fmt.Sscanf(payload.Data[0].Value, "%d", &value)
	s := &Score{Value: value, Label: payload.Data[0].Classification}
	c.cache.Set("fng", s)
	return s, nil
}

// AlphaVantageClient averages news sentiment for a ticker.
type AlphaVantageClient struct {
	baseURL    string
	apiKey     string
	ticker     string
	httpClient *http.Client
	cache      *cache.Cache[*Score]
}

// ProxyTicker maps an asset code to the ETF ticker Alpha Vantage tracks.
func ProxyTicker(asset string) string {
	switch asset {
	case "SPX":
		return "SPY"
	case "NDX":
		return "QQQ"
	case "GOLD":
		return "GLD"
	case "OIL":
		return "USO"
	}
	return asset
}

// NewAlphaVantageClient creates a news-sentiment client for one ticker. An
// empty API key yields nil scores.
func NewAlphaVantageClient(apiKey, ticker string) *AlphaVantageClient {
	return &AlphaVantageClient{
		baseURL:    "https://www.alphavantage.co",
		apiKey:     apiKey,
		ticker:     ticker,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cache.New[*Score](),
	}
}

// NewAlphaVantageClientWithURL creates a client against a custom base URL.
func NewAlphaVantageClientWithURL(baseURL, apiKey, ticker string) *AlphaVantageClient {
	c := NewAlphaVantageClient(apiKey, ticker)
	c.baseURL = baseURL
	return c
}

// Fetch returns the averaged news sentiment remapped to 0-100, or nil when
// no key is configured or the feed is unavailable. Nil means "no sentiment",
// which callers attach as-is.
func (c *AlphaVantageClient) Fetch(ctx context.Context) (*Score, error) {
	if c.apiKey == "" {
		return nil, nil
	}
	if s, ok := c.cache.Get(c.ticker, cacheTTL); ok {
		return s, nil
	}

	url := fmt.Sprintf("%s/query?function=NEWS_SENTIMENT&tickers=%s&apikey=%s&limit=50",
		c.baseURL, c.ticker, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("ticker", c.ticker).Msg("News sentiment fetch failed")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var payload struct {
		Feed []struct {
			OverallSentimentScore float64 `json:"overall_sentiment_score"`
		} `json:"feed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil
	}
	if len(payload.Feed) == 0 {
		return Neutral(), nil
	}

	total := 0.0
	for _, item := range payload.Feed {
		total += item.OverallSentimentScore
	}
	avg := total / float64(len(payload.Feed))

	// Remap [-1, 1] to [0, 100].
	value := int((avg + 1) * 50)
	s := &Score{Value: value, Label: labelFor(value)}
	c.cache.Set(c.ticker, s)
	return s, nil
}

func labelFor(value int) string {
	switch {
	case value > 80:
		return "Extreme Greed"
	case value > 60:
		return "Greed"
	case value < 20:
		return "Extreme Fear"
	case value < 40:
		return "Fear"
	}
	return "Neutral"
}
