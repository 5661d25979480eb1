// Package polymarket fetches active markets from the Polymarket Gamma API.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Market is a binary prediction market in normalized form. Gamma's loose
// encodings (stringified arrays, string numbers) are resolved at the
// ingestion boundary so the rest of the engine only sees typed values.
type Market struct {
	ID       string
	Question string
	Slug     string
	YesPrice decimal.Decimal
	NoPrice  decimal.Decimal
	Volume   float64
	EndDate  time.Time
	Active   bool
}

// gammaMarket mirrors the wire shape of one /markets entry.
type gammaMarket struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	Slug          string `json:"slug"`
	OutcomePrices string `json:"outcomePrices"`
	Volume        string `json:"volume"`
	EndDate       string `json:"endDate"`
	Active        bool   `json:"active"`
	Closed        bool   `json:"closed"`
}

// Client is a Gamma REST client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client against the given Gamma base URL; empty means
// the public endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://gamma-api.polymarket.com"
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchMarkets returns up to limit active, open markets ordered by volume.
func (c *Client) FetchMarkets(ctx context.Context, limit int) ([]Market, error) {
	if limit <= 0 {
		limit = 100
	}

	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("order", "volume")
	params.Set("ascending", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/markets?%s", c.baseURL, params.Encode()), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket: fetch markets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("polymarket: gamma returned status %d", resp.StatusCode)
	}

	var raw []gammaMarket
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("polymarket: decode markets: %w", err)
	}

	markets := make([]Market, 0, len(raw))
	for _, g := range raw {
		if g.Closed {
			continue
		}
		markets = append(markets, normalize(g))
	}
	log.Debug().Int("markets", len(markets)).Msg("Fetched Polymarket markets")
	return markets, nil
}

// normalize converts a wire market to the typed form. Missing or malformed
// prices default to an uninformative 0.50/0.50 split; a missing end date
// stays zero for the caller to default.
func normalize(g gammaMarket) Market {
	m := Market{
		ID:       g.ID,
		Question: g.Question,
		Slug:     g.Slug,
		YesPrice: decimal.NewFromFloat(0.5),
		NoPrice:  decimal.NewFromFloat(0.5),
		Active:   g.Active,
	}

	// outcomePrices is a JSON array encoded as a string, e.g. `["0.75","0.25"]`.
	var prices []string
	if err := json.Unmarshal([]byte(g.OutcomePrices), &prices); err == nil && len(prices) >= 2 {
		if yes, err := decimal.NewFromString(prices[0]); err == nil {
			m.YesPrice = yes
		}
		if no, err := decimal.NewFromString(prices[1]); err == nil {
			m.NoPrice = no
		}
	}

	if v, err := strconv.ParseFloat(g.Volume, 64); err == nil {
		m.Volume = v
	}
	if g.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, g.EndDate); err == nil {
			m.EndDate = t
		}
	}
	return m
}
