// Package macro checks the Finnhub economic calendar for upcoming
// high-impact events and turns them into a volatility multiplier for the
// simulation's noise overlay.
package macro

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/0xfreki/edgescan/internal/cache"
)

// highImpactMultiplier is applied when a high-impact event falls inside the
// lookahead window; otherwise the multiplier is neutral 1.0.
const highImpactMultiplier = 1.5

// highImpactKeywords catch events Finnhub doesn't tag as high impact but
// that reliably move crypto and equities.
var highImpactKeywords = []string{"fomc", "fed interest", "non-farm", "cpi", "gdp"}

// Event is one calendar entry.
type Event struct {
	Name   string `json:"event"`
	Impact string `json:"impact"`
	Date   string `json:"date"`
}

// Client fetches the economic calendar. The calendar moves slowly, so
// responses are cached for four hours.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *cache.Cache[[]Event]
	cacheTTL   time.Duration
}

// NewClient creates a calendar client. An empty API key disables fetching;
// Multiplier then always returns neutral.
func NewClient(apiKey string) *Client {
	return &Client{
		baseURL:    "https://finnhub.io/api/v1",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cache.New[[]Event](),
		cacheTTL:   4 * time.Hour,
	}
}

// NewClientWithURL creates a client against a custom base URL.
func NewClientWithURL(baseURL, apiKey string) *Client {
	c := NewClient(apiKey)
	c.baseURL = baseURL
	return c
}

// Multiplier returns the volatility multiplier for the next daysAhead days.
// Any failure degrades to neutral 1.0; macro adjustment is never fatal.
func (c *Client) Multiplier(ctx context.Context, daysAhead int) float64 {
	if c.apiKey == "" {
		return 1.0
	}

	// The window is part of the identity: a 1-day lookahead must not answer
	// from a 7-day fetch.
	key := fmt.Sprintf("calendar:%d", daysAhead)
	events, ok := c.cache.Get(key, c.cacheTTL)
	if !ok {
		fetched, err := c.fetchCalendar(ctx, daysAhead)
		if err != nil {
			log.Warn().Err(err).Msg("Macro calendar fetch failed, using neutral multiplier")
			return 1.0
		}
		c.cache.Set(key, fetched)
		events = fetched
	}

	return analyzeEvents(events)
}

func (c *Client) fetchCalendar(ctx context.Context, daysAhead int) ([]Event, error) {
	from := time.Now().UTC().Format("2006-01-02")
	to := time.Now().UTC().AddDate(0, 0, daysAhead).Format("2006-01-02")

	url := fmt.Sprintf("%s/calendar/economic?from=%s&to=%s&token=%s", c.baseURL, from, to, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("macro: finnhub returned status %d", resp.StatusCode)
	}

	var payload struct {
		EconomicCalendar []Event `json:"economicCalendar"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("macro: decode calendar: %w", err)
	}
	return payload.EconomicCalendar, nil
}

func analyzeEvents(events []Event) float64 {
	for _, ev := range events {
		name := strings.ToLower(ev.Name)
		if strings.EqualFold(ev.Impact, "high") {
			log.Debug().Str("event", ev.Name).Str("date", ev.Date).Msg("High impact macro event ahead")
			return highImpactMultiplier
		}
		for _, kw := range highImpactKeywords {
			if strings.Contains(name, kw) {
				log.Debug().Str("event", ev.Name).Str("date", ev.Date).Msg("High impact macro event ahead")
				return highImpactMultiplier
			}
		}
	}
	return 1.0
}
