package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const binanceMaxLimit = 1000

// BinanceClient fetches klines from the Binance spot REST API.
type BinanceClient struct {
	restURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewBinanceClient creates a client against the public spot API.
func NewBinanceClient() *BinanceClient {
	return &BinanceClient{
		restURL:    "https://api.binance.com",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		// Binance allows 1200 request weight/min; stay well under it.
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
	}
}

// NewBinanceClientWithURL creates a client against a custom base URL.
func NewBinanceClientWithURL(baseURL string) *BinanceClient {
	c := NewBinanceClient()
	c.restURL = baseURL
	return c
}

// Fetch returns up to limit bars for symbol, oldest first. Requests are
// chunked at the API's 1000-bar cap and deduped on open time.
func (c *BinanceClient) Fetch(ctx context.Context, symbol, interval string, limit int) ([]Bar, error) {
	intervalMs, ok := intervalToMs(interval)
	if !ok {
		return nil, fmt.Errorf("marketdata: unsupported interval %q", interval)
	}

	nowMs := time.Now().UnixMilli()
	lastOpen := nowMs - nowMs%intervalMs
	earliest := lastOpen - int64(limit-1)*intervalMs

	var bars []Bar
	for start := earliest; start <= lastOpen && len(bars) < limit; {
		chunk := limit - len(bars)
		if chunk > binanceMaxLimit {
			chunk = binanceMaxLimit
		}
		got, err := c.fetchChunk(ctx, symbol, interval, start, chunk)
		if err != nil {
			return nil, err
		}
		if len(got) == 0 {
			break
		}
		bars = append(bars, got...)
		start = got[len(got)-1].Time.UnixMilli() + intervalMs
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("marketdata: no binance data for %s", symbol)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	bars = dedupeBars(bars)
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	log.Debug().Str("symbol", symbol).Str("interval", interval).Int("bars", len(bars)).Msg("Fetched Binance klines")
	return bars, nil
}

func (c *BinanceClient) fetchChunk(ctx context.Context, symbol, interval string, startMs int64, limit int) ([]Bar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&startTime=%d&limit=%d",
		c.restURL, symbol, interval, startMs, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Source: "binance", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &TransientError{Source: "binance", Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("marketdata: binance returned status %d", resp.StatusCode)
	}

	var raw [][]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("marketdata: decode binance klines: %w", err)
	}

	bars := make([]Bar, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		openTime, _ := k[0].(float64)
		bars = append(bars, Bar{
			Time:   time.UnixMilli(int64(openTime)).UTC(),
			Open:   parseKlineField(k[1]),
			High:   parseKlineField(k[2]),
			Low:    parseKlineField(k[3]),
			Close:  parseKlineField(k[4]),
			Volume: parseKlineField(k[5]),
		})
	}
	return bars, nil
}

// parseKlineField handles Binance's string-encoded numeric fields.
func parseKlineField(v interface{}) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	}
	return 0
}

func dedupeBars(bars []Bar) []Bar {
	out := bars[:0]
	var last time.Time
	for _, b := range bars {
		if !b.Time.Equal(last) {
			out = append(out, b)
			last = b.Time
		}
	}
	return out
}

func intervalToMs(interval string) (int64, bool) {
	switch interval {
	case "1m":
		return 60_000, true
	case "5m":
		return 300_000, true
	case "15m":
		return 900_000, true
	case "1h":
		return 3_600_000, true
	case "4h":
		return 14_400_000, true
	case "1d":
		return 86_400_000, true
	}
	return 0, false
}
