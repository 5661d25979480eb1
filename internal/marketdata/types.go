// Package marketdata fetches historical OHLCV bars for the simulation model.
//
// Binance is the primary source for crypto pairs; Yahoo Finance covers
// tradfi symbols and acts as the crypto fallback. FallbackProvider chains
// the two with bounded retries and a circuit breaker per source.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Bar is one OHLCV candle. Series are chronological with unique timestamps.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Provider supplies ordered historical bars for a symbol.
type Provider interface {
	Fetch(ctx context.Context, symbol, interval string, limit int) ([]Bar, error)
}

// ErrDataUnavailable means every source failed and no usable data exists.
var ErrDataUnavailable = errors.New("marketdata: data unavailable")

// TransientError marks a retryable fetch failure (rate limit, server error).
type TransientError struct {
	Source string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("marketdata: transient %s error (status %d): %v", e.Source, e.Status, e.Err)
	}
	return fmt.Sprintf("marketdata: transient %s error (status %d)", e.Source, e.Status)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Closes extracts the close column from a bar series.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// CryptoSymbol maps an asset code to its Binance trading pair.
func CryptoSymbol(asset string) (string, bool) {
	switch asset {
	case "BTC", "ETH", "SOL":
		return asset + "USDT", true
	}
	return "", false
}

// YahooSymbol maps an asset code or Binance pair to a Yahoo ticker.
func YahooSymbol(symbol string) string {
	switch symbol {
	case "SPX", "^GSPC":
		return "^GSPC"
	case "NDX", "^IXIC":
		return "^IXIC"
	case "GOLD", "GC=F":
		return "GC=F"
	case "OIL", "CL=F":
		return "CL=F"
	}
	// BTCUSDT -> BTC-USD and friends.
	if len(symbol) > 4 && symbol[len(symbol)-4:] == "USDT" {
		return symbol[:len(symbol)-4] + "-USD"
	}
	return symbol
}
