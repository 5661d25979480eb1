package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// RetryConfig bounds the retry loop on transient failures.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// DefaultRetryConfig retries transient errors three times with exponential
// backoff starting at 500ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseBackoff: 500 * time.Millisecond}
}

// FallbackProvider tries a primary source and falls back to a secondary on
// total failure. Transient errors (rate limits, server errors) are retried a
// bounded number of times; permanent errors move on immediately. Each source
// sits behind its own circuit breaker so a flapping upstream is skipped fast.
type FallbackProvider struct {
	primary   Provider
	secondary Provider
	retry     RetryConfig

	primaryBreaker   *gobreaker.CircuitBreaker
	secondaryBreaker *gobreaker.CircuitBreaker
}

// NewFallbackProvider wires primary and secondary sources. secondary may be
// nil, in which case only the primary is used.
func NewFallbackProvider(primary, secondary Provider, retry RetryConfig) *FallbackProvider {
	breakerFor := func(name string) *gobreaker.CircuitBreaker {
		return gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}
	return &FallbackProvider{
		primary:          primary,
		secondary:        secondary,
		retry:            retry,
		primaryBreaker:   breakerFor("marketdata-primary"),
		secondaryBreaker: breakerFor("marketdata-secondary"),
	}
}

// Fetch returns bars from the first source that succeeds. When both sources
// are exhausted the error wraps ErrDataUnavailable.
func (p *FallbackProvider) Fetch(ctx context.Context, symbol, interval string, limit int) ([]Bar, error) {
	bars, primaryErr := p.fetchWithRetry(ctx, p.primary, p.primaryBreaker, symbol, interval, limit)
	if primaryErr == nil {
		return bars, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if p.secondary == nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDataUnavailable, symbol, primaryErr)
	}

	log.Warn().Err(primaryErr).Str("symbol", symbol).Msg("Primary source failed, trying fallback")

	bars, secondaryErr := p.fetchWithRetry(ctx, p.secondary, p.secondaryBreaker, symbol, interval, limit)
	if secondaryErr == nil {
		return bars, nil
	}
	return nil, fmt.Errorf("%w: %s: primary: %v; fallback: %v", ErrDataUnavailable, symbol, primaryErr, secondaryErr)
}

// fetchWithRetry is an explicit bounded loop with an attempt counter. Only
// transient errors are retried; anything else propagates immediately.
func (p *FallbackProvider) fetchWithRetry(ctx context.Context, src Provider, cb *gobreaker.CircuitBreaker, symbol, interval string, limit int) ([]Bar, error) {
	var lastErr error
	for attempt := 0; attempt < p.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := p.retry.BaseBackoff << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := cb.Execute(func() (interface{}, error) {
			return src.Fetch(ctx, symbol, interval, limit)
		})
		if err == nil {
			return result.([]Bar), nil
		}
		lastErr = err

		if !IsTransient(err) {
			return nil, err
		}
		log.Debug().Err(err).Str("symbol", symbol).Int("attempt", attempt+1).Msg("Transient fetch error, retrying")
	}
	return nil, lastErr
}
