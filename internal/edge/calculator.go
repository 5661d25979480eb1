// Package edge turns market quotes and Monte Carlo probabilities into
// actionable mispricing signals.
package edge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/0xfreki/edgescan/internal/cache"
	"github.com/0xfreki/edgescan/internal/marketdata"
	"github.com/0xfreki/edgescan/internal/montecarlo"
	"github.com/0xfreki/edgescan/internal/polymarket"
	"github.com/0xfreki/edgescan/internal/questions"
	"github.com/0xfreki/edgescan/internal/sentiment"
)

// Recommendation is the suggested side of a market.
type Recommendation string

const (
	BuyYes Recommendation = "BUY_YES"
	BuyNo  Recommendation = "BUY_NO"
	Hold   Recommendation = "HOLD"
)

// Confidence grades how far the model disagrees with the quoted price.
type Confidence string

const (
	High   Confidence = "HIGH"
	Medium Confidence = "MEDIUM"
	Low    Confidence = "LOW"
)

// Thresholds for the recommendation tiers, on the |edge| scale.
const (
	strongEdge = 0.10
	weakEdge   = 0.05
)

// bandWidth is the half-width of the reported probability band. It is a
// fixed display margin, not a statistical interval.
const bandWidth = 0.03

// Opportunity is one evaluated market.
type Opportunity struct {
	MarketID     string          `json:"market_id"`
	Question     string          `json:"question"`
	Slug         string          `json:"slug"`
	YesPrice     decimal.Decimal `json:"yes_price"`
	NoPrice      decimal.Decimal `json:"no_price"`
	Probability  float64         `json:"probability"`
	BandLow      float64         `json:"band_low"`
	BandHigh     float64         `json:"band_high"`
	Edge         float64         `json:"edge"`
	Recommend    Recommendation  `json:"recommendation"`
	Confidence   Confidence      `json:"confidence"`
	Asset        string          `json:"asset"`
	TargetPrice  float64         `json:"target_price"`
	CurrentPrice float64         `json:"current_price"`
	Resolution   time.Time       `json:"resolution"`
	NumSims      int             `json:"num_sims"`
	Sentiment    *sentiment.Score `json:"sentiment,omitempty"`
}

// MacroSource supplies the volatility multiplier for upcoming macro events.
type MacroSource interface {
	Multiplier(ctx context.Context, daysAhead int) float64
}

// History receives each freshly fetched bar series for persistence.
type History interface {
	SaveBars(symbol string, bars []marketdata.Bar) error
}

// Config tunes the calculator.
type Config struct {
	// NumSims is the trajectory count per evaluation.
	NumSims int
	// SeriesTTL bounds how long a per-asset model is reused before its
	// historical series is refetched.
	SeriesTTL time.Duration
	// Bars is how much history to fetch per asset.
	Bars int
	// Interval is the bar interval requested from providers.
	Interval string
	// ScanConcurrency bounds in-flight evaluations during Scan. It is
	// independent of the executor pool size: it limits I/O fan-out while the
	// pool limits CPU.
	ScanConcurrency int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		NumSims:         10_000,
		SeriesTTL:       time.Hour,
		Bars:            720,
		Interval:        "1h",
		ScanConcurrency: 4,
	}
}

// Calculator evaluates markets. All collaborators are injected at
// construction; a nil macro source or missing sentiment provider simply
// degrades that input.
type Calculator struct {
	parser     *questions.Parser
	crypto     marketdata.Provider
	tradfi     marketdata.Provider
	models     *cache.Cache[*montecarlo.Model]
	exec       *montecarlo.Executor
	macro      MacroSource
	sentiments map[string]sentiment.Provider
	history    History
	cfg        Config
	now        func() time.Time
}

// New builds a calculator. sentiments maps asset code to its sentiment
// provider; assets without an entry get no sentiment.
func New(
	parser *questions.Parser,
	crypto, tradfi marketdata.Provider,
	exec *montecarlo.Executor,
	macro MacroSource,
	sentiments map[string]sentiment.Provider,
	cfg Config,
) *Calculator {
	d := DefaultConfig()
	if cfg.NumSims <= 0 {
		cfg.NumSims = d.NumSims
	}
	if cfg.SeriesTTL <= 0 {
		cfg.SeriesTTL = d.SeriesTTL
	}
	if cfg.Bars <= 0 {
		cfg.Bars = d.Bars
	}
	if cfg.Interval == "" {
		cfg.Interval = d.Interval
	}
	if cfg.ScanConcurrency <= 0 {
		cfg.ScanConcurrency = d.ScanConcurrency
	}
	return &Calculator{
		parser:     parser,
		crypto:     crypto,
		tradfi:     tradfi,
		models:     cache.New[*montecarlo.Model](),
		exec:       exec,
		macro:      macro,
		sentiments: sentiments,
		cfg:        cfg,
		now:        time.Now,
	}
}

// SetHistory wires a sink for fetched bar series. Persistence failures are
// logged, never fatal.
func (c *Calculator) SetHistory(h History) {
	c.history = h
}

// Evaluate runs the full pipeline for one market. A question the parser
// cannot classify returns (nil, nil): not evaluable is a null result, not an
// error.
func (c *Calculator) Evaluate(ctx context.Context, market polymarket.Market) (*Opportunity, error) {
	target, ok := c.parser.Parse(market.Question)
	if !ok {
		return nil, nil
	}

	resolution := market.EndDate
	if resolution.IsZero() {
		// Year-end close is the conventional deadline for undated
		// "this year" questions.
		y := c.now().UTC().Year()
		resolution = time.Date(y, time.December, 31, 23, 59, 59, 0, time.UTC)
	}

	model, err := c.modelFor(ctx, target.Asset)
	if err != nil {
		return nil, fmt.Errorf("edge: model for %s: %w", target.Asset, err)
	}

	multiplier := 1.0
	if c.macro != nil {
		multiplier = c.macro.Multiplier(ctx, daysUntil(c.now(), resolution))
	}

	result, err := c.exec.Run(ctx, model, resolution, montecarlo.SimOptions{
		NoiseMultiplier: multiplier,
	})
	if err != nil {
		return nil, fmt.Errorf("edge: simulate %s: %w", target.Asset, err)
	}

	var p float64
	if target.Direction == questions.Below {
		p = result.ProbabilityBelow(target.Price)
	} else {
		p = result.ProbabilityAbove(target.Price)
	}

	yes := market.YesPrice.InexactFloat64()
	e := p - yes
	rec, conf := classify(e)

	opp := &Opportunity{
		MarketID:     market.ID,
		Question:     market.Question,
		Slug:         market.Slug,
		YesPrice:     market.YesPrice,
		NoPrice:      market.NoPrice,
		Probability:  p,
		BandLow:      math.Max(0, p-bandWidth),
		BandHigh:     math.Min(1, p+bandWidth),
		Edge:         e,
		Recommend:    rec,
		Confidence:   conf,
		Asset:        target.Asset,
		TargetPrice:  target.Price,
		CurrentPrice: model.S0(),
		Resolution:   resolution,
		NumSims:      len(result.ST),
		Sentiment:    c.sentimentFor(ctx, target.Asset),
	}

	log.Debug().
		Str("market", market.ID).
		Str("asset", target.Asset).
		Float64("probability", p).
		Float64("edge", e).
		Str("recommendation", string(rec)).
		Msg("Evaluated market")
	return opp, nil
}

// Scan evaluates markets concurrently and returns the strongest edges first,
// truncated to limit. Per-market failures are logged and skipped; a context
// deadline returns whatever has resolved so far.
func (c *Calculator) Scan(ctx context.Context, markets []polymarket.Market, limit int) ([]Opportunity, error) {
	sem := make(chan struct{}, c.cfg.ScanConcurrency)
	var (
		mu  sync.Mutex
		out []Opportunity
		wg  sync.WaitGroup
	)

	for _, m := range markets {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(m polymarket.Market) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			opp, err := c.Evaluate(ctx, m)
			if err != nil {
				log.Warn().Err(err).Str("market", m.ID).Msg("Market evaluation failed")
				return
			}
			if opp == nil {
				return
			}
			mu.Lock()
			out = append(out, *opp)
			mu.Unlock()
		}(m)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Msg("Scan deadline hit, returning partial results")
	}

	mu.Lock()
	results := make([]Opportunity, len(out))
	copy(results, out)
	mu.Unlock()

	sort.Slice(results, func(i, j int) bool {
		return math.Abs(results[i].Edge) > math.Abs(results[j].Edge)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// modelFor returns the cached model for an asset, rebuilding it from a fresh
// series fetch when stale. Two concurrent rebuilds of the same asset may both
// run; the duplicate work is harmless and the later Set wins.
func (c *Calculator) modelFor(ctx context.Context, asset string) (*montecarlo.Model, error) {
	if m, ok := c.models.Get(asset, c.cfg.SeriesTTL); ok {
		return m, nil
	}

	provider, symbol := c.tradfi, asset
	if pair, ok := marketdata.CryptoSymbol(asset); ok {
		provider, symbol = c.crypto, pair
	}

	bars, err := provider.Fetch(ctx, symbol, c.cfg.Interval, c.cfg.Bars)
	if err != nil {
		// A stale model beats no model when the provider chain is down.
		if m, ok := c.models.GetStale(asset); ok {
			log.Warn().Err(err).Str("asset", asset).Msg("Series refresh failed, reusing stale model")
			return m, nil
		}
		return nil, err
	}

	if c.history != nil {
		if err := c.history.SaveBars(symbol, bars); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Persisting bar history failed")
		}
	}

	mcCfg := montecarlo.DefaultConfig()
	mcCfg.NumSims = c.cfg.NumSims
	model, err := montecarlo.NewModel(marketdata.Closes(bars), mcCfg)
	if err != nil {
		return nil, err
	}
	c.models.Set(asset, model)
	return model, nil
}

func (c *Calculator) sentimentFor(ctx context.Context, asset string) *sentiment.Score {
	provider, ok := c.sentiments[asset]
	if !ok || provider == nil {
		return nil
	}
	score, err := provider.Fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Str("asset", asset).Msg("Sentiment fetch failed")
		return nil
	}
	return score
}

// classify maps an edge to a recommendation tier.
func classify(edge float64) (Recommendation, Confidence) {
	abs := math.Abs(edge)
	switch {
	case abs > strongEdge && edge > 0:
		return BuyYes, High
	case abs > strongEdge:
		return BuyNo, High
	case abs > weakEdge && edge > 0:
		return BuyYes, Medium
	case abs > weakEdge:
		return BuyNo, Medium
	}
	return Hold, Low
}

func daysUntil(now, resolution time.Time) int {
	d := int(resolution.Sub(now).Hours() / 24)
	if d < 1 {
		return 1
	}
	if d > 7 {
		// The macro calendar only matters near-term.
		return 7
	}
	return d
}
