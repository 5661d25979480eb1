package edge

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xfreki/edgescan/internal/marketdata"
	"github.com/0xfreki/edgescan/internal/montecarlo"
	"github.com/0xfreki/edgescan/internal/polymarket"
	"github.com/0xfreki/edgescan/internal/questions"
	"github.com/0xfreki/edgescan/internal/sentiment"
)

type stubProvider struct {
	bars []marketdata.Bar
	err  error
}

func (s *stubProvider) Fetch(ctx context.Context, symbol, interval string, limit int) ([]marketdata.Bar, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.bars, nil
}

type stubMacro struct{ m float64 }

func (s *stubMacro) Multiplier(ctx context.Context, daysAhead int) float64 { return s.m }

type stubSentiment struct{ score *sentiment.Score }

func (s *stubSentiment) Fetch(ctx context.Context) (*sentiment.Score, error) {
	return s.score, nil
}

func barsAround(price float64, n int) []marketdata.Bar {
	bars := make([]marketdata.Bar, n)
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := price
	for i := range bars {
		if i%2 == 0 {
			p *= 1.01
		} else {
			p /= 1.01
		}
		bars[i] = marketdata.Bar{Time: t.Add(time.Duration(i) * time.Hour), Close: p}
	}
	return bars
}

func newTestCalculator(t *testing.T, crypto, tradfi marketdata.Provider) (*Calculator, *montecarlo.Executor) {
	t.Helper()
	exec := montecarlo.NewExecutor(2)
	exec.Start()
	t.Cleanup(exec.Close)

	c := New(questions.New(), crypto, tradfi, exec, &stubMacro{m: 1.0}, nil, Config{
		NumSims:         500,
		SeriesTTL:       time.Hour,
		Bars:            100,
		Interval:        "1h",
		ScanConcurrency: 2,
	})
	return c, exec
}

func market(id, question string, yes float64, end time.Time) polymarket.Market {
	return polymarket.Market{
		ID:       id,
		Question: question,
		Slug:     id,
		YesPrice: decimal.NewFromFloat(yes),
		NoPrice:  decimal.NewFromFloat(1 - yes),
		EndDate:  end,
		Active:   true,
	}
}

func TestClassifyTiers(t *testing.T) {
	cases := []struct {
		edge float64
		rec  Recommendation
		conf Confidence
	}{
		{0.15, BuyYes, High},
		{-0.15, BuyNo, High},
		{0.08, BuyYes, Medium},
		{-0.08, BuyNo, Medium},
		{0.02, Hold, Low},
		{-0.02, Hold, Low},
		// Boundaries are exclusive.
		{0.10, BuyYes, Medium},
		{0.05, Hold, Low},
	}
	for _, tc := range cases {
		rec, conf := classify(tc.edge)
		assert.Equal(t, tc.rec, rec, "edge %v", tc.edge)
		assert.Equal(t, tc.conf, conf, "edge %v", tc.edge)
	}
}

func TestEvaluateStrongYesEdge(t *testing.T) {
	crypto := &stubProvider{bars: barsAround(100_000, 200)}
	c, _ := newTestCalculator(t, crypto, &stubProvider{err: errors.New("unused")})

	// Target far below the current price: every trajectory ends above it, so
	// the model probability is 1.0 against a 0.60 quote.
	end := time.Now().UTC().Add(72 * time.Hour)
	opp, err := c.Evaluate(context.Background(), market("m1", "Will Bitcoin reach $10,000?", 0.60, end))
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, "BTC", opp.Asset)
	assert.Equal(t, 1.0, opp.Probability)
	assert.InDelta(t, 0.40, opp.Edge, 1e-9)
	assert.Equal(t, BuyYes, opp.Recommend)
	assert.Equal(t, High, opp.Confidence)
	assert.Equal(t, 500, opp.NumSims)
	assert.Equal(t, 10_000.0, opp.TargetPrice)
	assert.Greater(t, opp.CurrentPrice, 50_000.0)
	// Band clamps at 1.
	assert.Equal(t, 1.0, opp.BandHigh)
	assert.InDelta(t, 0.97, opp.BandLow, 1e-9)
}

func TestEvaluateStrongNoEdge(t *testing.T) {
	crypto := &stubProvider{bars: barsAround(100_000, 200)}
	c, _ := newTestCalculator(t, crypto, &stubProvider{err: errors.New("unused")})

	// Unreachable target: probability 0 against a 0.60 quote.
	end := time.Now().UTC().Add(72 * time.Hour)
	opp, err := c.Evaluate(context.Background(), market("m2", "Will Bitcoin reach $10,000,000?", 0.60, end))
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, 0.0, opp.Probability)
	assert.Equal(t, BuyNo, opp.Recommend)
	assert.Equal(t, High, opp.Confidence)
	assert.Equal(t, 0.0, opp.BandLow)
}

func TestEvaluateBelowDirection(t *testing.T) {
	crypto := &stubProvider{bars: barsAround(100_000, 200)}
	c, _ := newTestCalculator(t, crypto, &stubProvider{err: errors.New("unused")})

	end := time.Now().UTC().Add(72 * time.Hour)
	opp, err := c.Evaluate(context.Background(), market("m3", "Will Bitcoin dip to $10,000?", 0.50, end))
	require.NoError(t, err)
	require.NotNil(t, opp)

	// Below a far-away floor never happens.
	assert.Equal(t, 0.0, opp.Probability)
}

func TestEvaluateNotApplicable(t *testing.T) {
	c, _ := newTestCalculator(t, &stubProvider{}, &stubProvider{})

	opp, err := c.Evaluate(context.Background(), market("m4", "Will Trump win the 2024 election?", 0.50, time.Time{}))
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestEvaluateDefaultsResolutionToYearEnd(t *testing.T) {
	crypto := &stubProvider{bars: barsAround(100_000, 200)}
	c, _ := newTestCalculator(t, crypto, &stubProvider{err: errors.New("unused")})

	// The model's horizon check uses the real clock, so pin only the year.
	year := time.Now().UTC().Year()
	c.now = func() time.Time { return time.Date(year, 6, 1, 0, 0, 0, 0, time.UTC) }

	opp, err := c.Evaluate(context.Background(), market("m5", "Will Bitcoin reach $10,000?", 0.60, time.Time{}))
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, time.Date(year, 12, 31, 23, 59, 59, 0, time.UTC), opp.Resolution)
}

func TestEvaluatePropagatesProviderError(t *testing.T) {
	c, _ := newTestCalculator(t, &stubProvider{err: marketdata.ErrDataUnavailable}, &stubProvider{})

	end := time.Now().UTC().Add(72 * time.Hour)
	_, err := c.Evaluate(context.Background(), market("m6", "Will Bitcoin reach $150,000?", 0.60, end))
	assert.ErrorIs(t, err, marketdata.ErrDataUnavailable)
}

func TestModelCacheReusedAcrossEvaluations(t *testing.T) {
	crypto := &stubProvider{bars: barsAround(100_000, 200)}
	c, _ := newTestCalculator(t, crypto, &stubProvider{err: errors.New("unused")})

	end := time.Now().UTC().Add(72 * time.Hour)
	_, err := c.Evaluate(context.Background(), market("m7", "Will Bitcoin reach $10,000?", 0.60, end))
	require.NoError(t, err)

	// Provider breaks, but the cached model still serves the asset.
	crypto.err = errors.New("binance down")
	opp, err := c.Evaluate(context.Background(), market("m8", "Will Bitcoin reach $10,000?", 0.60, end))
	require.NoError(t, err)
	require.NotNil(t, opp)
}

func TestEvaluateAttachesSentiment(t *testing.T) {
	crypto := &stubProvider{bars: barsAround(100_000, 200)}
	exec := montecarlo.NewExecutor(2)
	exec.Start()
	t.Cleanup(exec.Close)

	c := New(questions.New(), crypto, &stubProvider{}, exec, nil, map[string]sentiment.Provider{
		"BTC": &stubSentiment{score: &sentiment.Score{Value: 72, Label: "Greed"}},
	}, Config{NumSims: 200})

	end := time.Now().UTC().Add(72 * time.Hour)
	opp, err := c.Evaluate(context.Background(), market("m9", "Will Bitcoin reach $10,000?", 0.60, end))
	require.NoError(t, err)
	require.NotNil(t, opp)
	require.NotNil(t, opp.Sentiment)
	assert.Equal(t, 72, opp.Sentiment.Value)
}

type fakeHistory struct {
	mu    sync.Mutex
	saved map[string][]marketdata.Bar
	err   error
}

func (f *fakeHistory) SaveBars(symbol string, bars []marketdata.Bar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string][]marketdata.Bar)
	}
	f.saved[symbol] = bars
	return f.err
}

func TestFetchedSeriesPersistedToHistory(t *testing.T) {
	bars := barsAround(100_000, 200)
	crypto := &stubProvider{bars: bars}
	c, _ := newTestCalculator(t, crypto, &stubProvider{err: errors.New("unused")})

	hist := &fakeHistory{}
	c.SetHistory(hist)

	end := time.Now().UTC().Add(72 * time.Hour)
	_, err := c.Evaluate(context.Background(), market("m10", "Will Bitcoin reach $10,000?", 0.60, end))
	require.NoError(t, err)
	assert.Len(t, hist.saved["BTCUSDT"], len(bars))

	// Cache hit on the second evaluation: no refetch, no resave.
	hist.saved = nil
	_, err = c.Evaluate(context.Background(), market("m11", "Will Bitcoin reach $10,000?", 0.60, end))
	require.NoError(t, err)
	assert.Empty(t, hist.saved)
}

func TestHistorySaveFailureIsNotFatal(t *testing.T) {
	crypto := &stubProvider{bars: barsAround(100_000, 200)}
	c, _ := newTestCalculator(t, crypto, &stubProvider{err: errors.New("unused")})
	c.SetHistory(&fakeHistory{err: errors.New("disk full")})

	end := time.Now().UTC().Add(72 * time.Hour)
	opp, err := c.Evaluate(context.Background(), market("m12", "Will Bitcoin reach $10,000?", 0.60, end))
	require.NoError(t, err)
	require.NotNil(t, opp)
}

func TestScanIsolatesFailuresAndSorts(t *testing.T) {
	crypto := &stubProvider{err: errors.New("binance down")}
	tradfi := &stubProvider{bars: barsAround(2_400, 200)}
	c, _ := newTestCalculator(t, crypto, tradfi)

	end := time.Now().UTC().Add(72 * time.Hour)
	markets := []polymarket.Market{
		market("btc", "Will Bitcoin reach $150,000?", 0.60, end), // provider fails
		market("none", "Will it rain in London tomorrow?", 0.50, end),
		market("gold-weak", "Will Gold close at 100 at year end?", 0.98, end), // p=1, edge 0.02
		market("gold-strong", "Will Gold close at 100 by then?", 0.40, end),   // p=1, edge 0.60
	}

	opps, err := c.Scan(context.Background(), markets, 10)
	require.NoError(t, err)
	require.Len(t, opps, 2)

	// Strongest |edge| first.
	assert.Equal(t, "gold-strong", opps[0].MarketID)
	assert.Equal(t, "gold-weak", opps[1].MarketID)
	assert.Greater(t, math.Abs(opps[0].Edge), math.Abs(opps[1].Edge))
}

func TestScanTruncatesToLimit(t *testing.T) {
	tradfi := &stubProvider{bars: barsAround(2_400, 200)}
	c, _ := newTestCalculator(t, &stubProvider{err: errors.New("unused")}, tradfi)

	end := time.Now().UTC().Add(72 * time.Hour)
	markets := []polymarket.Market{
		market("g1", "Will Gold close at 100?", 0.40, end),
		market("g2", "Will Gold close at 200?", 0.45, end),
		market("g3", "Will Gold close at 300?", 0.50, end),
	}

	opps, err := c.Scan(context.Background(), markets, 2)
	require.NoError(t, err)
	assert.Len(t, opps, 2)
}

func TestScanDeadlineReturnsPartialResults(t *testing.T) {
	tradfi := &stubProvider{bars: barsAround(2_400, 200)}
	c, _ := newTestCalculator(t, &stubProvider{err: errors.New("unused")}, tradfi)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	end := time.Now().UTC().Add(72 * time.Hour)
	opps, err := c.Scan(ctx, []polymarket.Market{
		market("g1", "Will Gold close at 100?", 0.40, end),
	}, 10)
	require.NoError(t, err)
	assert.Empty(t, opps)
}
