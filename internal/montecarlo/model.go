// Package montecarlo implements bootstrap Monte Carlo price simulation.
//
// A Model is built once from a historical close series and resamples its
// empirical log-returns to project terminal prices at a future date. No
// parametric distribution is assumed; the only inputs are the observed
// returns, an optional Gaussian noise overlay for exogenous shocks, and a
// cap on how often any single historical return may be reused within one
// simulated trajectory.
package montecarlo

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrInsufficientData means the close series cannot produce a return pool.
	ErrInsufficientData = errors.New("montecarlo: need at least 2 closes")
	// ErrInvalidHorizon means the resolution date is missing, unparseable or
	// not far enough in the future to cover one bar period.
	ErrInvalidHorizon = errors.New("montecarlo: resolution date not in the future")
)

// noiseFloor is the minimum noise sigma applied whenever a noise multiplier
// above 1 is in effect, so macro adjustments bite even with NoiseStd = 0.
const noiseFloor = 0.001

// Config fixes a model's simulation parameters for its lifetime.
type Config struct {
	// NumSims is the number of independent trajectories per Simulate call.
	NumSims int
	// MaxReuse caps how many times one historical return index may appear
	// within a single trajectory's sample sequence.
	MaxReuse int
	// NoiseStd is the base sigma of Gaussian noise added to each sampled
	// return. Zero disables noise unless a multiplier above 1 is supplied.
	NoiseStd float64
	// Centering subtracts the historical mean return from the pool before
	// sampling. The market is assumed to already price in expected drift;
	// disable to simulate with raw drift included.
	Centering bool
	// BarPeriod is the wall-clock span of one historical bar, used to turn
	// a resolution date into a period count.
	BarPeriod time.Duration
}

// DefaultConfig mirrors the production defaults: 10k sims, reuse cap 3,
// centering on, hourly bars.
func DefaultConfig() Config {
	return Config{
		NumSims:   10_000,
		MaxReuse:  3,
		NoiseStd:  0,
		Centering: true,
		BarPeriod: time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.NumSims <= 0 {
		c.NumSims = d.NumSims
	}
	if c.MaxReuse <= 0 {
		c.MaxReuse = d.MaxReuse
	}
	if c.BarPeriod <= 0 {
		c.BarPeriod = d.BarPeriod
	}
	return c
}

// Model holds the empirical return pool for one asset. It is immutable after
// construction: Simulate only reads, so one instance may serve concurrent
// queries for a cache lifetime.
type Model struct {
	s0         float64
	returns    []float64
	meanReturn float64
	cfg        Config
	now        func() time.Time
}

// NewModel builds a model from a chronological close series.
func NewModel(closes []float64, cfg Config) (*Model, error) {
	if len(closes) < 2 {
		return nil, ErrInsufficientData
	}
	for i, c := range closes {
		if c <= 0 {
			return nil, fmt.Errorf("%w: non-positive close at index %d", ErrInsufficientData, i)
		}
	}

	returns := make([]float64, len(closes)-1)
	sum := 0.0
	for i := 1; i < len(closes); i++ {
		r := math.Log(closes[i] / closes[i-1])
		returns[i-1] = r
		sum += r
	}

	return &Model{
		s0:         closes[len(closes)-1],
		returns:    returns,
		meanReturn: sum / float64(len(returns)),
		cfg:        cfg.withDefaults(),
		now:        time.Now,
	}, nil
}

// S0 returns the last observed close, the simulation's starting price.
func (m *Model) S0() float64 { return m.s0 }

// NumReturns returns the size of the log-return pool.
func (m *Model) NumReturns() int { return len(m.returns) }

// MeanReturn returns the historical mean log-return.
func (m *Model) MeanReturn() float64 { return m.meanReturn }

// Config returns the model's fixed configuration.
func (m *Model) Config() Config { return m.cfg }

// SimOptions are the per-call knobs of Simulate.
type SimOptions struct {
	// KeepPaths retains the full price path of every trajectory, enabling
	// touch probabilities at the cost of NumSims×horizon memory.
	KeepPaths bool
	// Seed makes the simulation reproducible. Zero draws a fresh seed.
	Seed int64
	// NoiseMultiplier scales the noise sigma; values above 1 represent
	// elevated exogenous risk (macro events). Zero or negative means 1.
	NoiseMultiplier float64
}

// Horizon converts a resolution date into a bar-period count.
func (m *Model) Horizon(resolution time.Time) (int, error) {
	if resolution.IsZero() {
		return 0, ErrInvalidHorizon
	}
	n := int(resolution.Sub(m.now()) / m.cfg.BarPeriod)
	if n <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidHorizon, resolution.Format(time.RFC3339))
	}
	return n, nil
}

// Simulate runs NumSims independent trajectories to the resolution date.
//
// Each trajectory samples horizon returns without replacement from a pool in
// which every historical return index appears MaxReuse times. When the
// horizon exceeds that pool's capacity the draw falls back to sampling raw
// indices with full replacement; the fallback changes the variance profile
// of repeated reuse, so it is logged and flagged on the result.
func (m *Model) Simulate(resolution time.Time, opts SimOptions) (*Result, error) {
	horizon, err := m.Horizon(resolution)
	if err != nil {
		return nil, err
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	pool := m.returns
	if m.cfg.Centering {
		pool = make([]float64, len(m.returns))
		for i, r := range m.returns {
			pool[i] = r - m.meanReturn
		}
	}

	noiseMult := opts.NoiseMultiplier
	if noiseMult <= 0 {
		noiseMult = 1
	}
	noiseStd := 0.0
	if m.cfg.NoiseStd > 0 || noiseMult > 1 {
		noiseStd = math.Max(m.cfg.NoiseStd, noiseFloor) * noiseMult
	}

	capacity := len(pool) * m.cfg.MaxReuse
	fallback := horizon > capacity
	var indexPool []int32
	if fallback {
		log.Warn().
			Int("horizon", horizon).
			Int("pool_capacity", capacity).
			Msg("Horizon exceeds bounded reuse pool, sampling with full replacement")
	} else {
		indexPool = make([]int32, 0, capacity)
		for i := 0; i < len(pool); i++ {
			for r := 0; r < m.cfg.MaxReuse; r++ {
				indexPool = append(indexPool, int32(i))
			}
		}
	}

	st := make([]float64, m.cfg.NumSims)
	var paths [][]float64
	if opts.KeepPaths {
		paths = make([][]float64, m.cfg.NumSims)
	}

	for sim := 0; sim < m.cfg.NumSims; sim++ {
		var path []float64
		if opts.KeepPaths {
			path = make([]float64, horizon)
		}

		cum := 0.0
		for t := 0; t < horizon; t++ {
			var r float64
			if fallback {
				r = pool[rng.Intn(len(pool))]
			} else {
				// Partial Fisher-Yates: an exact draw without replacement
				// from the bounded multiset. The pool stays a permutation
				// of the same multiset, so the next trajectory restarts
				// the shuffle from the front.
				j := t + rng.Intn(len(indexPool)-t)
				indexPool[t], indexPool[j] = indexPool[j], indexPool[t]
				r = pool[indexPool[t]]
			}
			if noiseStd > 0 {
				r += rng.NormFloat64() * noiseStd
			}
			cum += r
			if opts.KeepPaths {
				path[t] = m.s0 * math.Exp(cum)
			}
		}

		st[sim] = m.s0 * math.Exp(cum)
		if opts.KeepPaths {
			paths[sim] = path
		}
	}

	return &Result{
		ST:                  st,
		S0:                  m.s0,
		Periods:             horizon,
		Paths:               paths,
		ReplacementFallback: fallback,
	}, nil
}
