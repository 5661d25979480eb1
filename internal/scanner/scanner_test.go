package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xfreki/edgescan/internal/edge"
	"github.com/0xfreki/edgescan/internal/polymarket"
)

type fakeSource struct {
	markets []polymarket.Market
	err     error
}

func (f *fakeSource) FetchMarkets(ctx context.Context, limit int) ([]polymarket.Market, error) {
	return f.markets, f.err
}

type fakeEvaluator struct {
	opps []edge.Opportunity
	err  error
}

func (f *fakeEvaluator) Scan(ctx context.Context, markets []polymarket.Market, limit int) ([]edge.Opportunity, error) {
	return f.opps, f.err
}

type recorder struct {
	mu        sync.Mutex
	saved     [][]edge.Opportunity
	broadcast [][]edge.Opportunity
	alerted   [][]edge.Opportunity
	resets    int
	saveErr   error
}

func (r *recorder) SaveOpportunities(opps []edge.Opportunity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, opps)
	return r.saveErr
}

func (r *recorder) Broadcast(opps []edge.Opportunity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast = append(r.broadcast, opps)
}

func (r *recorder) Alert(opps []edge.Opportunity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerted = append(r.alerted, opps)
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
}

func TestRunCyclePublishesEverywhere(t *testing.T) {
	opps := []edge.Opportunity{{MarketID: "m1", Confidence: edge.High}}
	rec := &recorder{}
	s := New(
		&fakeSource{markets: []polymarket.Market{{ID: "m1"}}},
		&fakeEvaluator{opps: opps},
		rec, rec, rec,
		Config{Interval: time.Hour},
	)

	s.RunCycle()

	require.Len(t, rec.saved, 1)
	assert.Equal(t, "m1", rec.saved[0][0].MarketID)
	assert.Len(t, rec.broadcast, 1)
	assert.Len(t, rec.alerted, 1)
	assert.Equal(t, 1, rec.resets)
}

func TestRunCycleSkipsOnFetchError(t *testing.T) {
	rec := &recorder{}
	s := New(
		&fakeSource{err: errors.New("gamma down")},
		&fakeEvaluator{},
		rec, rec, rec,
		Config{Interval: time.Hour},
	)

	s.RunCycle()

	assert.Empty(t, rec.saved)
	assert.Empty(t, rec.broadcast)
}

func TestRunCycleBroadcastsDespiteStoreError(t *testing.T) {
	rec := &recorder{saveErr: errors.New("disk full")}
	s := New(
		&fakeSource{markets: []polymarket.Market{{ID: "m1"}}},
		&fakeEvaluator{opps: []edge.Opportunity{{MarketID: "m1"}}},
		rec, rec, rec,
		Config{Interval: time.Hour},
	)

	s.RunCycle()

	assert.Len(t, rec.broadcast, 1)
}

func TestStartStopRunsFirstCycleImmediately(t *testing.T) {
	rec := &recorder{}
	s := New(
		&fakeSource{markets: []polymarket.Market{{ID: "m1"}}},
		&fakeEvaluator{opps: []edge.Opportunity{{MarketID: "m1"}}},
		rec, rec, rec,
		Config{Interval: time.Hour},
	)

	s.Start()
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.broadcast) == 1
	}, time.Second, 10*time.Millisecond)
	s.Stop()
}

func TestNilOutputsAreSkipped(t *testing.T) {
	s := New(
		&fakeSource{markets: []polymarket.Market{{ID: "m1"}}},
		&fakeEvaluator{opps: []edge.Opportunity{{MarketID: "m1"}}},
		nil, nil, nil,
		Config{Interval: time.Hour},
	)
	s.RunCycle()
}
