// Package scanner drives the periodic evaluate-persist-broadcast cycle.
package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/0xfreki/edgescan/internal/edge"
	"github.com/0xfreki/edgescan/internal/polymarket"
)

// MarketSource lists the markets to evaluate.
type MarketSource interface {
	FetchMarkets(ctx context.Context, limit int) ([]polymarket.Market, error)
}

// Evaluator scores a batch of markets.
type Evaluator interface {
	Scan(ctx context.Context, markets []polymarket.Market, limit int) ([]edge.Opportunity, error)
}

// Store persists a cycle's results.
type Store interface {
	SaveOpportunities(opps []edge.Opportunity) error
}

// Broadcaster pushes results to live subscribers.
type Broadcaster interface {
	Broadcast(opps []edge.Opportunity)
}

// Alerter notifies on high-confidence results.
type Alerter interface {
	Alert(opps []edge.Opportunity)
	Reset()
}

// Config tunes the loop.
type Config struct {
	// Interval between scan cycles.
	Interval time.Duration
	// MarketLimit is how many markets to fetch per cycle.
	MarketLimit int
	// ResultLimit caps the opportunities kept per cycle.
	ResultLimit int
	// ScanTimeout bounds one cycle; a timed-out scan keeps its partial results.
	ScanTimeout time.Duration
}

// Service runs the scan loop. Store, broadcaster and alerter are optional;
// nil means that output is skipped.
type Service struct {
	source      MarketSource
	evaluator   Evaluator
	store       Store
	broadcaster Broadcaster
	alerter     Alerter
	cfg         Config
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// New builds the service.
func New(source MarketSource, evaluator Evaluator, store Store, broadcaster Broadcaster, alerter Alerter, cfg Config) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.MarketLimit <= 0 {
		cfg.MarketLimit = 100
	}
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = 20
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = cfg.Interval
	}
	return &Service{
		source:      source,
		evaluator:   evaluator,
		store:       store,
		broadcaster: broadcaster,
		alerter:     alerter,
		cfg:         cfg,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start launches the loop; the first scan runs immediately.
func (s *Service) Start() {
	go s.loop()
	log.Info().Dur("interval", s.cfg.Interval).Msg("Scanner started")
}

// Stop halts the loop and waits for an in-flight cycle to finish.
func (s *Service) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Service) loop() {
	defer close(s.doneCh)

	s.runCycle()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runCycle()
		case <-s.stopCh:
			return
		}
	}
}

// RunCycle executes one fetch-scan-publish cycle. Exported for one-shot use.
func (s *Service) RunCycle() {
	s.runCycle()
}

func (s *Service) runCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ScanTimeout)
	defer cancel()

	start := time.Now()
	markets, err := s.source.FetchMarkets(ctx, s.cfg.MarketLimit)
	if err != nil {
		log.Error().Err(err).Msg("Market fetch failed, skipping cycle")
		return
	}

	opps, err := s.evaluator.Scan(ctx, markets, s.cfg.ResultLimit)
	if err != nil {
		log.Error().Err(err).Msg("Scan failed")
		return
	}

	if s.store != nil {
		if err := s.store.SaveOpportunities(opps); err != nil {
			log.Error().Err(err).Msg("Persisting scan results failed")
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(opps)
	}
	if s.alerter != nil {
		s.alerter.Reset()
		s.alerter.Alert(opps)
	}

	log.Info().
		Int("markets", len(markets)).
		Int("opportunities", len(opps)).
		Dur("took", time.Since(start)).
		Msg("Scan cycle complete")
}
