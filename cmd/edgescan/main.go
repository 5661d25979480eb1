// Edgescan - Monte Carlo edge detection for Polymarket price markets
//
// Scans binary prediction markets on crypto and tradfi price targets,
// estimates each question's probability by bootstrap simulation of
// historical returns, and flags markets whose quoted YES price diverges
// from the model.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/0xfreki/edgescan/internal/bot"
	"github.com/0xfreki/edgescan/internal/config"
	"github.com/0xfreki/edgescan/internal/edge"
	"github.com/0xfreki/edgescan/internal/macro"
	"github.com/0xfreki/edgescan/internal/marketdata"
	"github.com/0xfreki/edgescan/internal/montecarlo"
	"github.com/0xfreki/edgescan/internal/polymarket"
	"github.com/0xfreki/edgescan/internal/questions"
	"github.com/0xfreki/edgescan/internal/scanner"
	"github.com/0xfreki/edgescan/internal/sentiment"
	"github.com/0xfreki/edgescan/internal/storage"
	"github.com/0xfreki/edgescan/internal/ws"
)

const version = "1.0.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Int("num_sims", cfg.NumSims).
		Dur("scan_interval", cfg.ScanInterval).
		Msg("Edgescan starting...")

	store, err := storage.New(cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Market data: Binance primary with Yahoo fallback for crypto, Yahoo
	// alone for tradfi tickers.
	yahoo := marketdata.NewYahooClient()
	crypto := marketdata.NewFallbackProvider(marketdata.NewBinanceClient(), yahoo, marketdata.DefaultRetryConfig())
	tradfi := marketdata.NewFallbackProvider(yahoo, nil, marketdata.DefaultRetryConfig())

	exec := montecarlo.NewExecutor(0)
	exec.Start()
	defer exec.Close()

	macroClient := macro.NewClient(cfg.FinnhubKey)

	fearGreed := sentiment.NewFearGreedClient()
	sentiments := map[string]sentiment.Provider{
		"BTC": fearGreed,
		"ETH": fearGreed,
		"SOL": fearGreed,
	}
	for _, asset := range []string{"SPX", "NDX", "GOLD", "OIL"} {
		sentiments[asset] = sentiment.NewAlphaVantageClient(cfg.AlphaVantageKey, sentiment.ProxyTicker(asset))
	}

	calculator := edge.New(questions.New(), crypto, tradfi, exec, macroClient, sentiments, edge.Config{
		NumSims:         cfg.NumSims,
		SeriesTTL:       cfg.SeriesTTL,
		Bars:            cfg.HistoryBars,
		Interval:        "1h",
		ScanConcurrency: cfg.ScanConcurrency,
	})
	calculator.SetHistory(store)

	alerter, err := bot.New(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		log.Warn().Err(err).Msg("Telegram unavailable, alerts disabled")
	}

	hub := ws.NewHub()
	gamma := polymarket.NewClient(cfg.PolymarketAPIURL)

	svc := scanner.New(gamma, calculator, store, hub, alerter, scanner.Config{
		Interval:    cfg.ScanInterval,
		MarketLimit: 100,
		ResultLimit: cfg.ScanLimit,
		ScanTimeout: cfg.ScanInterval,
	})
	svc.Start()
	defer svc.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Dashboard endpoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
}
