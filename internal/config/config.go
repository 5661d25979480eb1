package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the scanner service.
type Config struct {
	// Polymarket API
	PolymarketAPIURL string

	// Data providers
	FinnhubKey      string
	AlphaVantageKey string

	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Database
	DatabaseURL  string
	DatabasePath string

	// HTTP
	ListenAddr string

	// Simulation
	NumSims     int
	SeriesTTL   time.Duration
	HistoryBars int

	// Scan loop
	ScanInterval    time.Duration
	ScanLimit       int
	ScanConcurrency int

	// Mode
	Debug bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		PolymarketAPIURL: getEnv("POLYMARKET_API_URL", "https://gamma-api.polymarket.com"),

		FinnhubKey:      os.Getenv("FINNHUB_KEY"),
		AlphaVantageKey: os.Getenv("ALPHA_VANTAGE_KEY"),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabasePath: getEnv("DATABASE_PATH", "data/edgescan.db"),

		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		NumSims:     getEnvInt("NUM_SIMS", 10000),
		SeriesTTL:   getEnvDuration("SERIES_TTL", time.Hour),
		HistoryBars: getEnvInt("HISTORY_BARS", 720),

		ScanInterval:    getEnvDuration("SCAN_INTERVAL", 5*time.Minute),
		ScanLimit:       getEnvInt("SCAN_LIMIT", 20),
		ScanConcurrency: getEnvInt("SCAN_CONCURRENCY", 4),

		Debug: getEnvBool("DEBUG", false),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	return cfg, nil
}

// DSN returns the database connection string: DATABASE_URL when set, else
// the SQLite path.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DatabasePath
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
