// Package storage persists scan results and fetched price history.
package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/0xfreki/edgescan/internal/edge"
	"github.com/0xfreki/edgescan/internal/marketdata"
)

// Store wraps the gorm handle.
type Store struct {
	db *gorm.DB
}

// OpportunityRecord is one evaluated market snapshot from a scan cycle.
type OpportunityRecord struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	MarketID       string `gorm:"index"`
	Question       string
	Slug           string
	Asset          string          `gorm:"index"`
	YesPrice       decimal.Decimal `gorm:"type:decimal(10,6)"`
	NoPrice        decimal.Decimal `gorm:"type:decimal(10,6)"`
	Probability    float64
	Edge           float64
	Recommendation string `gorm:"index"`
	Confidence     string
	TargetPrice    float64
	CurrentPrice   float64
	Resolution     time.Time
	NumSims        int
	SentimentValue int
	SentimentLabel string
	CreatedAt      time.Time
}

// BarRecord is one historical bar kept per symbol.
type BarRecord struct {
	ID     uint      `gorm:"primaryKey;autoIncrement"`
	Symbol string    `gorm:"index:idx_symbol_time,unique"`
	Time   time.Time `gorm:"index:idx_symbol_time,unique"`
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// New opens the store. A postgres:// DSN selects PostgreSQL; anything else is
// treated as a SQLite file path.
func New(dsn string) (*Store, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&OpportunityRecord{}, &BarRecord{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// SaveOpportunities records a scan cycle's results.
func (s *Store) SaveOpportunities(opps []edge.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}
	records := make([]OpportunityRecord, len(opps))
	for i, o := range opps {
		records[i] = fromOpportunity(o)
	}
	return s.db.Create(&records).Error
}

// RecentOpportunities returns the latest records, newest first.
func (s *Store) RecentOpportunities(limit int) ([]OpportunityRecord, error) {
	var records []OpportunityRecord
	err := s.db.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

// OpportunitiesByAsset returns the latest records for one asset.
func (s *Store) OpportunitiesByAsset(asset string, limit int) ([]OpportunityRecord, error) {
	var records []OpportunityRecord
	err := s.db.Where("asset = ?", asset).Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

// SaveBars upserts history for a symbol, keyed on (symbol, time).
func (s *Store) SaveBars(symbol string, bars []marketdata.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = BarRecord{
			Symbol: symbol,
			Time:   b.Time,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&records).Error
}

// BarsRange returns the stored bars for a symbol within [from, to],
// chronological.
func (s *Store) BarsRange(symbol string, from, to time.Time) ([]marketdata.Bar, error) {
	var records []BarRecord
	err := s.db.Where("symbol = ? AND time >= ? AND time <= ?", symbol, from, to).
		Order("time ASC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	bars := make([]marketdata.Bar, len(records))
	for i, r := range records {
		bars[i] = marketdata.Bar{
			Time:   r.Time,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return bars, nil
}

func fromOpportunity(o edge.Opportunity) OpportunityRecord {
	r := OpportunityRecord{
		MarketID:       o.MarketID,
		Question:       o.Question,
		Slug:           o.Slug,
		Asset:          o.Asset,
		YesPrice:       o.YesPrice,
		NoPrice:        o.NoPrice,
		Probability:    o.Probability,
		Edge:           o.Edge,
		Recommendation: string(o.Recommend),
		Confidence:     string(o.Confidence),
		TargetPrice:    o.TargetPrice,
		CurrentPrice:   o.CurrentPrice,
		Resolution:     o.Resolution,
		NumSims:        o.NumSims,
	}
	if o.Sentiment != nil {
		r.SentimentValue = o.Sentiment.Value
		r.SentimentLabel = o.Sentiment.Label
	}
	return r
}
