// Package bot pushes high-confidence opportunities to Telegram.
package bot

import (
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/0xfreki/edgescan/internal/edge"
)

// sender is the slice of the Telegram API the alerter needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Alerter sends one message per market per scan cycle for HIGH-confidence
// edges. A nil *Alerter is a no-op, so callers never branch on whether
// Telegram is configured.
type Alerter struct {
	api    sender
	chatID int64

	mu      sync.Mutex
	alerted map[string]bool
}

// New connects to Telegram. An empty token or zero chat ID disables alerting
// by returning (nil, nil).
func New(token string, chatID int64) (*Alerter, error) {
	if token == "" || chatID == 0 {
		log.Info().Msg("Telegram alerts disabled")
		return nil, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("bot: connect telegram: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("Telegram bot connected")
	return &Alerter{api: api, chatID: chatID, alerted: make(map[string]bool)}, nil
}

// Alert sends messages for the HIGH-confidence entries of one scan. Markets
// already alerted since the last Reset are skipped.
func (a *Alerter) Alert(opps []edge.Opportunity) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, opp := range opps {
		if opp.Confidence != edge.High || a.alerted[opp.MarketID] {
			continue
		}
		msg := tgbotapi.NewMessage(a.chatID, format(opp))
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := a.api.Send(msg); err != nil {
			log.Warn().Err(err).Str("market", opp.MarketID).Msg("Telegram send failed")
			continue
		}
		a.alerted[opp.MarketID] = true
	}
}

// Reset clears the per-cycle dedup set. The scanner calls it once per scan so
// a persistent edge re-alerts each cycle, not each message.
func (a *Alerter) Reset() {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.alerted = make(map[string]bool)
	a.mu.Unlock()
}

func format(opp edge.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎯 *%s*\n\n", opp.Question)
	fmt.Fprintf(&b, "Recommendation: *%s*\n", opp.Recommend)
	fmt.Fprintf(&b, "Model probability: %.1f%% (band %.1f–%.1f%%)\n",
		opp.Probability*100, opp.BandLow*100, opp.BandHigh*100)
	fmt.Fprintf(&b, "Market YES price: %s\n", opp.YesPrice.StringFixed(2))
	fmt.Fprintf(&b, "Edge: %+.1f%%\n", opp.Edge*100)
	fmt.Fprintf(&b, "%s target $%.0f, now $%.2f\n", opp.Asset, opp.TargetPrice, opp.CurrentPrice)
	fmt.Fprintf(&b, "Resolves %s", opp.Resolution.Format("2006-01-02"))
	if opp.Sentiment != nil {
		fmt.Fprintf(&b, "\nSentiment: %s (%d)", opp.Sentiment.Label, opp.Sentiment.Value)
	}
	return b.String()
}
