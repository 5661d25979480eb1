// Package questions classifies free-text market questions into structured
// price targets.
//
// Classification is a ranked rule table: assets are evaluated in their
// registration order and each asset's patterns in listed order, returning on
// the first match. The precedence is an explicit contract, not an accident
// of iteration: a question mentioning two tracked assets resolves to
// whichever is registered first. Crypto assets rank before tradfi.
package questions

import (
	"regexp"
	"strconv"
	"strings"
)

// Direction is the side of the target the question asks about.
type Direction string

const (
	Above Direction = "above"
	Below Direction = "below"
)

// belowKeywords flip the direction to "below" when present anywhere in the
// question. Everything else (reach, hit, close above, ...) reads as "above".
var belowKeywords = []string{"dip", "fall", "drop"}

// Target is the structured reading of a price question.
type Target struct {
	Asset     string
	Price     float64
	Direction Direction
}

type rule struct {
	asset    string
	patterns []*regexp.Regexp
}

// Parser extracts (asset, target price, direction) from market questions.
type Parser struct {
	rules []rule
}

// New builds the parser with the tracked asset registry. Order matters and
// is part of the contract; see Assets.
func New() *Parser {
	compile := func(exprs ...string) []*regexp.Regexp {
		out := make([]*regexp.Regexp, len(exprs))
		for i, e := range exprs {
			out[i] = regexp.MustCompile(e)
		}
		return out
	}

	return &Parser{rules: []rule{
		{"BTC", compile(
			`bitcoin.*?\$\s*([\d,]+)`,
			`bitcoin.*?reach.*?([\d,]+)`,
			`bitcoin.*?hit.*?([\d,]+)`,
			`btc.*?\$\s*([\d,]+)`,
		)},
		{"ETH", compile(
			`ethereum.*?\$\s*([\d,]+)`,
			`ethereum.*?reach.*?([\d,]+)`,
			`ethereum.*?hit.*?([\d,]+)`,
			`eth.*?\$\s*([\d,]+)`,
		)},
		{"SOL", compile(
			`solana.*?\$\s*([\d,]+)`,
			`solana.*?reach.*?([\d,]+)`,
			`solana.*?hit.*?([\d,]+)`,
		)},
		{"SPX", compile(
			`s&p\s*500.*?\s*([\d,]+)`,
			`spx.*?\s*([\d,]+)`,
			`spy.*?\s*([\d,]+)`,
		)},
		{"NDX", compile(
			`nasdaq.*?\s*([\d,]+)`,
			`ndx.*?\s*([\d,]+)`,
			`qqq.*?\s*([\d,]+)`,
		)},
		{"GOLD", compile(
			`gold.*?\s*([\d,]+)`,
			`xau.*?\s*([\d,]+)`,
		)},
		{"OIL", compile(
			`crude.*?\s*([\d,]+)`,
			`oil.*?\s*([\d,]+)`,
			`wti.*?\s*([\d,]+)`,
			`brent.*?\s*([\d,]+)`,
		)},
	}}
}

// Assets returns the tracked asset codes in precedence order.
func (p *Parser) Assets() []string {
	out := make([]string, len(p.rules))
	for i, r := range p.rules {
		out[i] = r.asset
	}
	return out
}

// Parse classifies a question. The second return is false when no tracked
// asset pattern matches; the question is simply not evaluable by this
// engine, which is a null result rather than an error.
func (p *Parser) Parse(question string) (Target, bool) {
	q := strings.ToLower(question)

	direction := Above
	for _, kw := range belowKeywords {
		if strings.Contains(q, kw) {
			direction = Below
			break
		}
	}

	for _, r := range p.rules {
		for _, pattern := range r.patterns {
			m := pattern.FindStringSubmatch(q)
			if m == nil {
				continue
			}
			priceStr := strings.ReplaceAll(m[1], ",", "")
			price, err := strconv.ParseFloat(priceStr, 64)
			if err != nil {
				continue
			}
			return Target{Asset: r.asset, Price: price, Direction: direction}, true
		}
	}
	return Target{}, false
}
