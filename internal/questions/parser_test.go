package questions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBitcoinQuestion(t *testing.T) {
	p := New()

	target, ok := p.Parse("Will Bitcoin reach $150,000 by March 2025?")
	require.True(t, ok)
	assert.Equal(t, "BTC", target.Asset)
	assert.Equal(t, 150000.0, target.Price)
	assert.Equal(t, Above, target.Direction)
}

func TestParseDipIsBelow(t *testing.T) {
	p := New()

	target, ok := p.Parse("Will Bitcoin dip to $50,000?")
	require.True(t, ok)
	assert.Equal(t, "BTC", target.Asset)
	assert.Equal(t, 50000.0, target.Price)
	assert.Equal(t, Below, target.Direction)
}

func TestDirectionKeywords(t *testing.T) {
	p := New()

	for _, q := range []string{
		"Will Ethereum fall to $2,000?",
		"Will Ethereum drop below $2,000?",
	} {
		target, ok := p.Parse(q)
		require.True(t, ok, q)
		assert.Equal(t, Below, target.Direction, q)
	}

	target, ok := p.Parse("Will Ethereum hit $8,000 this year?")
	require.True(t, ok)
	assert.Equal(t, Above, target.Direction)
}

func TestParseUntrackedQuestion(t *testing.T) {
	p := New()

	_, ok := p.Parse("Will Trump win the 2024 election?")
	assert.False(t, ok)

	_, ok = p.Parse("Will it rain in London tomorrow?")
	assert.False(t, ok)
}

func TestParseTradfiQuestions(t *testing.T) {
	p := New()

	target, ok := p.Parse("Will Gold close at $2,500 at the end of 2025?")
	require.True(t, ok)
	assert.Equal(t, "GOLD", target.Asset)
	assert.Equal(t, 2500.0, target.Price)

	target, ok = p.Parse("Will the S&P 500 reach 6,500 this year?")
	require.True(t, ok)
	assert.Equal(t, "SPX", target.Asset)
	assert.Equal(t, 6500.0, target.Price)
}

func TestPrecedenceOrderIsStable(t *testing.T) {
	p := New()

	assert.Equal(t, []string{"BTC", "ETH", "SOL", "SPX", "NDX", "GOLD", "OIL"}, p.Assets())

	// A question naming two tracked assets resolves to the earlier-ranked
	// one. That ambiguity resolution is part of the contract.
	target, ok := p.Parse("Will Bitcoin reach $100,000 before Ethereum hits $10,000?")
	require.True(t, ok)
	assert.Equal(t, "BTC", target.Asset)
	assert.Equal(t, 100000.0, target.Price)
}

func TestParseWithoutDollarSign(t *testing.T) {
	p := New()

	target, ok := p.Parse("Will Bitcoin reach 120,000 this cycle?")
	require.True(t, ok)
	assert.Equal(t, "BTC", target.Asset)
	assert.Equal(t, 120000.0, target.Price)
}
