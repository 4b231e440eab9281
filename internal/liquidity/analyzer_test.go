package liquidity

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alephtrade/booksim/internal/domain"
)

// stubSource returns a fixed book, standing in for *pricing.Provider.
type stubSource struct {
	b domain.OrderBook
}

func (s *stubSource) Book() domain.OrderBook { return s.b.Clone() }

func (s *stubSource) Spread() domain.SpreadMetrics {
	if len(s.b.Bids) == 0 || len(s.b.Asks) == 0 {
		return domain.SpreadMetrics{}
	}
	mid := (s.b.Bids[0].Price + s.b.Asks[0].Price) / 2
	dollars := s.b.Asks[0].Price - s.b.Bids[0].Price
	pct := dollars / mid * 100
	return domain.SpreadMetrics{Dollars: dollars, Percent: pct, BasisPoints: pct * 100}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// layeredBook puts one size unit at roughly 5, 30, and 80 bps from a mid of
// 10000 on each side, so the three bands capture strictly growing depth.
func layeredBook() *stubSource {
	return &stubSource{b: domain.OrderBook{
		InstrumentID: "TEST",
		Bids: []domain.PriceLevel{
			{Price: 9995, Size: 1}, // 5 bps
			{Price: 9970, Size: 1}, // 30 bps
			{Price: 9920, Size: 1}, // 80 bps
		},
		Asks: []domain.PriceLevel{
			{Price: 10005, Size: 1},
			{Price: 10030, Size: 1},
			{Price: 10080, Size: 1},
		},
	}}
}

func TestConditionBandsGrowWithWidth(t *testing.T) {
	a := NewAnalyzer(layeredBook(), DefaultConfig(), testLogger())

	cond := a.Condition()
	assert.Equal(t, 2.0, cond.Near, "one level per side inside 10 bps")
	assert.Equal(t, 4.0, cond.Medium)
	assert.Equal(t, 6.0, cond.Far)

	// Bands are cumulative, so they never shrink as they widen.
	assert.LessOrEqual(t, cond.Near, cond.Medium)
	assert.LessOrEqual(t, cond.Medium, cond.Far)

	// Display aliases carry the same values.
	assert.Equal(t, cond.Near, cond.Within10Bps)
	assert.Equal(t, cond.Medium, cond.Within50Bps)
	assert.Equal(t, cond.Far, cond.Within100Bps)
}

func TestSideCondition(t *testing.T) {
	src := layeredBook()
	src.b.Bids[0].Size = 3
	a := NewAnalyzer(src, DefaultConfig(), testLogger())

	bid := a.SideCondition(domain.SideBuy)
	ask := a.SideCondition(domain.SideSell)
	assert.Equal(t, 3.0, bid.Near)
	assert.Equal(t, 1.0, ask.Near)
}

func TestImbalance(t *testing.T) {
	src := layeredBook()
	src.b.Bids[0].Size = 3 // near band: 3 bid vs 1 ask
	a := NewAnalyzer(src, DefaultConfig(), testLogger())

	imb := a.Imbalance()
	assert.InDelta(t, 50.0, imb, 1e-9, "(3-1)/(3+1) × 100")

	src.b.Bids[0].Size = 1
	src.b.Asks[0].Size = 3
	assert.InDelta(t, -50.0, a.Imbalance(), 1e-9)
}

func TestImbalanceBounds(t *testing.T) {
	for _, skew := range []float64{0.001, 0.5, 1, 10, 1000} {
		src := layeredBook()
		src.b.Bids[0].Size = skew
		a := NewAnalyzer(src, DefaultConfig(), testLogger())

		imb := a.Imbalance()
		assert.GreaterOrEqual(t, imb, -100.0)
		assert.LessOrEqual(t, imb, 100.0)
	}
}

func TestQualityScoreComponents(t *testing.T) {
	cfg := Config{
		MaxHealthySpreadBps: 20,
		MinHealthyDepth:     1,
		ReferenceSize:       2,
		ReferenceLevels:     3,
	}
	a := NewAnalyzer(layeredBook(), cfg, testLogger())

	cond := a.Condition()

	// Spread is 10 bps → spread component 1/(1+1) = 0.5. Near depth 2.0 meets
	// the reference exactly → 1.0. Three levels per side meet the reference →
	// 1.0. Score = 100 × (0.4×0.5 + 0.4×1.0 + 0.2×1.0) = 80.
	assert.InDelta(t, 10.0, cond.SpreadBps, 1e-9)
	assert.InDelta(t, 80.0, cond.QualityScore, 1e-9)
	assert.InDelta(t, cond.QualityScore, a.MarketQuality(), 1e-9)
}

func TestQualityScoreDegradesWithSpread(t *testing.T) {
	tight := NewAnalyzer(layeredBook(), DefaultConfig(), testLogger())

	wide := layeredBook()
	wide.b.Bids[0].Price = 9950
	wide.b.Asks[0].Price = 10050
	wideA := NewAnalyzer(wide, DefaultConfig(), testLogger())

	assert.Greater(t, tight.Condition().QualityScore, wideA.Condition().QualityScore)
}

func TestIsHealthyThresholds(t *testing.T) {
	src := layeredBook()

	healthy := NewAnalyzer(src, Config{
		MaxHealthySpreadBps: 20,
		MinHealthyDepth:     1,
		ReferenceSize:       10,
		ReferenceLevels:     10,
	}, testLogger())
	assert.True(t, healthy.IsHealthy())

	tightSpread := NewAnalyzer(src, Config{
		MaxHealthySpreadBps: 5, // book's 10 bps spread exceeds this
		MinHealthyDepth:     1,
		ReferenceSize:       10,
		ReferenceLevels:     10,
	}, testLogger())
	assert.False(t, tightSpread.IsHealthy())

	deepDepth := NewAnalyzer(src, Config{
		MaxHealthySpreadBps: 20,
		MinHealthyDepth:     50, // near band holds only 2
		ReferenceSize:       10,
		ReferenceLevels:     10,
	}, testLogger())
	assert.False(t, deepDepth.IsHealthy())
}

func TestDegenerateBook(t *testing.T) {
	src := &stubSource{b: domain.OrderBook{
		Asks: []domain.PriceLevel{{Price: 10005, Size: 1}},
	}}
	a := NewAnalyzer(src, DefaultConfig(), testLogger())

	assert.Equal(t, domain.LiquidityCondition{}, a.Condition())
	assert.Zero(t, a.Imbalance())
	assert.False(t, a.IsHealthy())
}
