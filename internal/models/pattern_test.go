package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPattern() *Pattern {
	return &Pattern{
		PatternID:       "mean_reversion_fear_high_oversold",
		StrategyType:    "mean_reversion",
		MarketRegime:    RegimeFear,
		VolumeProfile:   "high",
		TechnicalSetup:  "oversold",
		ConfidenceLevel: ConfidenceLow,
		IsActive:        true,
	}
}

func TestApplyTradeResultFirstWin(t *testing.T) {
	p := newTestPattern()
	closedAt := time.Now()

	p.ApplyTradeResult(TradeResult{PnlPercent: 2.5, HoldingDays: 3}, closedAt)

	assert.Equal(t, 1, p.TotalTrades)
	assert.Equal(t, 1, p.WinningTrades)
	assert.Equal(t, 0, p.LosingTrades)
	assert.InDelta(t, 1.0, p.WinRate, 1e-9)
	assert.InDelta(t, 2.5, p.AvgWinPercent, 1e-9)
	assert.InDelta(t, 0.0, p.AvgLossPercent, 1e-9)
	assert.InDelta(t, 2.5, p.Expectancy, 1e-9)
	require.NotNil(t, p.LastTradedDate)
	assert.Equal(t, closedAt, *p.LastTradedDate)
}

func TestApplyTradeResultMixedOutcomes(t *testing.T) {
	p := newTestPattern()
	now := time.Now()

	p.ApplyTradeResult(TradeResult{PnlPercent: 4.0}, now)
	p.ApplyTradeResult(TradeResult{PnlPercent: 2.0}, now)
	p.ApplyTradeResult(TradeResult{PnlPercent: -3.0}, now)

	assert.Equal(t, 3, p.TotalTrades)
	assert.Equal(t, 2, p.WinningTrades)
	assert.Equal(t, 1, p.LosingTrades)
	assert.InDelta(t, 2.0/3.0, p.WinRate, 1e-9)
	assert.InDelta(t, 3.0, p.AvgWinPercent, 1e-9)
	// Losses are stored as positive magnitudes.
	assert.InDelta(t, 3.0, p.AvgLossPercent, 1e-9)
	// expectancy = 2/3*3 - 1/3*3 = 1.0
	assert.InDelta(t, 1.0, p.Expectancy, 1e-9)
	assert.InDelta(t, 1.0, p.RecentAvgReturn, 1e-9)
}

func TestApplyTradeResultZeroPnlCountsAsLoss(t *testing.T) {
	p := newTestPattern()

	p.ApplyTradeResult(TradeResult{PnlPercent: 0}, time.Now())

	assert.Equal(t, 0, p.WinningTrades)
	assert.Equal(t, 1, p.LosingTrades)
	assert.InDelta(t, 0.0, p.WinRate, 1e-9)
	assert.InDelta(t, 0.0, p.AvgLossPercent, 1e-9)
}

func TestRecentWindowBounded(t *testing.T) {
	p := newTestPattern()
	now := time.Now()

	for i := 0; i < RecentWindowSize+5; i++ {
		p.ApplyTradeResult(TradeResult{PnlPercent: float64(i)}, now)
	}

	require.Len(t, p.RecentTrades, RecentWindowSize)
	// Oldest entries fall off the front; newest survives at the back.
	assert.InDelta(t, 5.0, p.RecentTrades[0], 1e-9)
	assert.InDelta(t, float64(RecentWindowSize+4), p.RecentTrades[RecentWindowSize-1], 1e-9)
	assert.Equal(t, RecentWindowSize+5, p.TotalTrades)
}

func TestMomentumIsRecentMinusHistorical(t *testing.T) {
	p := newTestPattern()
	now := time.Now()

	// 30 losses then 20 wins: historical win rate is 20/50, recent is 20/20.
	for i := 0; i < 30; i++ {
		p.ApplyTradeResult(TradeResult{PnlPercent: -1.0}, now)
	}
	for i := 0; i < 20; i++ {
		p.ApplyTradeResult(TradeResult{PnlPercent: 1.0}, now)
	}

	assert.InDelta(t, 0.4, p.WinRate, 1e-9)
	assert.InDelta(t, 1.0, p.RecentWinRate, 1e-9)
	assert.InDelta(t, 0.6, p.MomentumScore, 1e-9)
	assert.Equal(t, "strongly_improving", p.DescribeMomentum())
}

func TestConfidenceForTrades(t *testing.T) {
	assert.Equal(t, ConfidenceLow, ConfidenceForTrades(0))
	assert.Equal(t, ConfidenceLow, ConfidenceForTrades(19))
	assert.Equal(t, ConfidenceMedium, ConfidenceForTrades(20))
	assert.Equal(t, ConfidenceMedium, ConfidenceForTrades(49))
	assert.Equal(t, ConfidenceHigh, ConfidenceForTrades(50))
}

func TestConfidenceTransitionsDuringUpdates(t *testing.T) {
	p := newTestPattern()
	now := time.Now()

	for i := 0; i < 19; i++ {
		p.ApplyTradeResult(TradeResult{PnlPercent: 1.0}, now)
	}
	assert.Equal(t, ConfidenceLow, p.ConfidenceLevel)

	p.ApplyTradeResult(TradeResult{PnlPercent: 1.0}, now)
	assert.Equal(t, ConfidenceMedium, p.ConfidenceLevel)
}

func TestIsBreakingBoundary(t *testing.T) {
	p := newTestPattern()
	p.TotalTrades = 25
	p.WinRate = 0.55

	p.RecentWinRate = 0.39
	assert.True(t, p.IsBreaking(0.40, 20))

	p.RecentWinRate = 0.41
	assert.False(t, p.IsBreaking(0.40, 20))

	// Never a breakdown without a respectable historical rate.
	p.RecentWinRate = 0.39
	p.WinRate = 0.45
	assert.False(t, p.IsBreaking(0.40, 20))

	// Not enough history.
	p.WinRate = 0.55
	p.TotalTrades = 19
	assert.False(t, p.IsBreaking(0.40, 20))
}

func TestIsHot(t *testing.T) {
	p := newTestPattern()
	p.TotalTrades = 15
	p.WinRate = 0.50
	p.RecentWinRate = 0.65

	assert.True(t, p.IsHot(0.10))
	assert.False(t, p.IsHot(0.20))

	p.TotalTrades = 9
	assert.False(t, p.IsHot(0.10))
}

func TestDescribeMomentum(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.20, "strongly_improving"},
		{0.10, "improving"},
		{0.0, "stable"},
		{-0.10, "declining"},
		{-0.20, "strongly_declining"},
	}
	for _, tc := range cases {
		p := newTestPattern()
		p.MomentumScore = tc.score
		assert.Equal(t, tc.want, p.DescribeMomentum(), "score %v", tc.score)
	}
}

func TestLastN(t *testing.T) {
	p := newTestPattern()
	p.RecentTrades = []float64{1, 2, 3, 4, 5}

	assert.Equal(t, []float64{3, 4, 5}, p.LastN(3))
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, p.LastN(10))
}

func TestPatternIDComposition(t *testing.T) {
	components := PatternComponents{
		StrategyType:   "mean_reversion",
		MarketRegime:   RegimeExtremeFear,
		VolumeProfile:  "explosive",
		TechnicalSetup: "oversold",
	}
	assert.Equal(t, "mean_reversion_extreme_fear_explosive_oversold", components.PatternID())
}
