package models

import (
	"fmt"
	"strings"
	"time"
)

// RecentWindowSize bounds the rolling window of trade returns kept per pattern.
const RecentWindowSize = 20

// SignificantMomentum is the absolute momentum score worth logging about.
const SignificantMomentum = 0.15

// Confidence tiers derived purely from sample size.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// ConfidenceForTrades maps total trade count to a confidence tier.
func ConfidenceForTrades(totalTrades int) string {
	switch {
	case totalTrades >= 50:
		return ConfidenceHigh
	case totalTrades >= 20:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// PatternComponents are the four classification axes that make up a pattern.
type PatternComponents struct {
	StrategyType   string `json:"strategy_type"`
	MarketRegime   string `json:"market_regime"`
	VolumeProfile  string `json:"volume_profile"`
	TechnicalSetup string `json:"technical_setup"`
}

// PatternID joins the components into the canonical identifier.
func (c PatternComponents) PatternID() string {
	return strings.Join([]string{c.StrategyType, c.MarketRegime, c.VolumeProfile, c.TechnicalSetup}, "_")
}

// Pattern is a classification bucket with rolling performance statistics.
type Pattern struct {
	PatternID       string     `db:"pattern_id" json:"pattern_id"`
	StrategyType    string     `db:"strategy_type" json:"strategy_type"`
	MarketRegime    string     `db:"market_regime" json:"market_regime"`
	VolumeProfile   string     `db:"volume_profile" json:"volume_profile"`
	TechnicalSetup  string     `db:"technical_setup" json:"technical_setup"`
	TotalTrades     int        `db:"total_trades" json:"total_trades"`
	WinningTrades   int        `db:"winning_trades" json:"winning_trades"`
	LosingTrades    int        `db:"losing_trades" json:"losing_trades"`
	WinRate         float64    `db:"win_rate" json:"win_rate"`
	AvgWinPercent   float64    `db:"avg_win_percent" json:"avg_win_percent"`
	AvgLossPercent  float64    `db:"avg_loss_percent" json:"avg_loss_percent"`
	Expectancy      float64    `db:"expectancy" json:"expectancy"`
	RecentTrades    []float64  `db:"recent_trades" json:"recent_trades"`
	RecentWinRate   float64    `db:"recent_win_rate" json:"recent_win_rate"`
	RecentAvgReturn float64    `db:"recent_avg_return" json:"recent_avg_return"`
	MomentumScore   float64    `db:"momentum_score" json:"momentum_score"`
	ConfidenceLevel string     `db:"confidence_level" json:"confidence_level"`
	IsActive        bool       `db:"is_active" json:"is_active"`
	FirstSeenDate   time.Time  `db:"first_seen_date" json:"first_seen_date"`
	LastTradedDate  *time.Time `db:"last_traded_date" json:"last_traded_date"`
}

// Components reassembles the classification axes of this pattern.
func (p *Pattern) Components() PatternComponents {
	return PatternComponents{
		StrategyType:   p.StrategyType,
		MarketRegime:   p.MarketRegime,
		VolumeProfile:  p.VolumeProfile,
		TechnicalSetup: p.TechnicalSetup,
	}
}

// ApplyTradeResult folds a closed trade into the rolling statistics.
// The caller is responsible for serialising updates to the same pattern;
// this is a read-modify-write with no compare-and-swap protection.
func (p *Pattern) ApplyTradeResult(result TradeResult, closedAt time.Time) {
	p.TotalTrades++
	if result.PnlPercent > 0 {
		// Weighted-incremental average over the winning bucket only.
		p.AvgWinPercent = (p.AvgWinPercent*float64(p.WinningTrades) + result.PnlPercent) / float64(p.WinningTrades+1)
		p.WinningTrades++
	} else {
		// avg_loss_percent is stored as a positive magnitude.
		loss := -result.PnlPercent
		p.AvgLossPercent = (p.AvgLossPercent*float64(p.LosingTrades) + loss) / float64(p.LosingTrades+1)
		p.LosingTrades++
	}

	p.WinRate = float64(p.WinningTrades) / float64(p.TotalTrades)
	p.Expectancy = p.WinRate*p.AvgWinPercent - (1-p.WinRate)*p.AvgLossPercent

	p.RecentTrades = append(p.RecentTrades, result.PnlPercent)
	if len(p.RecentTrades) > RecentWindowSize {
		p.RecentTrades = p.RecentTrades[len(p.RecentTrades)-RecentWindowSize:]
	}

	recentWins := 0
	recentSum := 0.0
	for _, r := range p.RecentTrades {
		if r > 0 {
			recentWins++
		}
		recentSum += r
	}
	p.RecentWinRate = float64(recentWins) / float64(len(p.RecentTrades))
	p.RecentAvgReturn = recentSum / float64(len(p.RecentTrades))

	p.MomentumScore = p.RecentWinRate - p.WinRate
	p.ConfidenceLevel = ConfidenceForTrades(p.TotalTrades)

	t := closedAt
	p.LastTradedDate = &t
}

// IsBreaking reports whether the recent window has fallen below threshold
// while the pattern's own historical win rate was respectable. This is the
// same predicate the store's breaking-patterns query applies in SQL.
func (p *Pattern) IsBreaking(threshold float64, minTrades int) bool {
	return p.TotalTrades >= minTrades && p.WinRate > 0.50 && p.RecentWinRate < threshold
}

// IsHot reports whether recent performance exceeds the historical win rate
// by at least minImprovement, with a minimum of 10 trades of history.
func (p *Pattern) IsHot(minImprovement float64) bool {
	return p.TotalTrades >= 10 && p.RecentWinRate > p.WinRate+minImprovement
}

// LastN returns up to the last n rolling-window entries.
func (p *Pattern) LastN(n int) []float64 {
	if len(p.RecentTrades) <= n {
		return p.RecentTrades
	}
	return p.RecentTrades[len(p.RecentTrades)-n:]
}

// DescribeMomentum converts the momentum score to a human-readable label.
func (p *Pattern) DescribeMomentum() string {
	switch {
	case p.MomentumScore > 0.15:
		return "strongly_improving"
	case p.MomentumScore > 0.05:
		return "improving"
	case p.MomentumScore < -0.15:
		return "strongly_declining"
	case p.MomentumScore < -0.05:
		return "declining"
	default:
		return "stable"
	}
}

// PatternSummary aggregates counts and averages across all active patterns.
type PatternSummary struct {
	TotalPatterns          int     `db:"total_patterns" json:"total_patterns"`
	TotalTrades            int     `db:"total_trades" json:"total_trades"`
	AvgWinRate             float64 `db:"avg_win_rate" json:"avg_win_rate"`
	AvgExpectancy          float64 `db:"avg_expectancy" json:"avg_expectancy"`
	HighConfidencePatterns int     `db:"high_confidence_patterns" json:"high_confidence_patterns"`
	ImprovingPatterns      int     `db:"improving_patterns" json:"improving_patterns"`
	DecliningPatterns      int     `db:"declining_patterns" json:"declining_patterns"`
}

// String renders a one-line summary for log output.
func (s *PatternSummary) String() string {
	return fmt.Sprintf("%d patterns, %d trades, avg win rate %.1f%%, avg expectancy %.2f%%",
		s.TotalPatterns, s.TotalTrades, s.AvgWinRate*100, s.AvgExpectancy)
}
