package classifier

import (
	"context"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/models"
)

// StrategyBreakdown aggregates pattern counts and averages per strategy type.
type StrategyBreakdown struct {
	Count         int     `json:"count"`
	AvgWinRate    float64 `json:"avg_win_rate"`
	AvgExpectancy float64 `json:"avg_expectancy"`
}

// Distribution summarises the active pattern population.
type Distribution struct {
	TotalPatterns int                          `json:"total_patterns"`
	ByStrategy    map[string]StrategyBreakdown `json:"by_strategy"`
	Winners       int                          `json:"winners"`
	Losers        int                          `json:"losers"`
	Neutral       int                          `json:"neutral"`
}

// Distribution reports how patterns are spread across strategies and
// performance buckets, optionally filtered to one regime.
func (c *Classifier) Distribution(ctx context.Context, regime string) (*Distribution, error) {
	patterns, err := c.fetchForDistribution(ctx, regime)
	if err != nil {
		return nil, err
	}

	dist := &Distribution{
		TotalPatterns: len(patterns),
		ByStrategy:    make(map[string]StrategyBreakdown),
	}

	sums := make(map[string][2]float64)
	for _, p := range patterns {
		b := dist.ByStrategy[p.StrategyType]
		b.Count++
		dist.ByStrategy[p.StrategyType] = b

		s := sums[p.StrategyType]
		s[0] += p.WinRate
		s[1] += p.Expectancy
		sums[p.StrategyType] = s

		switch {
		case p.WinRate > 0.55:
			dist.Winners++
		case p.WinRate < 0.45:
			dist.Losers++
		default:
			dist.Neutral++
		}
	}

	for strategy, b := range dist.ByStrategy {
		s := sums[strategy]
		b.AvgWinRate = s[0] / float64(b.Count)
		b.AvgExpectancy = s[1] / float64(b.Count)
		dist.ByStrategy[strategy] = b
	}

	return dist, nil
}

func (c *Classifier) fetchForDistribution(ctx context.Context, regime string) ([]*models.Pattern, error) {
	if regime != "" {
		return c.patterns.RegimePatterns(ctx, regime)
	}
	return c.patterns.TopPatterns(ctx, 100, 1)
}
