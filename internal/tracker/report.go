package tracker

import (
	"context"
	"fmt"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/models"
)

// PatternReport is a point-in-time health snapshot of the pattern population,
// built for dashboards and the CLI.
type PatternReport struct {
	Summary          *models.PatternSummary `json:"summary"`
	TopPatterns      []*models.Pattern      `json:"top_patterns"`
	BreakingPatterns []*models.Pattern      `json:"breaking_patterns"`
	HotPatterns      []*models.Pattern      `json:"hot_patterns"`
	// BestByRegime maps the current regime to its highest-expectancy pattern,
	// empty when no regime was supplied or no patterns qualify.
	BestByRegime map[string]*models.Pattern `json:"best_by_regime,omitempty"`
}

// BuildReport assembles the full report. Regime is optional; when set the
// report includes the best pattern for that regime.
func (t *Tracker) BuildReport(ctx context.Context, regime string) (*PatternReport, error) {
	summary, err := t.patterns.SummaryStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build pattern report: %w", err)
	}

	top, err := t.patterns.TopPatterns(ctx, 10, 20)
	if err != nil {
		return nil, err
	}
	breaking, err := t.patterns.BreakingPatterns(ctx, 0.40, 20)
	if err != nil {
		return nil, err
	}
	hot, err := t.patterns.HotPatterns(ctx, 0.10)
	if err != nil {
		return nil, err
	}

	report := &PatternReport{
		Summary:          summary,
		TopPatterns:      top,
		BreakingPatterns: breaking,
		HotPatterns:      hot,
	}

	if regime != "" {
		regimePatterns, err := t.patterns.RegimePatterns(ctx, regime)
		if err != nil {
			return nil, err
		}
		if len(regimePatterns) > 0 {
			report.BestByRegime = map[string]*models.Pattern{regime: regimePatterns[0]}
		}
	}

	return report, nil
}
