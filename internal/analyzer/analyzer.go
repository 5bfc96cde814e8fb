// Package analyzer orchestrates the scheduled learning cycles: weekly deep
// analysis, daily health checks, and close-time surprise detection.
package analyzer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/config"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/memory"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/metrics"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/models"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/repository"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/tracker"
)

// Daily-check thresholds, tighter than the weekly cycle.
const (
	dailyBreakingThreshold = 0.30
	dailyBreakingMinTrades = 10
	criticalWinRate        = 0.25
	dailyHotImprovement    = 0.20
	dailyHotWinRate        = 0.80
)

// Surprise-detection thresholds for closed positions.
const (
	surpriseHighWinRate = 0.70
	surpriseLowWinRate  = 0.30
	surpriseBigWin      = 3.0
)

// regimeLookback is the window for majority-vote regime detection.
const regimeLookback = 7 * 24 * time.Hour

// WeeklySummary reports one weekly analysis run. Error carries any failure
// instead of an error return: a broken weekly run must never take down the
// scheduler.
type WeeklySummary struct {
	Timestamp           time.Time         `json:"timestamp"`
	PatternsAnalyzed    int               `json:"patterns_analyzed"`
	MemoriesInjected    int               `json:"memories_injected"`
	TopPatterns         int               `json:"top_patterns"`
	BreakingPatterns    int               `json:"breaking_patterns"`
	HotPatterns         int               `json:"hot_patterns"`
	RegimeTransition    *RegimeTransition `json:"regime_transition,omitempty"`
	PatternsDeactivated int64             `json:"patterns_deactivated"`
	Summary             string            `json:"summary"`
	Error               string            `json:"error,omitempty"`
}

// RegimeTransition describes a detected shift between market regimes.
type RegimeTransition struct {
	FromRegime       string `json:"from_regime"`
	ToRegime         string `json:"to_regime"`
	PatternsAtRisk   int    `json:"patterns_at_risk"`
	PatternsEmerging int    `json:"patterns_emerging"`
}

// Alert is one daily-check finding.
type Alert struct {
	Type      string  `json:"type"`
	PatternID string  `json:"pattern_id"`
	WinRate   float64 `json:"win_rate"`
	Message   string  `json:"message"`
}

// DailySummary reports one daily check run.
type DailySummary struct {
	Timestamp    time.Time `json:"timestamp"`
	Alerts       []Alert   `json:"alerts"`
	ActionsTaken []string  `json:"actions_taken"`
	Error        string    `json:"error,omitempty"`
}

// PositionAnalysis reports surprise detection for one closed position.
type PositionAnalysis struct {
	PatternID        string  `json:"pattern_id"`
	PnlPercent       float64 `json:"pnl_percent"`
	LessonsGenerated bool    `json:"lessons_generated"`
	LessonType       string  `json:"lesson_type,omitempty"`
}

// Analyzer runs the learning cycles over the pattern store.
type Analyzer struct {
	repos     *repository.Repositories
	tracker   *tracker.Tracker
	injector  *memory.Injector
	cfg       *config.LearningConfig
	staleDays int
	logger    *logrus.Logger

	mu         sync.Mutex
	lastRegime string
}

// NewAnalyzer wires the analysis cycles over the given collaborators.
func NewAnalyzer(repos *repository.Repositories, trk *tracker.Tracker, injector *memory.Injector, learning *config.LearningConfig, staleDays int, logger *logrus.Logger) *Analyzer {
	if staleDays <= 0 {
		staleDays = 30
	}
	return &Analyzer{
		repos:     repos,
		tracker:   trk,
		injector:  injector,
		cfg:       learning,
		staleDays: staleDays,
		logger:    logger,
	}
}

// RunWeeklyAnalysis executes the full weekly cycle: gather top, breaking and
// hot patterns, inject prioritized lessons, detect regime transitions, and
// retire stale patterns. Always returns a summary; failures land in the
// Error field.
func (a *Analyzer) RunWeeklyAnalysis(ctx context.Context) *WeeklySummary {
	a.logger.Info("Starting weekly pattern analysis")
	summary := &WeeklySummary{Timestamp: time.Now().UTC()}

	top, err := a.repos.Patterns.TopPatterns(ctx, a.cfg.TopLimit, a.cfg.MinTrades)
	if err != nil {
		summary.Error = fmt.Sprintf("failed to load top patterns: %v", err)
		a.logger.WithError(err).Error("Weekly analysis failed")
		return summary
	}
	summary.TopPatterns = len(top)

	breaking, err := a.repos.Patterns.BreakingPatterns(ctx, a.cfg.BreakingThreshold, a.cfg.MinTrades)
	if err != nil {
		summary.Error = fmt.Sprintf("failed to load breaking patterns: %v", err)
		a.logger.WithError(err).Error("Weekly analysis failed")
		return summary
	}
	summary.BreakingPatterns = len(breaking)

	hot, err := a.repos.Patterns.HotPatterns(ctx, a.cfg.HotImprovement)
	if err != nil {
		summary.Error = fmt.Sprintf("failed to load hot patterns: %v", err)
		a.logger.WithError(err).Error("Weekly analysis failed")
		return summary
	}
	summary.HotPatterns = len(hot)

	toLearn := prioritize(top, breaking, hot)
	summary.PatternsAnalyzed = len(toLearn)

	if len(toLearn) > 0 {
		injected, err := a.injector.InjectPatternBatch(ctx, toLearn, models.LessonScheduled)
		if err != nil {
			a.logger.WithError(err).Warn("Weekly lesson injection incomplete")
		}
		summary.MemoriesInjected = injected
	}

	if transition, err := a.detectRegimeTransition(ctx); err != nil {
		a.logger.WithError(err).Warn("Regime transition check failed")
	} else if transition != nil {
		summary.RegimeTransition = transition
	}

	deactivated, err := a.repos.Patterns.DeactivateStale(ctx, a.staleDays)
	if err != nil {
		a.logger.WithError(err).Warn("Stale pattern cleanup failed")
	} else {
		summary.PatternsDeactivated = deactivated
		metrics.PatternsDeactivated.Set(float64(deactivated))
	}

	if stats, err := a.repos.Patterns.SummaryStats(ctx); err == nil {
		metrics.ActivePatterns.Set(float64(stats.TotalPatterns))
	}

	summary.Summary = describeFindings(top, breaking, hot)

	a.logger.WithFields(logrus.Fields{
		"patterns_analyzed":    summary.PatternsAnalyzed,
		"memories_injected":    summary.MemoriesInjected,
		"patterns_deactivated": summary.PatternsDeactivated,
	}).Info("Weekly analysis complete")

	return summary
}

// RunDailyCheck scans for critical breakdowns and sudden hot streaks.
// Critical breakdowns trigger an immediate memory injection; hot streaks
// only raise alerts for the next weekly cycle.
func (a *Analyzer) RunDailyCheck(ctx context.Context) *DailySummary {
	a.logger.Debug("Running daily pattern check")
	summary := &DailySummary{Timestamp: time.Now().UTC()}

	critical, err := a.repos.Patterns.BreakingPatterns(ctx, dailyBreakingThreshold, dailyBreakingMinTrades)
	if err != nil {
		summary.Error = fmt.Sprintf("failed to load breaking patterns: %v", err)
		a.logger.WithError(err).Error("Daily check failed")
		return summary
	}

	for _, p := range critical {
		if p.RecentWinRate >= criticalWinRate {
			continue
		}
		summary.Alerts = append(summary.Alerts, Alert{
			Type:      "critical_breakdown",
			PatternID: p.PatternID,
			WinRate:   p.RecentWinRate,
			Message:   fmt.Sprintf("Pattern %s critically underperforming", p.PatternID),
		})
		metrics.PatternAlertsTotal.WithLabelValues("critical_breakdown").Inc()

		if _, err := a.injector.InjectPatternBatch(ctx, []*models.Pattern{p}, models.LessonCriticalAlert); err != nil {
			a.logger.WithError(err).WithField("pattern_id", p.PatternID).Warn("Critical alert injection failed")
			continue
		}
		summary.ActionsTaken = append(summary.ActionsTaken, fmt.Sprintf("Injected warning for %s", p.PatternID))
	}

	hot, err := a.repos.Patterns.HotPatterns(ctx, dailyHotImprovement)
	if err != nil {
		a.logger.WithError(err).Warn("Hot pattern check failed")
		return summary
	}
	for _, p := range hot {
		if p.RecentWinRate <= dailyHotWinRate {
			continue
		}
		summary.Alerts = append(summary.Alerts, Alert{
			Type:      "hot_pattern",
			PatternID: p.PatternID,
			WinRate:   p.RecentWinRate,
			Message:   fmt.Sprintf("Pattern %s showing exceptional performance", p.PatternID),
		})
		metrics.PatternAlertsTotal.WithLabelValues("hot").Inc()
	}

	return summary
}

// AnalyzeClosedPosition checks a closed trade against its pattern's
// expectations and injects immediate feedback when the outcome surprises:
// a trusted pattern losing, or a distrusted pattern winning big.
func (a *Analyzer) AnalyzeClosedPosition(ctx context.Context, trade *models.PatternTrade) (*PositionAnalysis, error) {
	if trade.PatternID == "" {
		return nil, fmt.Errorf("closed position %s has no pattern id", trade.Symbol)
	}

	analysis := &PositionAnalysis{
		PatternID:  trade.PatternID,
		PnlPercent: trade.RealizedPnlPercent(),
	}

	stats, err := a.repos.Patterns.GetStats(ctx, trade.PatternID)
	if err != nil {
		return nil, err
	}

	won := analysis.PnlPercent > 0
	switch {
	case stats.WinRate > surpriseHighWinRate && !won:
		a.logger.WithField("pattern_id", trade.PatternID).Warn("High confidence pattern failed unexpectedly")
		if _, err := a.injector.InjectSinglePatternOutcome(ctx, trade.PatternID, trade); err != nil {
			return nil, err
		}
		analysis.LessonsGenerated = true
		analysis.LessonType = "unexpected_failure"
	case stats.WinRate < surpriseLowWinRate && won && analysis.PnlPercent > surpriseBigWin:
		a.logger.WithField("pattern_id", trade.PatternID).Info("Low confidence pattern succeeded unexpectedly")
		if _, err := a.injector.InjectSinglePatternOutcome(ctx, trade.PatternID, trade); err != nil {
			return nil, err
		}
		analysis.LessonsGenerated = true
		analysis.LessonType = "unexpected_success"
	}

	return analysis, nil
}

// PatternRecommendations resolves cached pattern context for each candidate
// symbol. Candidates without a pattern id get a no-data placeholder.
func (a *Analyzer) PatternRecommendations(ctx context.Context, candidates map[string]string) (map[string]*tracker.PatternContext, error) {
	recommendations := make(map[string]*tracker.PatternContext, len(candidates))
	for symbol, patternID := range candidates {
		if patternID == "" {
			recommendations[symbol] = &tracker.PatternContext{
				Exists:         false,
				Recommendation: "No pattern classification available",
			}
			continue
		}
		context, err := a.tracker.GetPatternContext(ctx, patternID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve context for %s: %w", symbol, err)
		}
		recommendations[symbol] = context
	}
	return recommendations, nil
}

// detectRegimeTransition compares the majority regime over the lookback
// window against the last observation. The first observation only seeds
// state; a transition needs two differing observations.
func (a *Analyzer) detectRegimeTransition(ctx context.Context) (*RegimeTransition, error) {
	current, err := a.repos.Trades.DominantRegimeSince(ctx, time.Now().Add(-regimeLookback))
	if err != nil {
		return nil, err
	}
	if current == "" {
		return nil, nil
	}

	a.mu.Lock()
	previous := a.lastRegime
	a.lastRegime = current
	a.mu.Unlock()

	if previous == "" || previous == current {
		return nil, nil
	}

	a.logger.WithFields(logrus.Fields{
		"from_regime": previous,
		"to_regime":   current,
	}).Info("Regime transition detected")

	atRisk, err := a.strongPatternIDs(ctx, previous)
	if err != nil {
		return nil, err
	}
	emerging, err := a.strongPatternIDs(ctx, current)
	if err != nil {
		return nil, err
	}

	if err := a.injector.InjectRegimeTransitionLessons(ctx, previous, current, atRisk, emerging); err != nil {
		a.logger.WithError(err).Warn("Regime transition injection failed")
	}

	return &RegimeTransition{
		FromRegime:       previous,
		ToRegime:         current,
		PatternsAtRisk:   len(atRisk),
		PatternsEmerging: len(emerging),
	}, nil
}

// strongPatternIDs returns up to five pattern ids with win rate above 0.60
// in the given regime.
func (a *Analyzer) strongPatternIDs(ctx context.Context, regime string) ([]string, error) {
	patterns, err := a.repos.Patterns.RegimePatterns(ctx, regime)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, p := range patterns {
		if p.WinRate > 0.60 {
			ids = append(ids, p.PatternID)
			if len(ids) == 5 {
				break
			}
		}
	}
	return ids, nil
}

// prioritize merges the three findings lists: breaking first, hot second,
// top (capped at five) last, deduplicated by pattern id.
func prioritize(top, breaking, hot []*models.Pattern) []*models.Pattern {
	seen := make(map[string]bool)
	var out []*models.Pattern

	add := func(patterns []*models.Pattern, limit int) {
		for i, p := range patterns {
			if limit > 0 && i >= limit {
				return
			}
			if seen[p.PatternID] {
				continue
			}
			seen[p.PatternID] = true
			out = append(out, p)
		}
	}

	add(breaking, 0)
	add(hot, 0)
	add(top, 5)
	return out
}

// describeFindings renders a one-line human summary of the weekly findings.
func describeFindings(top, breaking, hot []*models.Pattern) string {
	var parts []string
	if len(top) > 0 {
		parts = append(parts, fmt.Sprintf("Best pattern: %s with %.1f%% win rate", top[0].PatternID, top[0].WinRate*100))
	}
	if len(breaking) > 0 {
		parts = append(parts, fmt.Sprintf("Worst breakdown: %s dropped to %.1f%%", breaking[0].PatternID, breaking[0].RecentWinRate*100))
	}
	if len(hot) > 0 {
		parts = append(parts, fmt.Sprintf("Hottest pattern: %s improved by %.1f%%", hot[0].PatternID, hot[0].MomentumScore*100))
	}
	if len(parts) == 0 {
		return "No significant patterns found"
	}
	return strings.Join(parts, ". ")
}
