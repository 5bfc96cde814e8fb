// Package tracker bridges trade lifecycle events into pattern statistics.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/metrics"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/models"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/repository"
)

// Alert thresholds on the recent window.
const (
	breakdownMinTrades = 20
	breakdownWinRate   = 0.30
	hotMinTrades       = 10
	hotWinRate         = 0.80
)

// fullFlushInterval bounds cache growth independent of per-entry TTLs.
const fullFlushInterval = time.Hour

// PatternContext is the cached decision-time view of one pattern.
type PatternContext struct {
	PatternID      string    `json:"pattern_id"`
	Exists         bool      `json:"exists"`
	TotalTrades    int       `json:"total_trades"`
	WinRate        float64   `json:"win_rate"`
	RecentWinRate  float64   `json:"recent_win_rate"`
	Expectancy     float64   `json:"expectancy"`
	Confidence     string    `json:"confidence"`
	Momentum       string    `json:"momentum"`
	RecentTrades   []float64 `json:"recent_trades"`
	Recommendation string    `json:"recommendation"`
}

// Tracker records trade entries/exits against patterns and serves cached
// pattern context. Statistics only change on exit; entries are provisional.
type Tracker struct {
	patterns repository.PatternRepository
	trades   repository.PatternTradeRepository
	logger   *logrus.Logger

	contextCache *cache.Cache
	mu           sync.Mutex
	lastFlush    time.Time
	hits         uint64
	misses       uint64
}

// NewTracker creates a tracker with the given context-cache TTL.
func NewTracker(patterns repository.PatternRepository, trades repository.PatternTradeRepository, cacheTTL time.Duration, logger *logrus.Logger) *Tracker {
	return &Tracker{
		patterns:     patterns,
		trades:       trades,
		logger:       logger,
		contextCache: cache.New(cacheTTL, cacheTTL*2),
		lastFlush:    time.Now(),
	}
}

// TrackEntry persists a new trade-history row for the pattern. Pattern
// statistics are untouched until the position closes.
func (t *Tracker) TrackEntry(ctx context.Context, patternID string, entry models.TradeEntry) error {
	trade := &models.PatternTrade{
		PatternID:        patternID,
		BatchID:          entry.BatchID,
		Symbol:           entry.Symbol,
		EntryDate:        entry.EntryDate,
		EntryPrice:       entry.EntryPrice,
		EntryRSI:         entry.Technicals.RSI2,
		EntryVolumeRatio: entry.Technicals.VolumeRatio,
		EntryATR:         entry.Technicals.ATR,
		EntryVIX:         models.Float(entry.Regime.VIX),
		EntryFearGreed:   models.Float(entry.Regime.FearGreedValue),
		RegimeAtEntry:    entry.Regime.Regime,
		Decision:         entry.Decision,
		Conviction:       entry.Conviction,
		PositionSizePct:  entry.PositionSizePct,
	}

	if err := t.trades.RecordEntry(ctx, trade); err != nil {
		return fmt.Errorf("failed to track entry for pattern %s: %w", patternID, err)
	}

	t.logger.WithFields(logrus.Fields{
		"pattern_id": patternID,
		"symbol":     entry.Symbol,
		"batch_id":   entry.BatchID,
	}).Info("Tracking pattern trade entry")

	t.invalidate(patternID)
	return nil
}

// TrackExit finalizes the trade-history row and folds the result into the
// pattern statistics. Returns the refreshed pattern so close-time consumers
// (injector, analyzer) avoid a second read. Callers must deliver each close
// at most once; replays double-count.
func (t *Tracker) TrackExit(ctx context.Context, patternID string, exit models.TradeExit) (*models.Pattern, error) {
	if err := t.trades.FinalizeExit(ctx, exit); err != nil {
		return nil, err
	}

	pattern, err := t.patterns.UpdateOnTradeClose(ctx, patternID, exit.Result(), exit.ExitDate)
	if err != nil {
		return nil, err
	}

	outcome := "loss"
	if exit.PnlPercent > 0 {
		outcome = "win"
	}
	metrics.TradesClosedTotal.WithLabelValues(outcome).Inc()

	t.logger.WithFields(logrus.Fields{
		"pattern_id":  patternID,
		"symbol":      exit.Symbol,
		"pnl_percent": exit.PnlPercent,
	}).Info("Pattern trade closed")

	t.invalidate(patternID)
	t.checkAlerts(pattern)

	return pattern, nil
}

// GetPatternContext returns the cached decision-time context, rebuilding it
// when stale. A pattern without statistics yields Exists=false with a
// neutral recommendation, never an error.
func (t *Tracker) GetPatternContext(ctx context.Context, patternID string) (*PatternContext, error) {
	t.maybeFlush()

	if cached, found := t.contextCache.Get(patternID); found {
		t.recordLookup(true)
		return cached.(*PatternContext), nil
	}
	t.recordLookup(false)

	stats, err := t.patterns.GetStats(ctx, patternID)
	if err != nil {
		if err == models.ErrNotFound {
			return &PatternContext{
				PatternID:      patternID,
				Exists:         false,
				Recommendation: "No historical data for this pattern",
			}, nil
		}
		return nil, err
	}
	if stats.TotalTrades == 0 {
		return &PatternContext{
			PatternID:      patternID,
			Exists:         false,
			Recommendation: "No historical data for this pattern",
		}, nil
	}

	pc := &PatternContext{
		PatternID:      patternID,
		Exists:         true,
		TotalTrades:    stats.TotalTrades,
		WinRate:        stats.WinRate,
		RecentWinRate:  stats.RecentWinRate,
		Expectancy:     stats.Expectancy,
		Confidence:     stats.ConfidenceLevel,
		Momentum:       stats.DescribeMomentum(),
		RecentTrades:   stats.LastN(5),
		Recommendation: generateRecommendation(stats),
	}

	t.contextCache.SetDefault(patternID, pc)
	return pc, nil
}

// generateRecommendation applies the decision-time rules in precedence
// order; the first matching rule wins.
func generateRecommendation(stats *models.Pattern) string {
	switch {
	case stats.ConfidenceLevel == models.ConfidenceLow:
		return fmt.Sprintf("Low confidence - only %d trades. Use standard position sizing.", stats.TotalTrades)
	case stats.RecentWinRate > 0.70 && stats.MomentumScore > 0:
		return fmt.Sprintf("HOT pattern - %.0f%% recent win rate. Consider larger position.", stats.RecentWinRate*100)
	case stats.RecentWinRate < 0.35:
		return fmt.Sprintf("COLD pattern - only %.0f%% recent wins. Reduce size or skip.", stats.RecentWinRate*100)
	case stats.Expectancy > 2.0:
		return fmt.Sprintf("Profitable pattern - %.2f%% expected value. Proceed with confidence.", stats.Expectancy)
	case stats.Expectancy < -1.0:
		return fmt.Sprintf("Losing pattern - %.2f%% expected loss. Consider avoiding.", stats.Expectancy)
	default:
		return fmt.Sprintf("Neutral pattern - %.0f%% win rate. Use standard approach.", stats.WinRate*100)
	}
}

// checkAlerts raises breakdown/hot alerts after a close.
func (t *Tracker) checkAlerts(pattern *models.Pattern) {
	if pattern.TotalTrades >= breakdownMinTrades && pattern.RecentWinRate < breakdownWinRate {
		metrics.PatternAlertsTotal.WithLabelValues("breakdown").Inc()
		t.logger.WithFields(logrus.Fields{
			"pattern_id":      pattern.PatternID,
			"recent_win_rate": pattern.RecentWinRate,
		}).Warn("PATTERN BREAKDOWN: recent win rate collapsed")
		return
	}

	if pattern.TotalTrades >= hotMinTrades && pattern.RecentWinRate > hotWinRate {
		metrics.PatternAlertsTotal.WithLabelValues("hot").Inc()
		t.logger.WithFields(logrus.Fields{
			"pattern_id":      pattern.PatternID,
			"recent_win_rate": pattern.RecentWinRate,
		}).Info("HOT PATTERN: exceptional recent wins")
	}
}

func (t *Tracker) invalidate(patternID string) {
	t.contextCache.Delete(patternID)
}

// maybeFlush clears the whole cache hourly regardless of per-entry TTLs.
func (t *Tracker) maybeFlush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if time.Since(t.lastFlush) > fullFlushInterval {
		t.contextCache.Flush()
		t.lastFlush = time.Now()
	}
}

func (t *Tracker) recordLookup(hit bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if hit {
		t.hits++
	} else {
		t.misses++
	}
	if total := t.hits + t.misses; total > 0 {
		metrics.ContextCacheHitRatio.Set(float64(t.hits) / float64(total))
	}
}
