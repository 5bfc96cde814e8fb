package repository

import (
	"context"
	"time"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/models"
)

// PatternRepository is the single source of truth for pattern definitions and
// rolling statistics. Create is idempotent; UpdateOnTradeClose is a
// read-modify-write and must be serialised per pattern_id by the caller.
type PatternRepository interface {
	// Create inserts the pattern if absent. Existing statistics are never
	// overwritten; a second call with the same id is a no-op.
	Create(ctx context.Context, components models.PatternComponents) error
	// GetStats returns the pattern or models.ErrNotFound.
	GetStats(ctx context.Context, patternID string) (*models.Pattern, error)
	// UpdateOnTradeClose folds a closed trade into the statistics and
	// returns the refreshed pattern. models.ErrPatternUnknown when the
	// pattern was never created.
	UpdateOnTradeClose(ctx context.Context, patternID string, result models.TradeResult, closedAt time.Time) (*models.Pattern, error)
	// TopPatterns ranks active patterns by expectancy descending.
	TopPatterns(ctx context.Context, limit, minTrades int) ([]*models.Pattern, error)
	// BreakingPatterns returns active patterns whose historical win rate was
	// above 0.50 but whose recent-window win rate fell below threshold,
	// worst drop first.
	BreakingPatterns(ctx context.Context, threshold float64, minTrades int) ([]*models.Pattern, error)
	// RegimePatterns returns all active patterns for a regime bucket,
	// ranked by expectancy.
	RegimePatterns(ctx context.Context, regime string) ([]*models.Pattern, error)
	// HotPatterns returns active patterns (>=10 trades) whose recent win
	// rate beats the historical rate by at least minImprovement.
	HotPatterns(ctx context.Context, minImprovement float64) ([]*models.Pattern, error)
	// DeactivateStale flags patterns untraded for daysInactive days and
	// returns the count affected.
	DeactivateStale(ctx context.Context, daysInactive int) (int64, error)
	// SummaryStats aggregates across all active patterns.
	SummaryStats(ctx context.Context) (*models.PatternSummary, error)
}

// PatternTradeRepository persists the per-trade history rows.
type PatternTradeRepository interface {
	// RecordEntry inserts a new open trade-history row.
	RecordEntry(ctx context.Context, trade *models.PatternTrade) error
	// FinalizeExit populates the exit fields of the open row for
	// (batchID, symbol). models.ErrNoOpenPosition if none exists.
	FinalizeExit(ctx context.Context, exit models.TradeExit) error
	// GetByBatchAndSymbol returns the most recent row for the key.
	GetByBatchAndSymbol(ctx context.Context, batchID, symbol string) (*models.PatternTrade, error)
	// DominantRegimeSince returns the majority regime among trade entries
	// after the cutoff; empty string when no trades exist.
	DominantRegimeSince(ctx context.Context, since time.Time) (string, error)
	// RecentByPattern returns the latest closed trades for a pattern.
	RecentByPattern(ctx context.Context, patternID string, limit int) ([]*models.PatternTrade, error)
}

// LearningEventRepository is the append-only learning audit log.
type LearningEventRepository interface {
	Append(ctx context.Context, event *models.LearningEvent) error
	RecentLessons(ctx context.Context, days int) ([]*models.LearningEvent, error)
}

// Repositories bundles the pattern subsystem's data access for wiring.
type Repositories struct {
	Patterns PatternRepository
	Trades   PatternTradeRepository
	Events   LearningEventRepository
}
