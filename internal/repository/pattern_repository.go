package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/database"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/models"
)

// PostgresPatternRepository implements PatternRepository for PostgreSQL
type PostgresPatternRepository struct {
	db     *database.DB
	logger *logrus.Logger
}

// NewPostgresPatternRepository creates a new pattern repository
func NewPostgresPatternRepository(db *database.DB, logger *logrus.Logger) PatternRepository {
	return &PostgresPatternRepository{db: db, logger: logger}
}

const patternColumns = `
	pattern_id, strategy_type, market_regime, volume_profile, technical_setup,
	total_trades, winning_trades, losing_trades, win_rate,
	avg_win_percent, avg_loss_percent, expectancy,
	recent_trades, recent_win_rate, recent_avg_return, momentum_score,
	confidence_level, is_active, first_seen_date, last_traded_date
`

// Create inserts the pattern if absent; ON CONFLICT DO NOTHING keeps
// existing statistics untouched.
func (r *PostgresPatternRepository) Create(ctx context.Context, components models.PatternComponents) error {
	query := `
		INSERT INTO trade_patterns (pattern_id, strategy_type, market_regime, volume_profile, technical_setup)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (pattern_id) DO NOTHING
	`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		components.PatternID(),
		components.StrategyType,
		components.MarketRegime,
		components.VolumeProfile,
		components.TechnicalSetup,
	)
	if err != nil {
		return fmt.Errorf("failed to create pattern %s: %w", components.PatternID(), err)
	}

	return nil
}

// GetStats retrieves current statistics for a pattern
func (r *PostgresPatternRepository) GetStats(ctx context.Context, patternID string) (*models.Pattern, error) {
	query := `SELECT ` + patternColumns + ` FROM trade_patterns WHERE pattern_id = $1`

	row := r.db.Querier(ctx).QueryRow(ctx, query, patternID)
	pattern, err := scanPattern(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query pattern %s: %w", patternID, err)
	}

	return pattern, nil
}

// UpdateOnTradeClose applies the statistics update for one closed trade.
// Not safe for concurrent calls on the same pattern_id; cross-pattern calls
// touch disjoint rows and are independent.
func (r *PostgresPatternRepository) UpdateOnTradeClose(ctx context.Context, patternID string, result models.TradeResult, closedAt time.Time) (*models.Pattern, error) {
	pattern, err := r.GetStats(ctx, patternID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("cannot update pattern %s: %w", patternID, models.ErrPatternUnknown)
		}
		return nil, err
	}

	pattern.ApplyTradeResult(result, closedAt)

	recentJSON, err := json.Marshal(pattern.RecentTrades)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rolling window: %w", err)
	}

	query := `
		UPDATE trade_patterns SET
			total_trades = $2,
			winning_trades = $3,
			losing_trades = $4,
			win_rate = $5,
			avg_win_percent = $6,
			avg_loss_percent = $7,
			expectancy = $8,
			recent_trades = $9,
			recent_win_rate = $10,
			recent_avg_return = $11,
			momentum_score = $12,
			confidence_level = $13,
			last_traded_date = $14,
			last_updated = now()
		WHERE pattern_id = $1
	`

	_, err = r.db.Querier(ctx).Exec(ctx, query,
		patternID,
		pattern.TotalTrades, pattern.WinningTrades, pattern.LosingTrades,
		pattern.WinRate, pattern.AvgWinPercent, pattern.AvgLossPercent, pattern.Expectancy,
		recentJSON, pattern.RecentWinRate, pattern.RecentAvgReturn, pattern.MomentumScore,
		pattern.ConfidenceLevel, closedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update pattern %s: %w", patternID, err)
	}

	if math.Abs(pattern.MomentumScore) > models.SignificantMomentum {
		r.logger.WithFields(logrus.Fields{
			"pattern_id":     patternID,
			"momentum_score": pattern.MomentumScore,
		}).Info("Pattern showing significant momentum")
	}

	return pattern, nil
}

// TopPatterns returns best performing active patterns by expectancy
func (r *PostgresPatternRepository) TopPatterns(ctx context.Context, limit, minTrades int) ([]*models.Pattern, error) {
	query := `
		SELECT ` + patternColumns + `
		FROM trade_patterns
		WHERE total_trades >= $1 AND is_active
		ORDER BY expectancy DESC
		LIMIT $2
	`
	return r.queryPatterns(ctx, query, minTrades, limit)
}

// BreakingPatterns returns patterns whose recent window collapsed below the
// threshold despite a respectable historical win rate.
func (r *PostgresPatternRepository) BreakingPatterns(ctx context.Context, threshold float64, minTrades int) ([]*models.Pattern, error) {
	query := `
		SELECT ` + patternColumns + `
		FROM trade_patterns
		WHERE total_trades >= $1
		  AND recent_win_rate < $2
		  AND win_rate > 0.50
		  AND is_active
		ORDER BY (recent_win_rate - win_rate) ASC
	`
	return r.queryPatterns(ctx, query, minTrades, threshold)
}

// RegimePatterns returns all active patterns for a regime, best first
func (r *PostgresPatternRepository) RegimePatterns(ctx context.Context, regime string) ([]*models.Pattern, error) {
	query := `
		SELECT ` + patternColumns + `
		FROM trade_patterns
		WHERE market_regime = $1 AND is_active
		ORDER BY expectancy DESC
	`
	return r.queryPatterns(ctx, query, regime)
}

// HotPatterns returns patterns showing strong recent improvement
func (r *PostgresPatternRepository) HotPatterns(ctx context.Context, minImprovement float64) ([]*models.Pattern, error) {
	query := `
		SELECT ` + patternColumns + `
		FROM trade_patterns
		WHERE total_trades >= 10
		  AND recent_win_rate > win_rate + $1
		  AND is_active
		ORDER BY (recent_win_rate - win_rate) DESC
	`
	return r.queryPatterns(ctx, query, minImprovement)
}

// DeactivateStale flags patterns untraded past the cutoff. Patterns are
// never hard-deleted, only deactivated.
func (r *PostgresPatternRepository) DeactivateStale(ctx context.Context, daysInactive int) (int64, error) {
	query := `
		UPDATE trade_patterns
		SET is_active = FALSE, last_updated = now()
		WHERE last_traded_date < now() - make_interval(days => $1)
		  AND is_active
	`

	tag, err := r.db.Querier(ctx).Exec(ctx, query, daysInactive)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate stale patterns: %w", err)
	}

	deactivated := tag.RowsAffected()
	if deactivated > 0 {
		r.logger.WithField("count", deactivated).Info("Deactivated stale patterns")
	}

	return deactivated, nil
}

// SummaryStats aggregates statistics across all active patterns
func (r *PostgresPatternRepository) SummaryStats(ctx context.Context) (*models.PatternSummary, error) {
	query := `
		SELECT
			COUNT(*) AS total_patterns,
			COALESCE(SUM(total_trades), 0) AS total_trades,
			COALESCE(AVG(win_rate), 0) AS avg_win_rate,
			COALESCE(AVG(expectancy), 0) AS avg_expectancy,
			COUNT(*) FILTER (WHERE confidence_level = 'high') AS high_confidence_patterns,
			COUNT(*) FILTER (WHERE momentum_score > 0.1) AS improving_patterns,
			COUNT(*) FILTER (WHERE momentum_score < -0.1) AS declining_patterns
		FROM trade_patterns
		WHERE is_active
	`

	summary := &models.PatternSummary{}
	err := r.db.Querier(ctx).QueryRow(ctx, query).Scan(
		&summary.TotalPatterns, &summary.TotalTrades,
		&summary.AvgWinRate, &summary.AvgExpectancy,
		&summary.HighConfidencePatterns, &summary.ImprovingPatterns, &summary.DecliningPatterns,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pattern summary: %w", err)
	}

	return summary, nil
}

func (r *PostgresPatternRepository) queryPatterns(ctx context.Context, query string, args ...interface{}) ([]*models.Pattern, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*models.Pattern
	for rows.Next() {
		pattern, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		patterns = append(patterns, pattern)
	}

	return patterns, rows.Err()
}

func scanPattern(row pgx.Row) (*models.Pattern, error) {
	pattern := &models.Pattern{}
	var recentJSON []byte

	err := row.Scan(
		&pattern.PatternID, &pattern.StrategyType, &pattern.MarketRegime,
		&pattern.VolumeProfile, &pattern.TechnicalSetup,
		&pattern.TotalTrades, &pattern.WinningTrades, &pattern.LosingTrades, &pattern.WinRate,
		&pattern.AvgWinPercent, &pattern.AvgLossPercent, &pattern.Expectancy,
		&recentJSON, &pattern.RecentWinRate, &pattern.RecentAvgReturn, &pattern.MomentumScore,
		&pattern.ConfidenceLevel, &pattern.IsActive, &pattern.FirstSeenDate, &pattern.LastTradedDate,
	)
	if err != nil {
		return nil, err
	}

	if len(recentJSON) > 0 {
		if err := json.Unmarshal(recentJSON, &pattern.RecentTrades); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rolling window: %w", err)
		}
	}

	return pattern, nil
}
