package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/database"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/models"
)

// PostgresPatternTradeRepository implements PatternTradeRepository for PostgreSQL
type PostgresPatternTradeRepository struct {
	db *database.DB
}

// NewPostgresPatternTradeRepository creates a new trade-history repository
func NewPostgresPatternTradeRepository(db *database.DB) PatternTradeRepository {
	return &PostgresPatternTradeRepository{db: db}
}

const tradeColumns = `
	id, pattern_id, batch_id, symbol, entry_date, entry_price,
	entry_rsi, entry_volume_ratio, entry_atr, entry_vix, entry_fear_greed,
	regime_at_entry, decision, conviction, position_size_pct,
	exit_date, exit_price, exit_reason, holding_days,
	pnl_percent, pnl_dollars, max_gain_percent, max_drawdown_percent
`

// RecordEntry inserts a new open trade-history row
func (r *PostgresPatternTradeRepository) RecordEntry(ctx context.Context, trade *models.PatternTrade) error {
	query := `
		INSERT INTO pattern_trade_history (
			pattern_id, batch_id, symbol, entry_date, entry_price,
			entry_rsi, entry_volume_ratio, entry_atr, entry_vix, entry_fear_greed,
			regime_at_entry, decision, conviction, position_size_pct
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		trade.PatternID, trade.BatchID, trade.Symbol, trade.EntryDate, trade.EntryPrice,
		trade.EntryRSI, trade.EntryVolumeRatio, trade.EntryATR, trade.EntryVIX, trade.EntryFearGreed,
		trade.RegimeAtEntry, trade.Decision, trade.Conviction, trade.PositionSizePct,
	).Scan(&trade.ID)
	if err != nil {
		return fmt.Errorf("failed to record pattern trade entry: %w", err)
	}

	return nil
}

// FinalizeExit populates exit fields on the open row for (batch_id, symbol).
// The partial unique index guarantees at most one such row.
func (r *PostgresPatternTradeRepository) FinalizeExit(ctx context.Context, exit models.TradeExit) error {
	query := `
		UPDATE pattern_trade_history SET
			exit_date = $3,
			exit_price = $4,
			exit_reason = $5,
			holding_days = $6,
			pnl_percent = $7,
			pnl_dollars = $8,
			max_gain_percent = $9,
			max_drawdown_percent = $10
		WHERE batch_id = $1 AND symbol = $2 AND exit_date IS NULL
	`

	reason := exit.ExitReason
	if reason == "" {
		reason = models.ExitReasonUnknown
	}

	tag, err := r.db.Querier(ctx).Exec(ctx, query,
		exit.BatchID, exit.Symbol,
		exit.ExitDate, exit.ExitPrice, reason, exit.HoldingDays,
		exit.PnlPercent, exit.PnlDollars, exit.MaxGainPercent, exit.MaxDrawdownPct,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize trade exit: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finalize exit for %s/%s: %w", exit.BatchID, exit.Symbol, models.ErrNoOpenPosition)
	}

	return nil
}

// GetByBatchAndSymbol returns the most recent row for the key
func (r *PostgresPatternTradeRepository) GetByBatchAndSymbol(ctx context.Context, batchID, symbol string) (*models.PatternTrade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM pattern_trade_history
		WHERE batch_id = $1 AND symbol = $2
		ORDER BY entry_date DESC
		LIMIT 1
	`

	trade, err := scanTrade(r.db.Querier(ctx).QueryRow(ctx, query, batchID, symbol))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query pattern trade: %w", err)
	}

	return trade, nil
}

// DominantRegimeSince returns the majority regime among entries after the
// cutoff; empty string when there are no trades in the window.
func (r *PostgresPatternTradeRepository) DominantRegimeSince(ctx context.Context, since time.Time) (string, error) {
	query := `
		SELECT regime_at_entry
		FROM pattern_trade_history
		WHERE entry_date > $1 AND regime_at_entry <> ''
		GROUP BY regime_at_entry
		ORDER BY COUNT(*) DESC
		LIMIT 1
	`

	var regime string
	err := r.db.Querier(ctx).QueryRow(ctx, query, since).Scan(&regime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to query dominant regime: %w", err)
	}

	return regime, nil
}

// RecentByPattern returns the latest closed trades for a pattern
func (r *PostgresPatternTradeRepository) RecentByPattern(ctx context.Context, patternID string, limit int) ([]*models.PatternTrade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM pattern_trade_history
		WHERE pattern_id = $1 AND exit_date IS NOT NULL
		ORDER BY exit_date DESC
		LIMIT $2
	`

	rows, err := r.db.Querier(ctx).Query(ctx, query, patternID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pattern trades: %w", err)
	}
	defer rows.Close()

	var trades []*models.PatternTrade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern trade: %w", err)
		}
		trades = append(trades, trade)
	}

	return trades, rows.Err()
}

func scanTrade(row pgx.Row) (*models.PatternTrade, error) {
	trade := &models.PatternTrade{}
	err := row.Scan(
		&trade.ID, &trade.PatternID, &trade.BatchID, &trade.Symbol,
		&trade.EntryDate, &trade.EntryPrice,
		&trade.EntryRSI, &trade.EntryVolumeRatio, &trade.EntryATR, &trade.EntryVIX, &trade.EntryFearGreed,
		&trade.RegimeAtEntry, &trade.Decision, &trade.Conviction, &trade.PositionSizePct,
		&trade.ExitDate, &trade.ExitPrice, &trade.ExitReason, &trade.HoldingDays,
		&trade.PnlPercent, &trade.PnlDollars, &trade.MaxGainPercent, &trade.MaxDrawdownPct,
	)
	if err != nil {
		return nil, err
	}
	return trade, nil
}
