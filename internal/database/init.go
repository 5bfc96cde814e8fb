package database

import (
	"context"
	"fmt"
)

// Schema for the pattern feedback subsystem. recent_trades is stored as
// JSONB so the rolling window round-trips without a separate table.
var patternSchema = []string{
	`CREATE TABLE IF NOT EXISTS trade_patterns (
		pattern_id        TEXT PRIMARY KEY,
		strategy_type     TEXT NOT NULL,
		market_regime     TEXT NOT NULL,
		volume_profile    TEXT NOT NULL,
		technical_setup   TEXT NOT NULL,
		total_trades      INTEGER NOT NULL DEFAULT 0,
		winning_trades    INTEGER NOT NULL DEFAULT 0,
		losing_trades     INTEGER NOT NULL DEFAULT 0,
		win_rate          DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_win_percent   DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_loss_percent  DOUBLE PRECISION NOT NULL DEFAULT 0,
		expectancy        DOUBLE PRECISION NOT NULL DEFAULT 0,
		recent_trades     JSONB NOT NULL DEFAULT '[]'::jsonb,
		recent_win_rate   DOUBLE PRECISION NOT NULL DEFAULT 0,
		recent_avg_return DOUBLE PRECISION NOT NULL DEFAULT 0,
		momentum_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
		confidence_level  TEXT NOT NULL DEFAULT 'low',
		is_active         BOOLEAN NOT NULL DEFAULT TRUE,
		first_seen_date   TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_traded_date  TIMESTAMPTZ,
		last_updated      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_patterns_regime
		ON trade_patterns (market_regime) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS idx_trade_patterns_expectancy
		ON trade_patterns (expectancy DESC) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS pattern_trade_history (
		id                   BIGSERIAL PRIMARY KEY,
		pattern_id           TEXT NOT NULL REFERENCES trade_patterns(pattern_id),
		batch_id             TEXT NOT NULL,
		symbol               TEXT NOT NULL,
		entry_date           TIMESTAMPTZ NOT NULL,
		entry_price          DOUBLE PRECISION NOT NULL,
		entry_rsi            DOUBLE PRECISION,
		entry_volume_ratio   DOUBLE PRECISION,
		entry_atr            DOUBLE PRECISION,
		entry_vix            DOUBLE PRECISION,
		entry_fear_greed     DOUBLE PRECISION,
		regime_at_entry      TEXT NOT NULL DEFAULT '',
		decision             TEXT NOT NULL DEFAULT 'HOLD',
		conviction           DOUBLE PRECISION NOT NULL DEFAULT 0,
		position_size_pct    DOUBLE PRECISION NOT NULL DEFAULT 0,
		exit_date            TIMESTAMPTZ,
		exit_price           DOUBLE PRECISION,
		exit_reason          TEXT,
		holding_days         INTEGER,
		pnl_percent          DOUBLE PRECISION,
		pnl_dollars          NUMERIC(18,4),
		max_gain_percent     DOUBLE PRECISION,
		max_drawdown_percent DOUBLE PRECISION
	)`,
	// At most one open position per batch+symbol.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_pattern_trade_open
		ON pattern_trade_history (batch_id, symbol) WHERE exit_date IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_pattern_trade_entry_date
		ON pattern_trade_history (entry_date)`,
	`CREATE TABLE IF NOT EXISTS pattern_learning_log (
		id             UUID PRIMARY KEY,
		learning_date  TIMESTAMPTZ NOT NULL DEFAULT now(),
		lesson_type    TEXT NOT NULL,
		pattern_ids    JSONB NOT NULL DEFAULT '[]'::jsonb,
		situation      TEXT NOT NULL,
		recommendation TEXT NOT NULL,
		channels       JSONB NOT NULL DEFAULT '[]'::jsonb
	)`,
}

// InitPatternSchema creates the pattern tables and indexes if absent.
func InitPatternSchema(ctx context.Context, db *DB) error {
	for _, stmt := range patternSchema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply pattern schema: %w", err)
		}
	}
	return nil
}

// VerifyPatternSchema reports whether the pattern tables exist. The result
// is the startup capability check: when false, callers run with the no-op
// feedback system instead of probing per call.
func VerifyPatternSchema(ctx context.Context, db *DB) (bool, error) {
	const query = `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_name IN ('trade_patterns', 'pattern_trade_history', 'pattern_learning_log')
	`
	var count int
	if err := db.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to verify pattern schema: %w", err)
	}
	return count == 3, nil
}
