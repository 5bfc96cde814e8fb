package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Exit reasons recorded on close.
const (
	ExitReasonStop      = "stop_loss"
	ExitReasonTarget    = "profit_target"
	ExitReasonTimeLimit = "time_limit"
	ExitReasonManual    = "manual"
	ExitReasonUnknown   = "unknown"
)

// PatternTrade is one entry-to-exit lifecycle linked to exactly one pattern.
// Exit fields stay nil until the position closes; exactly one open row may
// exist per (batch_id, symbol).
type PatternTrade struct {
	ID               int64            `db:"id" json:"id"`
	PatternID        string           `db:"pattern_id" json:"pattern_id"`
	BatchID          string           `db:"batch_id" json:"batch_id"`
	Symbol           string           `db:"symbol" json:"symbol"`
	EntryDate        time.Time        `db:"entry_date" json:"entry_date"`
	EntryPrice       float64          `db:"entry_price" json:"entry_price"`
	EntryRSI         *float64         `db:"entry_rsi" json:"entry_rsi"`
	EntryVolumeRatio *float64         `db:"entry_volume_ratio" json:"entry_volume_ratio"`
	EntryATR         *float64         `db:"entry_atr" json:"entry_atr"`
	EntryVIX         *float64         `db:"entry_vix" json:"entry_vix"`
	EntryFearGreed   *float64         `db:"entry_fear_greed" json:"entry_fear_greed"`
	RegimeAtEntry    string           `db:"regime_at_entry" json:"regime_at_entry"`
	Decision         string           `db:"decision" json:"decision"`
	Conviction       float64          `db:"conviction" json:"conviction"`
	PositionSizePct  float64          `db:"position_size_pct" json:"position_size_pct"`
	ExitDate         *time.Time       `db:"exit_date" json:"exit_date"`
	ExitPrice        *float64         `db:"exit_price" json:"exit_price"`
	ExitReason       *string          `db:"exit_reason" json:"exit_reason"`
	HoldingDays      *int             `db:"holding_days" json:"holding_days"`
	PnlPercent       *float64         `db:"pnl_percent" json:"pnl_percent"`
	PnlDollars       *decimal.Decimal `db:"pnl_dollars" json:"pnl_dollars"`
	MaxGainPercent   *float64         `db:"max_gain_percent" json:"max_gain_percent"`
	MaxDrawdownPct   *float64         `db:"max_drawdown_percent" json:"max_drawdown_percent"`
}

// IsClosed reports whether the exit fields have been finalized.
func (t *PatternTrade) IsClosed() bool {
	return t.ExitDate != nil
}

// RealizedPnlPercent returns the realized P&L percent, zero while open.
func (t *PatternTrade) RealizedPnlPercent() float64 {
	if t.PnlPercent == nil {
		return 0
	}
	return *t.PnlPercent
}

// TradeEntry carries the entry-time snapshot handed to the tracker.
type TradeEntry struct {
	BatchID         string
	Symbol          string
	EntryDate       time.Time
	EntryPrice      float64
	Technicals      TechnicalSnapshot
	Regime          RegimeSnapshot
	Decision        string
	Conviction      float64
	PositionSizePct float64
}

// TradeExit finalizes a position; the tracker matches it back to its open
// trade-history row via (BatchID, Symbol).
type TradeExit struct {
	BatchID        string
	Symbol         string
	ExitDate       time.Time
	ExitPrice      float64
	ExitReason     string
	HoldingDays    int
	PnlPercent     float64
	PnlDollars     decimal.Decimal
	MaxGainPercent float64
	MaxDrawdownPct float64
}

// TradeResult is the slice of an exit the pattern statistics care about.
type TradeResult struct {
	PnlPercent     float64
	HoldingDays    int
	MaxGainPercent float64
	MaxDrawdownPct float64
}

// Result projects the exit into a statistics update.
func (e TradeExit) Result() TradeResult {
	return TradeResult{
		PnlPercent:     e.PnlPercent,
		HoldingDays:    e.HoldingDays,
		MaxGainPercent: e.MaxGainPercent,
		MaxDrawdownPct: e.MaxDrawdownPct,
	}
}
