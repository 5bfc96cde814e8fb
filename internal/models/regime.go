package models

// Canonical market regime buckets derived from the fear/greed index.
const (
	RegimeExtremeFear  = "extreme_fear"
	RegimeFear         = "fear"
	RegimeNeutral      = "neutral"
	RegimeGreed        = "greed"
	RegimeExtremeGreed = "extreme_greed"
)

// RegimeSnapshot is the regime detector's output as consumed by this core.
// Regime may be empty, in which case FearGreedValue is bucketed directly.
type RegimeSnapshot struct {
	Regime         string  `json:"regime"`
	FearGreedValue float64 `json:"fear_greed_value"`
	VIX            float64 `json:"vix"`
}

// TechnicalSnapshot is a per-candidate view from the market-data layer.
// Optional fields are pointers; the classifier substitutes documented
// defaults (RSI 50, volume ratio 1.0) when they are nil.
type TechnicalSnapshot struct {
	Symbol       string   `json:"symbol"`
	RSI2         *float64 `json:"rsi_2"`
	VolumeRatio  *float64 `json:"volume_ratio"`
	PriceVsSMA20 *float64 `json:"price_vs_sma20"`
	RSIChange    *float64 `json:"rsi_change"`
	ATR          *float64 `json:"atr"`
}

// IsZero reports whether the snapshot carries no data. Callers that cannot
// observe the market pass a zero snapshot and let the detector fill it in.
func (r RegimeSnapshot) IsZero() bool {
	return r.Regime == "" && r.FearGreedValue == 0 && r.VIX == 0
}

// Float is a convenience for building optional snapshot fields.
func Float(v float64) *float64 { return &v }
