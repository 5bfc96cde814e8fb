// Package classifier maps trade candidates into pattern buckets.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/config"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/models"
	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/repository"
)

// Strategy types, mutually exclusive, evaluated in priority order.
const (
	StrategyMeanReversion = "mean_reversion"
	StrategyMomentum      = "momentum"
	StrategyBreakout      = "breakout"
	StrategyBounce        = "bounce"
)

// Volume profiles.
const (
	VolumeLow       = "low"
	VolumeNormal    = "normal"
	VolumeHigh      = "high"
	VolumeExplosive = "explosive"
)

// Technical setups.
const (
	SetupOversold   = "oversold"
	SetupNeutral    = "neutral"
	SetupOverbought = "overbought"
)

// Defaults substituted for missing metrics: availability over strictness.
// Callers needing strict correctness must pre-validate their snapshots.
const (
	defaultRSI         = 50.0
	defaultVolumeRatio = 1.0
	defaultPriceVsSMA  = 1.0
)

// Thresholds are the classification cut points.
type Thresholds struct {
	RSIOversold     float64
	RSIOverbought   float64
	VolumeLow       float64
	VolumeHigh      float64
	VolumeExplosive float64
	FearGreedCuts   [4]float64
}

// DefaultThresholds returns the production cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RSIOversold:     30,
		RSIOverbought:   70,
		VolumeLow:       0.7,
		VolumeHigh:      1.5,
		VolumeExplosive: 2.5,
		FearGreedCuts:   [4]float64{25, 45, 55, 75},
	}
}

// ThresholdsFromConfig builds thresholds from the patterns config section.
func ThresholdsFromConfig(cfg *config.PatternsConfig) Thresholds {
	t := Thresholds{
		RSIOversold:     cfg.RSIOversold,
		RSIOverbought:   cfg.RSIOverbought,
		VolumeLow:       cfg.VolumeLow,
		VolumeHigh:      cfg.VolumeHigh,
		VolumeExplosive: cfg.VolumeExplosive,
	}
	for i, c := range cfg.FearGreedCuts {
		t.FearGreedCuts[i] = float64(c)
	}
	return t
}

// Classification is the result of classifying one trade candidate.
type Classification struct {
	PatternID  string                   `json:"pattern_id"`
	Components models.PatternComponents `json:"components"`
	// Stats is nil for a freshly created pattern with no history yet.
	Stats      *models.Pattern `json:"stats"`
	Confidence float64         `json:"classification_confidence"`
}

// Classifier deterministically maps (technical snapshot, regime) to a
// pattern identifier and ensures the store has a matching entry.
type Classifier struct {
	patterns   repository.PatternRepository
	thresholds Thresholds
	logger     *logrus.Logger
}

// NewClassifier creates a classifier backed by the pattern store.
func NewClassifier(patterns repository.PatternRepository, thresholds Thresholds, logger *logrus.Logger) *Classifier {
	return &Classifier{
		patterns:   patterns,
		thresholds: thresholds,
		logger:     logger,
	}
}

// ClassifyTrade resolves the pattern bucket for a candidate and creates the
// pattern in the store if absent (idempotent, safe to call repeatedly).
func (c *Classifier) ClassifyTrade(ctx context.Context, metrics models.TechnicalSnapshot, regime models.RegimeSnapshot) (*Classification, error) {
	components := models.PatternComponents{
		StrategyType:   c.classifyStrategy(metrics),
		MarketRegime:   c.classifyRegime(regime),
		VolumeProfile:  c.classifyVolume(metrics),
		TechnicalSetup: c.classifyTechnical(metrics),
	}
	patternID := components.PatternID()

	if err := c.patterns.Create(ctx, components); err != nil {
		return nil, fmt.Errorf("failed to ensure pattern %s exists: %w", patternID, err)
	}

	stats, err := c.patterns.GetStats(ctx, patternID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	return &Classification{
		PatternID:  patternID,
		Components: components,
		Stats:      stats,
		Confidence: c.calculateConfidence(metrics),
	}, nil
}

// ClassifyBatch classifies several candidates under one regime snapshot.
func (c *Classifier) ClassifyBatch(ctx context.Context, candidates []models.TechnicalSnapshot, regime models.RegimeSnapshot) (map[string]*Classification, error) {
	results := make(map[string]*Classification, len(candidates))
	for _, candidate := range candidates {
		classification, err := c.ClassifyTrade(ctx, candidate, regime)
		if err != nil {
			return nil, fmt.Errorf("failed to classify %s: %w", candidate.Symbol, err)
		}
		results[candidate.Symbol] = classification

		c.logger.WithFields(logrus.Fields{
			"symbol":     candidate.Symbol,
			"pattern_id": classification.PatternID,
		}).Debug("Classified candidate")
	}
	return results, nil
}

// classifyStrategy picks one of four strategy types; first match wins.
// The trailing default to mean reversion is deliberate: the pipeline's core
// strategy is mean reversion, so ambiguous setups land there.
func (c *Classifier) classifyStrategy(metrics models.TechnicalSnapshot) string {
	rsi := orDefault(metrics.RSI2, defaultRSI)
	volumeRatio := orDefault(metrics.VolumeRatio, defaultVolumeRatio)
	priceVsSMA := orDefault(metrics.PriceVsSMA20, defaultPriceVsSMA)
	rsiChange := orDefault(metrics.RSIChange, 0)

	switch {
	case rsi < c.thresholds.RSIOversold && priceVsSMA < 0.98:
		return StrategyMeanReversion
	case rsi > c.thresholds.RSIOverbought && volumeRatio > c.thresholds.VolumeHigh:
		return StrategyMomentum
	case priceVsSMA > 0.99 && priceVsSMA < 1.02 && volumeRatio > c.thresholds.VolumeHigh:
		return StrategyBreakout
	case rsi > 30 && rsi < 50 && rsiChange > 5:
		return StrategyBounce
	default:
		return StrategyMeanReversion
	}
}

// classifyRegime prefers an explicit regime label; "extreme" is checked
// before the base term so "extreme fear" never buckets as plain fear.
func (c *Classifier) classifyRegime(regime models.RegimeSnapshot) string {
	if regime.Regime != "" {
		text := strings.ToLower(strings.ReplaceAll(regime.Regime, "_", " "))
		switch {
		case strings.Contains(text, "extreme fear"):
			return models.RegimeExtremeFear
		case strings.Contains(text, "extreme") && strings.Contains(text, "greed"):
			return models.RegimeExtremeGreed
		case strings.Contains(text, "fear"):
			return models.RegimeFear
		case strings.Contains(text, "greed"):
			return models.RegimeGreed
		default:
			return models.RegimeNeutral
		}
	}

	cuts := c.thresholds.FearGreedCuts
	fg := regime.FearGreedValue
	switch {
	case fg <= cuts[0]:
		return models.RegimeExtremeFear
	case fg <= cuts[1]:
		return models.RegimeFear
	case fg <= cuts[2]:
		return models.RegimeNeutral
	case fg <= cuts[3]:
		return models.RegimeGreed
	default:
		return models.RegimeExtremeGreed
	}
}

func (c *Classifier) classifyVolume(metrics models.TechnicalSnapshot) string {
	volumeRatio := orDefault(metrics.VolumeRatio, defaultVolumeRatio)
	switch {
	case volumeRatio < c.thresholds.VolumeLow:
		return VolumeLow
	case volumeRatio < c.thresholds.VolumeHigh:
		return VolumeNormal
	case volumeRatio < c.thresholds.VolumeExplosive:
		return VolumeHigh
	default:
		return VolumeExplosive
	}
}

func (c *Classifier) classifyTechnical(metrics models.TechnicalSnapshot) string {
	rsi := orDefault(metrics.RSI2, defaultRSI)
	switch {
	case rsi < c.thresholds.RSIOversold:
		return SetupOversold
	case rsi > c.thresholds.RSIOverbought:
		return SetupOverbought
	default:
		return SetupNeutral
	}
}

// calculateConfidence scores how cleanly the metrics match their buckets.
// Readings near a threshold boundary are penalised, extreme readings
// boosted. Clamped to [0, 1].
func (c *Classifier) calculateConfidence(metrics models.TechnicalSnapshot) float64 {
	confidence := 1.0
	rsi := orDefault(metrics.RSI2, defaultRSI)
	volumeRatio := orDefault(metrics.VolumeRatio, defaultVolumeRatio)

	if (rsi > c.thresholds.RSIOversold-5 && rsi < c.thresholds.RSIOversold+5) ||
		(rsi > c.thresholds.RSIOverbought-5 && rsi < c.thresholds.RSIOverbought+5) {
		confidence *= 0.8
	}
	if (volumeRatio > c.thresholds.VolumeLow-0.05 && volumeRatio < c.thresholds.VolumeLow+0.05) ||
		(volumeRatio > c.thresholds.VolumeHigh-0.05 && volumeRatio < c.thresholds.VolumeHigh+0.05) {
		confidence *= 0.8
	}

	if rsi < 20 || rsi > 80 {
		confidence *= 1.2
	}
	if volumeRatio > 3.0 {
		confidence *= 1.2
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

func orDefault(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
