package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate runs struct-level validation over the loaded configuration and
// checks the cross-field ordering constraints the tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	p := cfg.Patterns
	if p.RSIOversold >= p.RSIOverbought {
		return fmt.Errorf("rsi_oversold (%.1f) must be below rsi_overbought (%.1f)", p.RSIOversold, p.RSIOverbought)
	}
	if !(p.VolumeLow < p.VolumeHigh && p.VolumeHigh < p.VolumeExplosive) {
		return fmt.Errorf("volume thresholds must ascend: low < high < explosive")
	}
	for i := 1; i < len(p.FearGreedCuts); i++ {
		if p.FearGreedCuts[i] <= p.FearGreedCuts[i-1] {
			return fmt.Errorf("fear_greed_cuts must be strictly ascending")
		}
	}

	return nil
}
