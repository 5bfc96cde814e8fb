// Package config provides configuration management for the ODIN learning pipeline.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads and parses the configuration from file and environment variables.
// Environment variable placeholders in the YAML file (${VAR_NAME}) are expanded.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	v.SetConfigType("yaml")
	v.SetEnvPrefix("ODIN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if data, err := os.ReadFile(configPath); err == nil {
		expanded := os.ExpandEnv(string(data))
		if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	// Missing file is fine: defaults plus environment variables apply.

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "odin")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("patterns.enabled", true)
	v.SetDefault("patterns.rsi_oversold", 30.0)
	v.SetDefault("patterns.rsi_overbought", 70.0)
	v.SetDefault("patterns.volume_low", 0.7)
	v.SetDefault("patterns.volume_high", 1.5)
	v.SetDefault("patterns.volume_explosive", 2.5)
	v.SetDefault("patterns.fear_greed_cuts", []int{25, 45, 55, 75})
	v.SetDefault("patterns.stale_days", 30)
	v.SetDefault("patterns.cache_ttl_seconds", 300)
	v.SetDefault("patterns.dedup_history_size", 100)

	v.SetDefault("memory.channels", []string{
		"trader_memory", "bull_memory", "bear_memory",
		"risk_manager_memory", "invest_judge_memory",
	})
	v.SetDefault("memory.request_timeout_seconds", 30)
	v.SetDefault("memory.retry_attempts", 3)
	v.SetDefault("memory.requests_per_second", 5.0)

	v.SetDefault("learning.weekly_cron", "0 6 * * 1")
	v.SetDefault("learning.daily_cron", "30 21 * * 1-5")
	v.SetDefault("learning.top_limit", 10)
	v.SetDefault("learning.min_trades", 20)
	v.SetDefault("learning.breaking_threshold", 0.40)
	v.SetDefault("learning.hot_improvement", 0.10)
	v.SetDefault("learning.regime_cache_minutes", 15)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9187)
	v.SetDefault("metrics.path", "/metrics")
}
