// Package config provides configuration management for the ODIN learning pipeline.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Patterns PatternsConfig `mapstructure:"patterns" validate:"required"`
	Memory   MemoryConfig   `mapstructure:"memory" validate:"required"`
	Learning LearningConfig `mapstructure:"learning" validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics" validate:"required"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,oneof=development staging production"`
	LogLevel    string `mapstructure:"log_level" validate:"required"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host" validate:"required"`
	Port           int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name           string `mapstructure:"name" validate:"required"`
	User           string `mapstructure:"user" validate:"required"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections int    `mapstructure:"max_connections" validate:"required,gt=0"`
	// Optional AWS Secrets Manager overlay for the password.
	SecretsRegion string `mapstructure:"secrets_region"`
	SecretsName   string `mapstructure:"secrets_name"`
}

// PatternsConfig holds classification thresholds and rolling-statistics knobs.
type PatternsConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	RSIOversold      float64 `mapstructure:"rsi_oversold" validate:"required,gt=0,lt=100"`
	RSIOverbought    float64 `mapstructure:"rsi_overbought" validate:"required,gt=0,lt=100"`
	VolumeLow        float64 `mapstructure:"volume_low" validate:"required,gt=0"`
	VolumeHigh       float64 `mapstructure:"volume_high" validate:"required,gt=0"`
	VolumeExplosive  float64 `mapstructure:"volume_explosive" validate:"required,gt=0"`
	FearGreedCuts    [4]int  `mapstructure:"fear_greed_cuts"`
	StaleDays        int     `mapstructure:"stale_days" validate:"required,gt=0"`
	CacheTTLSeconds  int     `mapstructure:"cache_ttl_seconds" validate:"required,gt=0"`
	DedupHistorySize int     `mapstructure:"dedup_history_size" validate:"required,gt=0"`
}

// MemoryConfig configures delivery to the reasoning service's memory channels.
type MemoryConfig struct {
	ServiceURL string `mapstructure:"service_url" validate:"omitempty,url"`
	// ServiceKey is the bearer token for the reasoning service. Usually
	// supplied via the Secrets Manager overlay rather than YAML.
	ServiceKey            string   `mapstructure:"service_key"`
	Channels              []string `mapstructure:"channels"`
	RequestTimeoutSeconds int      `mapstructure:"request_timeout_seconds" validate:"required,gt=0"`
	RetryAttempts         int      `mapstructure:"retry_attempts" validate:"gte=0"`
	RequestsPerSecond     float64  `mapstructure:"requests_per_second" validate:"required,gt=0"`
}

// LearningConfig configures the scheduled analysis cycles.
type LearningConfig struct {
	WeeklyCron        string  `mapstructure:"weekly_cron" validate:"required"`
	DailyCron         string  `mapstructure:"daily_cron" validate:"required"`
	TopLimit          int     `mapstructure:"top_limit" validate:"required,gt=0"`
	MinTrades         int     `mapstructure:"min_trades" validate:"required,gt=0"`
	BreakingThreshold float64 `mapstructure:"breaking_threshold" validate:"required,gt=0,lt=1"`
	HotImprovement    float64 `mapstructure:"hot_improvement" validate:"required,gt=0,lt=1"`
	RegimeCacheMins   int     `mapstructure:"regime_cache_minutes" validate:"required,gt=0"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// ContextCacheTTL returns the tracker cache TTL as a duration.
func (c *PatternsConfig) ContextCacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RegimeCacheTTL returns the regime snapshot cache interval.
func (c *LearningConfig) RegimeCacheTTL() time.Duration {
	return time.Duration(c.RegimeCacheMins) * time.Minute
}
