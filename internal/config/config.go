// Package config loads scheduler configuration from YAML with environment
// variable overrides, following the teacher repo's internal/config/config.go
// shape: a nested Config struct, os.Getenv overrides for the values worth
// changing at deploy time, and a Validate pass.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	FeeModel  FeeModelConfig  `yaml:"fee_model"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// FeeModelConfig configures the rolling fee window.
type FeeModelConfig struct {
	MaxHistory int `yaml:"max_history"`
}

// RateLimitConfig configures the global admission token bucket.
type RateLimitConfig struct {
	Rate int64 `yaml:"rate"`
	Max  int64 `yaml:"max"`
}

// SchedulerConfig configures the scheduler's decision policy, per spec §4.4.
type SchedulerConfig struct {
	TargetBaseFee       uint64        `yaml:"target_base_fee"`
	MaxPriorityFee      uint64        `yaml:"max_priority_fee"`
	SpikeThreshold      float64       `yaml:"spike_threshold"`
	RepriceCooldown     time.Duration `yaml:"reprice_cooldown"`
	DeferTrendThreshold float64       `yaml:"defer_trend_threshold"`
}

// LoggingConfig configures zerolog setup.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the /metrics and /healthz HTTP surface.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration the original simulation used:
// target base fee 50, tip 2, spike threshold 15.0, 500ms reprice cooldown,
// a 100-sample fee window, and a rate(10)/max(20) admission bucket.
func Default() *Config {
	return &Config{
		FeeModel: FeeModelConfig{MaxHistory: 100},
		RateLimit: RateLimitConfig{
			Rate: 10,
			Max:  20,
		},
		Scheduler: SchedulerConfig{
			TargetBaseFee:       50,
			MaxPriorityFee:      2,
			SpikeThreshold:      15.0,
			RepriceCooldown:     500 * time.Millisecond,
			DeferTrendThreshold: -1.0,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Addr: ":9090"},
	}
}

// Load reads YAML config from path, falling back to Default when path
// does not exist, then applies environment variable overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("SCHEDULER_TARGET_BASE_FEE"); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Scheduler.TargetBaseFee = parsed
		}
	}
	if v := os.Getenv("SCHEDULER_SPIKE_THRESHOLD"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scheduler.SpikeThreshold = parsed
		}
	}
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.FeeModel.MaxHistory <= 0 {
		return fmt.Errorf("fee_model.max_history must be positive")
	}
	if c.Scheduler.SpikeThreshold < 0 {
		return fmt.Errorf("scheduler.spike_threshold must be non-negative")
	}
	if c.Scheduler.RepriceCooldown < 0 {
		return fmt.Errorf("scheduler.reprice_cooldown must be non-negative")
	}
	if c.RateLimit.Rate < 0 || c.RateLimit.Max < 0 {
		return fmt.Errorf("rate_limit.rate and rate_limit.max must be non-negative")
	}
	return nil
}
