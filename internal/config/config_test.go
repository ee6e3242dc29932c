package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestLoad_MissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load(missing file) = %v, want nil error", err)
	}
	if cfg.Scheduler.TargetBaseFee != Default().Scheduler.TargetBaseFee {
		t.Errorf("TargetBaseFee = %d, want default %d", cfg.Scheduler.TargetBaseFee, Default().Scheduler.TargetBaseFee)
	}
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
scheduler:
  target_base_fee: 99
  max_priority_fee: 5
  spike_threshold: 20.5
  reprice_cooldown: 1s
  defer_trend_threshold: -2.5
logging:
  level: debug
  format: console
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) = %v, want nil error", path, err)
	}
	if cfg.Scheduler.TargetBaseFee != 99 {
		t.Errorf("TargetBaseFee = %d, want 99", cfg.Scheduler.TargetBaseFee)
	}
	if cfg.Scheduler.RepriceCooldown != time.Second {
		t.Errorf("RepriceCooldown = %v, want 1s", cfg.Scheduler.RepriceCooldown)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v, want {debug console}", cfg.Logging)
	}
	// Sections absent from the YAML keep their defaults.
	if cfg.RateLimit.Rate != Default().RateLimit.Rate {
		t.Errorf("RateLimit.Rate = %d, want default %d", cfg.RateLimit.Rate, Default().RateLimit.Rate)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SCHEDULER_TARGET_BASE_FEE", "123")
	t.Setenv("SCHEDULER_SPIKE_THRESHOLD", "7.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") = %v, want nil error", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
	if cfg.Scheduler.TargetBaseFee != 123 {
		t.Errorf("TargetBaseFee = %d, want 123", cfg.Scheduler.TargetBaseFee)
	}
	if cfg.Scheduler.SpikeThreshold != 7.5 {
		t.Errorf("SpikeThreshold = %v, want 7.5", cfg.Scheduler.SpikeThreshold)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"non-positive max_history", func(c *Config) { c.FeeModel.MaxHistory = 0 }},
		{"negative spike threshold", func(c *Config) { c.Scheduler.SpikeThreshold = -1 }},
		{"negative reprice cooldown", func(c *Config) { c.Scheduler.RepriceCooldown = -time.Second }},
		{"negative rate limit rate", func(c *Config) { c.RateLimit.Rate = -1 }},
		{"negative rate limit max", func(c *Config) { c.RateLimit.Max = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() = nil, want an error for %s", tc.name)
			}
		})
	}
}
