package scheduler

import (
	"time"

	appconfig "github.com/kaimoapp/kaimo/internal/config"
)

// Config controls when the daily sweep fires and how much it chews through.
type Config struct {
	SweepHour  int
	Timezone   string
	JobTimeout time.Duration
	BatchSize  int
}

func DefaultConfig() Config {
	return Config{
		SweepHour:  2,
		Timezone:   "Asia/Tokyo",
		JobTimeout: 5 * time.Minute,
		BatchSize:  100,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.SweepHour < 0 || c.SweepHour > 23 {
		c.SweepHour = defaults.SweepHour
	}
	if c.Timezone == "" {
		c.Timezone = defaults.Timezone
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}

func ProvideConfig(cfg appconfig.Config) Config {
	return Config{
		SweepHour:  cfg.SweepHour,
		Timezone:   cfg.SweepTimezone,
		JobTimeout: cfg.SweepTimeout,
	}.withDefaults()
}
