package config

import (
	"strings"
	"time"
)

const (
	DefaultTimezone           = "Asia/Riyadh"
	DefaultExpirySchedule     = "0 9 * * *"
	DefaultPromotionsSchedule = "*/15 * * * *"
	DefaultFXSchedule         = "0 6 * * *"
	DefaultSQLitePath         = "./estatecron.db"
)

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: "info", Console: true},
		Scheduler: SchedulerConfig{Enabled: true, Timezone: DefaultTimezone},
		Storage:   StorageConfig{Driver: "sqlite", Path: DefaultSQLitePath},
	}
}

// WithDefaults fills omitted schedules. The daily jobs default to the
// marketplace timezone; promotions follow the scheduler timezone.
func (j JobsConfig) WithDefaults() JobsConfig {
	if strings.TrimSpace(j.EliteExpiry.Schedule) == "" {
		j.EliteExpiry.Schedule = DefaultExpirySchedule
		if strings.TrimSpace(j.EliteExpiry.Timezone) == "" {
			j.EliteExpiry.Timezone = DefaultTimezone
		}
	}
	if strings.TrimSpace(j.Promotions.Schedule) == "" {
		j.Promotions.Schedule = DefaultPromotionsSchedule
	}
	if strings.TrimSpace(j.ExchangeRates.Schedule) == "" {
		j.ExchangeRates.Schedule = DefaultFXSchedule
		if strings.TrimSpace(j.ExchangeRates.Timezone) == "" {
			j.ExchangeRates.Timezone = DefaultTimezone
		}
	}
	return j
}

// StartupDelayValue returns the catch-up delay: 0 for the default, negative
// when disabled with "off".
func (s SchedulerConfig) StartupDelayValue() (time.Duration, error) {
	raw := strings.TrimSpace(s.StartupDelay)
	if strings.EqualFold(raw, "off") {
		return -1, nil
	}
	return ParseDurationField("scheduler.startup_delay", raw)
}

// EngineEnabled resolves task_engine.enabled, falling back to scheduler.enabled.
func (c *Config) EngineEnabled() bool {
	if c.TaskEngine != nil && c.TaskEngine.Enabled != nil {
		return *c.TaskEngine.Enabled
	}
	return c.Scheduler.Enabled
}
