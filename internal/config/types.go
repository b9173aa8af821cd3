package config

import (
	"github.com/shopspring/decimal"
)

// Config is the on-disk configuration (JSON or YAML). Durations are Go
// duration strings ("15m", "48h"); money is a decimal string or number.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution settings. If omitted, the engine follows
	// scheduler.enabled with no default timeout.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	Jobs          JobsConfig          `json:"jobs"`
	Storage       StorageConfig       `json:"storage"`
	FX            FXConfig            `json:"fx"`
	Notifications NotificationsConfig `json:"notifications"`
	Extensions    ExtensionsConfig    `json:"extensions"`
	Admin         AdminConfig         `json:"admin"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the scheduler (trigger) service.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Timezone is the default for jobs without their own, e.g. "Asia/Riyadh".
	Timezone string `json:"timezone,omitempty"`

	// StartupDelay offsets the catch-up pass. "0s"/omitted uses the default;
	// "off" disables catch-up.
	StartupDelay string `json:"startup_delay,omitempty"`
}

// TaskEngineConfig controls the task execution engine.
//
// Enabled is a pointer so we can distinguish "omitted" (default to scheduler.enabled)
// from an explicit false.
type TaskEngineConfig struct {
	Enabled *bool `json:"enabled,omitempty"`

	// DefaultTimeout applies to jobs without their own timeout. "0s" disables it.
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

type JobsConfig struct {
	EliteExpiry   JobConfig `json:"elite_expiry"`
	Promotions    JobConfig `json:"promotions"`
	ExchangeRates JobConfig `json:"exchange_rates"`
}

// JobConfig overrides one job's cadence. Omitted fields keep the defaults.
type JobConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// IsEnabled treats an omitted flag as enabled.
func (j JobConfig) IsEnabled() bool { return j.Enabled == nil || *j.Enabled }

// StorageConfig selects the relational store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./estatecron.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://..." }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // never logged
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type FXConfig struct {
	URL        string   `json:"url,omitempty"`
	Timeout    string   `json:"timeout,omitempty"`
	Currencies []string `json:"currencies,omitempty"`
}

type NotificationsConfig struct {
	DedupWindow string  `json:"dedup_window,omitempty"`
	WarnWithin  string  `json:"warn_within,omitempty"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
}

type ExtensionsConfig struct {
	PricePerDay PriceConfig      `json:"price_per_day"`
	VATRate     *decimal.Decimal `json:"vat_rate,omitempty"`
}

// PriceConfig is the per-day extension price per tier. Omitted tiers keep
// the built-in price.
type PriceConfig struct {
	Top    *decimal.Decimal `json:"top,omitempty"`
	Middle *decimal.Decimal `json:"middle,omitempty"`
	Bottom *decimal.Decimal `json:"bottom,omitempty"`
}

// AdminConfig controls the operator HTTP endpoint.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
type AdminConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	WriteTimeout  string `json:"write_timeout,omitempty"`
}
