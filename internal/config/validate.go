package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"estatecron/internal/task/scheduler"
)

// Validate checks everything that can be checked without opening the store.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(checkTZ("scheduler.timezone", cfg.Scheduler.Timezone))
	_, err := cfg.Scheduler.StartupDelayValue()
	add(err)

	if te := cfg.TaskEngine; te != nil {
		_, err := ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
		add(err)
		if te.HistorySize < 0 {
			add(errors.New("task_engine.history_size: must be >= 0"))
		}
	}

	jobs := cfg.Jobs.WithDefaults()
	for _, it := range []struct {
		name string
		job  JobConfig
	}{
		{"jobs.elite_expiry", jobs.EliteExpiry},
		{"jobs.promotions", jobs.Promotions},
		{"jobs.exchange_rates", jobs.ExchangeRates},
	} {
		name, j := it.name, it.job
		if _, err := scheduler.ParseSchedule(j.Schedule); err != nil {
			add(fmt.Errorf("%s.schedule: %w", name, err))
		}
		add(checkTZ(name+".timezone", j.Timezone))
		_, err := ParseDurationField(name+".timeout", j.Timeout)
		add(err)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			add(errors.New("storage.dsn: required for postgres (or set DATABASE_URL)"))
		}
	default:
		add(fmt.Errorf("storage.driver: unsupported %q", cfg.Storage.Driver))
	}
	_, err = ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	add(err)

	_, err = ParseDurationField("fx.timeout", cfg.FX.Timeout)
	add(err)
	for _, c := range cfg.FX.Currencies {
		if c = strings.TrimSpace(c); len(c) != 3 {
			add(fmt.Errorf("fx.currencies: invalid code %q", c))
		}
	}

	_, err = ParseDurationField("notifications.dedup_window", cfg.Notifications.DedupWindow)
	add(err)
	_, err = ParseDurationField("notifications.warn_within", cfg.Notifications.WarnWithin)
	add(err)
	if cfg.Notifications.RatePerSec < 0 {
		add(errors.New("notifications.rate_per_sec: must be >= 0"))
	}

	p := cfg.Extensions.PricePerDay
	for _, it := range []struct {
		name string
		v    *decimal.Decimal
	}{
		{"extensions.price_per_day.top", p.Top},
		{"extensions.price_per_day.middle", p.Middle},
		{"extensions.price_per_day.bottom", p.Bottom},
	} {
		if it.v != nil && !it.v.IsPositive() {
			add(fmt.Errorf("%s: must be > 0", it.name))
		}
	}
	if r := cfg.Extensions.VATRate; r != nil && (r.IsNegative() || r.GreaterThanOrEqual(decimal.NewFromInt(1))) {
		add(errors.New("extensions.vat_rate: must be in [0, 1)"))
	}

	a := cfg.Admin
	_, err = ParseDurationField("admin.read_timeout", a.ReadTimeout)
	add(err)
	_, err = ParseDurationField("admin.write_timeout", a.WriteTimeout)
	add(err)
	if addr := strings.TrimSpace(a.Addr); a.Enabled && addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			add(fmt.Errorf("admin.addr: %w", err))
		}
	}

	return errors.Join(errs...)
}

func checkTZ(path, tz string) error {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
