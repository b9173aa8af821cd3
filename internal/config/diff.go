package config

import (
	"reflect"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	logx "estatecron/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes the storage DSN or
// the admin token).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 20)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.startup_delay", strings.TrimSpace(newCfg.Scheduler.StartupDelay)),
		)
	}

	oTE := derefTaskEngine(oldCfg.TaskEngine)
	nTE := derefTaskEngine(newCfg.TaskEngine)
	if (oldCfg.TaskEngine != nil) != (newCfg.TaskEngine != nil) || !reflect.DeepEqual(oTE, nTE) {
		changed = append(changed, "task_engine")
		attrs = append(attrs,
			logx.Bool("task_engine.enabled", newCfg.EngineEnabled()),
			logx.String("task_engine.default_timeout", strings.TrimSpace(nTE.DefaultTimeout)),
			logx.Int("task_engine.history_size", nTE.HistorySize),
		)
	}

	if !reflect.DeepEqual(oldCfg.Jobs, newCfg.Jobs) {
		changed = append(changed, "jobs")
		jobs := newCfg.Jobs.WithDefaults()
		attrs = append(attrs,
			logx.String("jobs.elite_expiry", jobs.EliteExpiry.Schedule),
			logx.String("jobs.promotions", jobs.Promotions.Schedule),
			logx.String("jobs.exchange_rates", jobs.ExchangeRates.Schedule),
		)
	}

	// Storage (never log the DSN)
	oS, nS := oldCfg.Storage, newCfg.Storage
	if strings.TrimSpace(oS.Driver) != strings.TrimSpace(nS.Driver) ||
		strings.TrimSpace(oS.Path) != strings.TrimSpace(nS.Path) ||
		strings.TrimSpace(oS.DSN) != strings.TrimSpace(nS.DSN) ||
		strings.TrimSpace(oS.BusyTimeout) != strings.TrimSpace(nS.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.dsn_set", strings.TrimSpace(nS.DSN) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(nS.BusyTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.FX, newCfg.FX) {
		changed = append(changed, "fx")
		attrs = append(attrs,
			logx.String("fx.timeout", strings.TrimSpace(newCfg.FX.Timeout)),
			logx.Int("fx.currency_count", len(newCfg.FX.Currencies)),
		)
	}

	if oldCfg.Notifications != newCfg.Notifications {
		changed = append(changed, "notifications")
		attrs = append(attrs,
			logx.String("notifications.dedup_window", newCfg.Notifications.DedupWindow),
			logx.String("notifications.warn_within", newCfg.Notifications.WarnWithin),
		)
	}

	if !extensionsEqual(oldCfg.Extensions, newCfg.Extensions) {
		changed = append(changed, "extensions")
	}

	if oldCfg.Admin != newCfg.Admin {
		changed = append(changed, "admin")
		attrs = append(attrs,
			logx.Bool("admin.enabled", newCfg.Admin.Enabled),
			logx.String("admin.addr", strings.TrimSpace(newCfg.Admin.Addr)),
			logx.Bool("admin.token_set", strings.TrimSpace(newCfg.Admin.Token) != ""),
			logx.Bool("admin.pprof", newCfg.Admin.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists changed sections that only take effect on restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, c := range changed {
		switch c {
		case "logging", "scheduler", "task_engine", "jobs", "admin":
		default:
			out = append(out, c)
		}
	}
	return out
}

func derefTaskEngine(te *TaskEngineConfig) TaskEngineConfig {
	if te == nil {
		return TaskEngineConfig{}
	}
	return *te
}

func extensionsEqual(a, b ExtensionsConfig) bool {
	return decEqual(a.VATRate, b.VATRate) &&
		decEqual(a.PricePerDay.Top, b.PricePerDay.Top) &&
		decEqual(a.PricePerDay.Middle, b.PricePerDay.Middle) &&
		decEqual(a.PricePerDay.Bottom, b.PricePerDay.Bottom)
}

func decEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
