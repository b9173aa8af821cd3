package app

import (
	"fmt"
	"strings"
	"time"

	"estatecron/internal/config"
	"estatecron/internal/domain"
	"estatecron/internal/extension"
	"estatecron/internal/observability/admin"
	"estatecron/internal/storage"
	"estatecron/internal/task/engine"
	"estatecron/internal/task/scheduler"
	logx "estatecron/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "sqlite", "sqlite3":
		if path == "" {
			path = config.DefaultSQLitePath
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "postgres", "postgresql", "pgx":
		dsn := strings.TrimSpace(sc.DSN)
		if dsn == "" {
			return storage.Config{}, fmt.Errorf("storage.dsn is required when storage.driver=%s", driver)
		}
		return storage.Config{Driver: "postgres", DSN: dsn}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	out := engine.Config{Enabled: cfg.EngineEnabled()}
	if te := cfg.TaskEngine; te != nil {
		d, err := config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
		if err != nil {
			return engine.Config{}, err
		}
		out.DefaultTimeout = d
		out.HistorySize = te.HistorySize
	}
	// Safety: avoid a config where scheduler triggers run but engine is explicitly disabled.
	if cfg.Scheduler.Enabled && !out.Enabled {
		return engine.Config{}, fmt.Errorf("task_engine.enabled cannot be false while scheduler.enabled is true")
	}
	return out, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	delay, err := cfg.Scheduler.StartupDelayValue()
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:      cfg.Scheduler.Enabled,
		Timezone:     strings.TrimSpace(cfg.Scheduler.Timezone),
		StartupDelay: delay,
	}, nil
}

func mapAdminConfig(cfg *config.Config) (admin.Config, error) {
	a := cfg.Admin
	rt, err := config.ParseDurationOrDefault("admin.read_timeout", a.ReadTimeout, 10*time.Second)
	if err != nil {
		return admin.Config{}, err
	}
	wt, err := config.ParseDurationOrDefault("admin.write_timeout", a.WriteTimeout, 60*time.Second)
	if err != nil {
		return admin.Config{}, err
	}
	return admin.Config{
		Enabled:       a.Enabled,
		Addr:          strings.TrimSpace(a.Addr),
		Token:         strings.TrimSpace(a.Token),
		AllowInsecure: a.AllowInsecure,
		Pprof:         a.Pprof,
		ReadTimeout:   rt,
		WriteTimeout:  wt,
	}, nil
}

func mapPriceList(cfg *config.Config) extension.PriceList {
	prices := extension.DefaultPriceList()
	p := cfg.Extensions.PricePerDay
	if p.Top != nil {
		prices[domain.TierTop] = *p.Top
	}
	if p.Middle != nil {
		prices[domain.TierMiddle] = *p.Middle
	}
	if p.Bottom != nil {
		prices[domain.TierBottom] = *p.Bottom
	}
	return prices
}

func mapVAT(cfg *config.Config) extension.VAT {
	if r := cfg.Extensions.VATRate; r != nil && !r.IsZero() {
		return extension.FlatVAT{Rate: *r}
	}
	return nil
}
