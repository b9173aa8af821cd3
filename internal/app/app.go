package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"estatecron/internal/clock"
	"estatecron/internal/config"
	"estatecron/internal/eventbus"
	"estatecron/internal/extension"
	"estatecron/internal/jobs/expiry"
	"estatecron/internal/jobs/fxrates"
	"estatecron/internal/jobs/promotions"
	"estatecron/internal/notify"
	"estatecron/internal/observability/admin"
	"estatecron/internal/runtime/supervisor"
	"estatecron/internal/storage"
	"estatecron/internal/task/engine"
	"estatecron/internal/task/scheduler"
	logx "estatecron/pkg/logx"
)

// Options replaces collaborators, mostly for tests. Zero values use the
// production defaults.
type Options struct {
	Clock    clock.Clock
	Provider fxrates.Provider
	Logger   logx.Logger
}

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store  *storage.Store
	engine *engine.Service
	sched  *scheduler.Service
	ext    *extension.Workflow
	admin  *admin.Service
	runs   jobSet
}

// New loads the config at cfgPath (empty for built-in defaults), opens the
// store (which migrates it) and wires every job. Nothing runs until Start or RunJob.
func New(ctx context.Context, cfgPath string, opt Options) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	if _, err := cfgm.Load(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return NewFromConfig(ctx, cfgm, opt)
}

// NewFromConfig wires the app from an already loaded config manager.
func NewFromConfig(ctx context.Context, cfgm *config.Manager, opt Options) (*App, error) {
	cfg := cfgm.Get()
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}

	var (
		logSvc *logx.Service
		log    = opt.Logger
	)
	if log.IsZero() {
		logSvc, log = logx.New(mapLogConfig(cfg))
	}
	clk := opt.Clock
	if clk == nil {
		clk = clock.System{}
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, sc, log)
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	a, err := wire(cfg, store, clk, opt.Provider, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.cfgm = cfgm
	a.logs = logSvc
	return a, nil
}

func wire(cfg *config.Config, store *storage.Store, clk clock.Clock, provider fxrates.Provider, log logx.Logger) (*App, error) {
	bus := eventbus.New()

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engCfg, log, bus)
	sched := scheduler.New(schedCfg, eng, log, bus)

	notifCfg := cfg.Notifications
	dedupWindow, err := config.ParseDurationOrDefault("notifications.dedup_window", notifCfg.DedupWindow, expiry.DefaultDedupWindow)
	if err != nil {
		return nil, err
	}
	warnWithin, err := config.ParseDurationOrDefault("notifications.warn_within", notifCfg.WarnWithin, expiry.DefaultWarnWithin)
	if err != nil {
		return nil, err
	}
	fxTimeout, err := config.ParseDurationOrDefault("fx.timeout", cfg.FX.Timeout, fxrates.DefaultTimeout)
	if err != nil {
		return nil, err
	}

	dedup := notify.NewDeduper(store, notify.Options{
		RatePerSec: notifCfg.RatePerSec,
		Clock:      clk,
		Log:        log,
	})
	if provider == nil {
		provider = fxrates.NewHTTPProvider(cfg.FX.URL, fxTimeout)
	}

	runs := jobSet{
		JobEliteExpiry:   expiry.New(store, dedup, expiry.Config{WarnWithin: warnWithin, DedupWindow: dedupWindow}, clk, log).Run,
		JobPromotions:    promotions.New(store, clk, log).Run,
		JobExchangeRates: fxrates.NewSyncer(provider, store, cfg.FX.Currencies, clk, log).Run,
	}
	if err := applyJobs(sched, cfg, runs); err != nil {
		return nil, err
	}

	ext := extension.New(store, extension.Options{
		Prices: mapPriceList(cfg),
		VAT:    mapVAT(cfg),
		Clock:  clk,
		Log:    log,
	})

	adminCfg, err := mapAdminConfig(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		log:    log.With(logx.String("comp", "app")),
		bus:    bus,
		store:  store,
		engine: eng,
		sched:  sched,
		ext:    ext,
		runs:   runs,
	}
	a.admin = admin.New(adminCfg, a, log)
	return a, nil
}

func (a *App) Store() *storage.Store           { return a.store }
func (a *App) Extensions() *extension.Workflow { return a.ext }
func (a *App) Scheduler() *scheduler.Service   { return a.sched }
func (a *App) Logger() logx.Logger             { return a.log }

// Ping, Snapshot and Routines back the admin endpoint.
func (a *App) Ping(ctx context.Context) error { return a.store.Ping(ctx) }
func (a *App) Snapshot() scheduler.Snapshot   { return a.sched.Snapshot() }
func (a *App) Routines() []supervisor.Routine { return a.sup.Routines() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// RunJob runs one pass of name synchronously. A job disabled in config can
// still be run by hand.
func (a *App) RunJob(ctx context.Context, name string) (engine.Result, error) {
	res, err := a.sched.RunNow(ctx, name)
	if !errors.Is(err, scheduler.ErrUnknownJob) {
		return res, err
	}
	run := a.runs[name]
	if run == nil {
		return engine.Result{}, fmt.Errorf("%w: %s (known: %s)", scheduler.ErrUnknownJob, name, strings.Join(JobNames(), ", "))
	}
	res = a.engine.Run(ctx, engine.Task{Name: name, Trigger: "manual", Run: run})
	return res, res.Err
}

// Start runs the scheduler, the event log and config hot reload until Stop
// or a fatal error.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
			if _, err := mapTaskEngineConfig(cfg); err != nil {
				return err
			}
			if _, err := mapAdminConfig(cfg); err != nil {
				return err
			}
			_, err := mapStorageConfig(cfg)
			return err
		})
	}

	a.sched.Start(a.sup.Context())
	if err := a.admin.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		a.sched.Stop(context.Background())
		return fmt.Errorf("admin: %w", err)
	}

	// Keep this debug-level to avoid noise for frequent schedules.
	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					fields := []logx.Field{logx.String("type", e.Type), logx.Time("time", e.Time)}
					if te, ok := e.Data.(engine.TaskEvent); ok {
						fields = append(fields, logx.String("task", te.Name), logx.String("trigger", te.Trigger))
					}
					a.log.Debug("event", fields...)
				}
			}
		})
	}

	if a.cfgm != nil {
		sub := a.cfgm.Subscribe(8)
		a.sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			lastApplied := a.cfgm.Get()
			for {
				select {
				case <-c.Done():
					return
				case newCfg, ok := <-sub:
					if !ok {
						return
					}
					a.applyConfig(c, lastApplied, newCfg)
					lastApplied = newCfg
				}
			}
		})
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}

	a.log.Info("app started", logx.String("jobs", strings.Join(a.sched.Jobs(), ",")))
	return nil
}

// applyConfig hot-applies logging, engine, scheduler and job changes.
// Everything else is logged as needing a restart.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	if a.logs != nil {
		a.logs.Apply(mapLogConfig(newCfg))
	}

	if engCfg, err := mapTaskEngineConfig(newCfg); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(engCfg)
	}

	schedCfg, err := mapSchedulerConfig(newCfg)
	if err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.sched.Enabled()
		a.sched.Apply(schedCfg)
		switch {
		case wasEnabled && !schedCfg.Enabled:
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
		case !wasEnabled && schedCfg.Enabled:
			a.log.Info("scheduler enabled via config")
			a.sched.Start(ctx)
		}
	}

	if err := applyJobs(a.sched, newCfg, a.runs); err != nil {
		a.log.Warn("job config rejected", logx.Err(err))
	}

	if adminCfg, err := mapAdminConfig(newCfg); err != nil {
		a.log.Warn("invalid admin config; keeping previous", logx.Err(err))
	} else if err := a.admin.Reconfigure(ctx, adminCfg); err != nil {
		a.log.Warn("admin reconfigure failed", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: sections})
}

// Stop stops triggering, lets in-flight passes finish (bounded by ctx) and
// closes the store. It is safe to call without Start.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	a.log.Info("stopping", logx.String("reason", string(reason)))

	if a.sup != nil {
		a.sup.Cancel()
	}
	a.admin.Stop(ctx)
	a.sched.Stop(ctx)
	if a.sup != nil {
		if err := a.sup.Wait(ctx); err != nil && ctx.Err() != nil {
			a.log.Warn("supervisor wait timed out", logx.Err(err))
		}
	}

	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	a.log.Info("stopped", logx.Duration("took", time.Since(start)))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
