package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"estatecron/internal/eventbus"
	"estatecron/internal/task/engine"
	logx "estatecron/pkg/logx"
)

func New(cfg Config, eng *engine.Service, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "scheduler")),
		bus:    bus,
		engine: eng,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:     cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		submitWarn: map[string]*rate.Sometimes{},
	}
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps the config. A timezone change re-registers every job on a new
// cron instance; StartupDelay only affects the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.c == nil {
		return
	}
	if oldTZ != newTZ {
		s.restartLocked()
	}
}

// Start begins triggering and schedules the catch-up pass. It is idempotent.
// When the scheduler is disabled nothing ticks, but RunNow still works.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	cur := s.cfg
	if !cur.Enabled {
		s.log.Info("scheduler disabled; jobs run only on demand", logx.Int("jobs", len(s.defs)))
		return
	}
	if s.engine != nil {
		s.engine.Start(ctx)
	}

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, d := range s.defs {
		if err := s.addCronLocked(d); err != nil {
			s.log.Error("schedule register failed", logx.String("job", d.job.Name), logx.Err(err))
		}
	}
	s.c.Start()

	delay := cur.StartupDelay
	if delay == 0 {
		delay = DefaultStartupDelay
	}
	if delay > 0 {
		s.catchup = time.AfterFunc(delay, s.runCatchup)
	}
	s.log.Info("scheduler started", logx.String("tz", loc.String()), logx.Int("jobs", len(s.defs)), logx.Duration("catchup_in", delay))
}

// Stop stops triggering and cancels a pending catch-up, then waits (bounded by
// ctx) for in-flight passes to finish. In-flight passes are not cancelled.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	if s.catchup != nil {
		s.catchup.Stop()
		s.catchup = nil
	}
	for _, d := range s.defs {
		d.entryID = 0
	}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	if s.engine != nil {
		s.engine.Stop(ctx)
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

// runCatchup fires every registered job once, independent of cadence.
func (s *Service) runCatchup() {
	s.mu.Lock()
	if s.c == nil {
		s.mu.Unlock()
		return
	}
	s.catchup = nil
	defs := make([]jobDef, 0, len(s.defs))
	for _, d := range s.defs {
		defs = append(defs, *d)
	}
	s.mu.Unlock()

	s.log.Info("catch-up pass", logx.Int("jobs", len(defs)))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.CatchupStarted, Data: len(defs)})
	}
	for i := range defs {
		s.submit(&defs[i], "catchup")
	}
}

func (s *Service) submit(d *jobDef, trigger string) {
	if s.engine == nil {
		return
	}
	err := s.engine.Submit(engine.Task{
		Name:    d.job.Name,
		Trigger: trigger,
		Timeout: d.job.Timeout,
		Run:     d.job.Run,
		State:   d.state,
	})
	if err != nil {
		s.reportSubmitError(d.job.Name, err)
	}
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
