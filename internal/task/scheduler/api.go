package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"estatecron/internal/task/engine"
	logx "estatecron/pkg/logx"
)

var ErrUnknownJob = errors.New("unknown job")

// Register adds job, replacing any job with the same name. The schedule and
// timezone are validated here so a bad config fails at boot, not at the first
// tick.
func (s *Service) Register(job Job) error {
	job.Name = strings.TrimSpace(job.Name)
	if job.Name == "" {
		return errors.New("job name required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %s: Run is nil", job.Name)
	}
	ps, err := ParseSchedule(job.Schedule)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}
	job.Timezone = strings.TrimSpace(job.Timezone)
	if job.Timezone != "" {
		if _, err := time.LoadLocation(job.Timezone); err != nil {
			return fmt.Errorf("job %s: timezone %q: %w", job.Name, job.Timezone, err)
		}
	}
	cronSpec := ps.CronSpec(job.Timezone)
	if ps.Kind == SpecCron {
		if _, err := s.parser.Parse(cronSpec); err != nil {
			return fmt.Errorf("job %s: %w", job.Name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := &engine.RunState{}
	// Keep the overlap guard across re-registration so a reload cannot start
	// a second copy of a pass that is still running.
	if prev := s.findLocked(job.Name); prev != nil {
		state = prev.state
	}
	s.removeLocked(job.Name)

	d := &jobDef{job: job, spec: ps, cronSpec: cronSpec, state: state}
	s.defs = append(s.defs, d)
	if s.c == nil {
		return nil
	}
	if err := s.addCronLocked(d); err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}
	args := []logx.Field{logx.String("job", job.Name), logx.String("spec", cronSpec), logx.Duration("timeout", job.Timeout)}
	if next := s.previewNextRunsLocked(d, 3); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Debug("job registered", args...)
	return nil
}

// Remove unregisters a job. It returns true if something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeLocked(strings.TrimSpace(name))
	s.mu.Unlock()
	if removed {
		s.log.Debug("job removed", logx.String("job", name))
	}
	return removed
}

// Jobs returns the registered job names, sorted.
func (s *Service) Jobs() []string {
	s.mu.Lock()
	names := make([]string, 0, len(s.defs))
	for _, d := range s.defs {
		names = append(names, d.job.Name)
	}
	s.mu.Unlock()
	sort.Strings(names)
	return names
}

// Has reports whether a job named name is registered.
func (s *Service) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(name) != nil
}

// Job returns the current registration of name.
func (s *Service) Job(name string) (Job, bool) {
	d := s.lookup(name)
	if d == nil {
		return Job{}, false
	}
	return d.job, true
}

// RunNow runs one pass of name on the calling goroutine and returns its
// outcome. It shares the job's overlap guard with scheduled ticks, so a pass
// already in flight makes RunNow return engine.ErrOverlapSkip.
func (s *Service) RunNow(ctx context.Context, name string) (Result, error) {
	def := s.lookup(name)
	if def == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if s.engine == nil {
		return Result{}, errors.New("scheduler has no engine")
	}
	res := s.engine.Run(ctx, engine.Task{
		Name:    def.job.Name,
		Trigger: "manual",
		Timeout: def.job.Timeout,
		Run:     def.job.Run,
		State:   def.state,
	})
	return res, res.Err
}

// removeLocked drops every def named name and unregisters it from cron.
// Call with s.mu held.
func (s *Service) removeLocked(name string) bool {
	if name == "" {
		return false
	}
	removed := false
	kept := s.defs[:0]
	for _, d := range s.defs {
		if d.job.Name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	clear(s.defs[len(kept):])
	s.defs = kept
	return removed
}

// findLocked returns the registered def for name, or nil. Call with s.mu held.
func (s *Service) findLocked(name string) *jobDef {
	for _, d := range s.defs {
		if d.job.Name == name {
			return d
		}
	}
	return nil
}

// lookup returns a copy of the current registration for name, or nil.
func (s *Service) lookup(name string) *jobDef {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findLocked(name)
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

func (s *Service) addCronLocked(d *jobDef) error {
	// The callback resolves the job by name on every tick, so it always runs
	// the current registration of this job and nothing else.
	name := d.job.Name
	job := cron.FuncJob(func() {
		if cur := s.lookup(name); cur != nil {
			s.submit(cur, "cron")
		}
	})

	if d.spec.Kind == SpecInterval {
		loc := s.loc
		if loc == nil {
			loc = time.Local
		}
		sched, spread := intervalSchedule(d.spec.Every, time.Now().In(loc), d.job.Name)
		d.spread = spread
		d.entryID = s.c.Schedule(sched, job)
		return nil
	}

	d.spread = 0
	eid, err := s.c.AddJob(d.cronSpec, job)
	if err == nil {
		d.entryID = eid
	}
	return err
}

func (s *Service) restartLocked() {
	// Not waiting on Stop().Done(): callbacks take s.mu, which we hold.
	if s.c != nil {
		s.c.Stop()
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
	s.log.Info("scheduler restarted", logx.String("tz", loc.String()), logx.Int("jobs", len(s.defs)))
}

// previewNextRunsLocked returns a short list of upcoming run times for d.
// Call with s.mu held.
func (s *Service) previewNextRunsLocked(d *jobDef, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 || d.spec.Kind != SpecCron {
		return ""
	}
	sched, err := s.parser.Parse(d.cronSpec)
	if err != nil {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	t := time.Now().In(loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05 MST"))
	}
	return b.String()
}
