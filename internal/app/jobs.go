package app

import (
	"context"
	"fmt"
	"strings"

	"estatecron/internal/config"
	"estatecron/internal/task/scheduler"
)

// Job names, also the keys under "jobs" in the config file.
const (
	JobEliteExpiry   = "elite_expiry"
	JobPromotions    = "promotions"
	JobExchangeRates = "exchange_rates"
)

// JobNames lists every job the app knows, registered or not.
func JobNames() []string {
	return []string{JobEliteExpiry, JobPromotions, JobExchangeRates}
}

type runFunc = func(ctx context.Context) (int, error)

// jobSet is one pass function per job name.
type jobSet map[string]runFunc

// applyJobs reconciles the scheduler with cfg: enabled jobs are registered,
// disabled ones removed. A job whose schedule, timezone and timeout already
// match its registration is left alone so its interval clock keeps running.
func applyJobs(s *scheduler.Service, cfg *config.Config, runs jobSet) error {
	jobs := cfg.Jobs.WithDefaults()
	for _, it := range []struct {
		name string
		jc   config.JobConfig
	}{
		{JobEliteExpiry, jobs.EliteExpiry},
		{JobPromotions, jobs.Promotions},
		{JobExchangeRates, jobs.ExchangeRates},
	} {
		if !it.jc.IsEnabled() {
			s.Remove(it.name)
			continue
		}
		run := runs[it.name]
		if run == nil {
			return fmt.Errorf("job %s: no pass function", it.name)
		}
		timeout, err := config.ParseDurationField("jobs."+it.name+".timeout", it.jc.Timeout)
		if err != nil {
			return err
		}
		job := scheduler.Job{
			Name:     it.name,
			Schedule: it.jc.Schedule,
			Timezone: it.jc.Timezone,
			Timeout:  timeout,
			Run:      run,
		}
		if cur, ok := s.Job(it.name); ok && sameSchedule(cur, job) {
			continue
		}
		if err := s.Register(job); err != nil {
			return err
		}
	}
	return nil
}

func sameSchedule(a, b scheduler.Job) bool {
	return strings.TrimSpace(a.Schedule) == strings.TrimSpace(b.Schedule) &&
		strings.TrimSpace(a.Timezone) == strings.TrimSpace(b.Timezone) &&
		a.Timeout == b.Timeout
}
