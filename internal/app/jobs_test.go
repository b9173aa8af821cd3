package app

import (
	"context"
	"testing"
	"time"

	"estatecron/internal/config"
	"estatecron/internal/task/engine"
	"estatecron/internal/task/scheduler"
	logx "estatecron/pkg/logx"
)

func nextRuns(s *scheduler.Service) map[string]time.Time {
	out := map[string]time.Time{}
	for _, it := range s.Snapshot().Schedules {
		out[it.Name] = it.Next
	}
	return out
}

func TestApplyJobsKeepsUnchangedRegistrations(t *testing.T) {
	eng := engine.New(engine.Config{Enabled: true}, logx.Nop(), nil)
	s := scheduler.New(scheduler.Config{Enabled: true, Timezone: "UTC", StartupDelay: -1}, eng, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})

	noop := func(context.Context) (int, error) { return 0, nil }
	runs := jobSet{JobEliteExpiry: noop, JobPromotions: noop, JobExchangeRates: noop}

	cfg := config.Default()
	cfg.Jobs.EliteExpiry.Schedule = "10m"
	cfg.Jobs.Promotions.Schedule = "15m"
	if err := applyJobs(s, cfg, runs); err != nil {
		t.Fatal(err)
	}
	before := nextRuns(s)

	time.Sleep(20 * time.Millisecond)
	next := *cfg
	next.Jobs.Promotions.Schedule = "20m"
	if err := applyJobs(s, &next, runs); err != nil {
		t.Fatal(err)
	}
	after := nextRuns(s)

	if !after[JobEliteExpiry].Equal(before[JobEliteExpiry]) {
		t.Fatalf("unchanged interval job was re-registered: next %v -> %v", before[JobEliteExpiry], after[JobEliteExpiry])
	}
	if !after[JobExchangeRates].Equal(before[JobExchangeRates]) {
		t.Fatalf("unchanged cron job moved: next %v -> %v", before[JobExchangeRates], after[JobExchangeRates])
	}
	if !after[JobPromotions].After(before[JobPromotions]) {
		t.Fatalf("changed job kept its old registration: next %v -> %v", before[JobPromotions], after[JobPromotions])
	}
	if cur, ok := s.Job(JobPromotions); !ok || cur.Schedule != "20m" {
		t.Fatalf("promotions = %+v, %v", cur, ok)
	}
}
