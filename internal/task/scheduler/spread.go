package scheduler

import (
	"hash/fnv"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// spreadSchedule wraps an interval schedule and delays only its first tick.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// intervalSchedule builds an @every schedule whose first tick is offset by a
// per-job amount derived from the job name, so interval jobs registered
// together do not all hit the database on the same second. The offset is
// stable across restarts.
func intervalSchedule(every time.Duration, now time.Time, name string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	spreadMax := every
	if spreadMax > maxStartupSpread {
		spreadMax = maxStartupSpread
	}
	if spreadMax <= 0 {
		return base, 0
	}
	offset := time.Duration(fnv64a(name) % uint64(spreadMax))
	return &spreadSchedule{base: base, first: now.Add(every + offset)}, offset
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
