package scheduler

import (
	"time"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	defs := make([]jobDef, 0, len(s.defs))
	for _, d := range s.defs {
		defs = append(defs, *d)
	}
	c := s.c
	loc := s.loc
	eng := s.engine
	s.mu.Unlock()

	if loc == nil {
		loc = time.Local
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = loc.String()
	}
	delay := cfg.StartupDelay
	if delay == 0 {
		delay = DefaultStartupDelay
	}

	items := make([]ScheduleInfo, 0, len(defs))
	for _, d := range defs {
		it := ScheduleInfo{
			Name:     d.job.Name,
			Spec:     d.cronSpec,
			Kind:     d.spec.Kind.String(),
			Timezone: d.job.Timezone,
			Timeout:  d.job.Timeout,
			Running:  d.state.Running(),
		}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		items = append(items, it)
	}

	out := Snapshot{
		Enabled:      cfg.Enabled,
		Started:      c != nil,
		Timezone:     tz,
		StartupDelay: delay,
		Schedules:    items,
		History:      []HistoryItem{},
	}
	if eng != nil {
		es := eng.Snapshot()
		out.InFlight = es.InFlight
		out.Runs = es.Started
		out.Skipped = es.Skipped
		out.Failed = es.Failed
		out.DefaultTimeout = es.DefaultTimeout
		out.History = es.History
	}
	return out
}
