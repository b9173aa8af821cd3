package scheduler

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron"},
		{name: "descriptor", raw: "@daily", kind: SpecCron, source: "cron"},
		{name: "tz prefix", raw: "CRON_TZ=Asia/Riyadh 0 3 * * *", kind: SpecCron, source: "cron"},
		{name: "duration", raw: "10m", kind: SpecInterval, source: "duration", duration: 10 * time.Minute},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "every prefix", raw: "EVERY: 2h", kind: SpecInterval, source: "duration", duration: 2 * time.Hour},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
		{name: "hhmm day", raw: "24:00", kind: SpecInterval, source: "hhmm", duration: 24 * time.Hour},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "cron:", "interval:", "-5m", "00:00", "01:75"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestParseHHMMDuration(t *testing.T) {
	t.Parallel()
	d, err := parseHHMMDuration("23:15")
	if err != nil {
		t.Fatalf("parseHHMMDuration error: %v", err)
	}
	if d != 23*time.Hour+15*time.Minute {
		t.Fatalf("unexpected result: %v", d)
	}
	if _, err := parseHHMMDuration("12:60"); err == nil {
		t.Fatal("expected error for invalid minutes")
	}
}

func TestCronSpecTimezone(t *testing.T) {
	t.Parallel()
	cronSpec := ParsedSpec{Kind: SpecCron, Cron: "0 9 * * *"}
	if got := cronSpec.CronSpec("Asia/Riyadh"); got != "CRON_TZ=Asia/Riyadh 0 9 * * *" {
		t.Fatalf("CronSpec = %q", got)
	}
	if got := cronSpec.CronSpec(""); got != "0 9 * * *" {
		t.Fatalf("CronSpec without tz = %q", got)
	}
	pinned := ParsedSpec{Kind: SpecCron, Cron: "TZ=UTC 0 9 * * *"}
	if got := pinned.CronSpec("Asia/Dubai"); got != "TZ=UTC 0 9 * * *" {
		t.Fatalf("explicit tz must win, got %q", got)
	}
	every := ParsedSpec{Kind: SpecInterval, Every: 15 * time.Minute}
	if got := every.CronSpec("Asia/Riyadh"); got != "@every 15m0s" {
		t.Fatalf("interval CronSpec = %q", got)
	}
}

func TestIntervalScheduleSpread(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	sched, spread := intervalSchedule(time.Minute, now, "promotions.sweep")
	if spread < 0 || spread >= maxStartupSpread {
		t.Fatalf("spread out of range: %v", spread)
	}
	first := sched.Next(now)
	if want := now.Add(time.Minute + spread); !first.Equal(want) {
		t.Fatalf("first tick = %v, want %v", first, want)
	}
	if second := sched.Next(first); second.Sub(first) != time.Minute {
		t.Fatalf("cadence after first tick = %v", second.Sub(first))
	}

	_, again := intervalSchedule(time.Minute, now, "promotions.sweep")
	if again != spread {
		t.Fatalf("spread not stable: %v vs %v", again, spread)
	}

	_, short := intervalSchedule(2*time.Second, now, "fx.sync")
	if short >= 2*time.Second {
		t.Fatalf("spread must stay below the interval, got %v", short)
	}
}
