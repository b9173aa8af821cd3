package scheduler

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// SpecKind describes the normalized kind of a schedule string: a cron
// expression (robfig/cron) or a fixed interval.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

func (k SpecKind) String() string {
	if k == SpecInterval {
		return "interval"
	}
	return "cron"
}

// ParsedSpec represents a parsed schedule string.
//
// Supported forms:
//   - Cron: "0 9 * * *", "*/15 * * * *", "@daily", "@every 15m"
//   - Interval duration: "15m", "2h30m"
//   - Interval HH:MM: "00:15" (15 minutes), "24:00" (one day)
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

// CronSpec is the expression handed to robfig/cron. A non-empty tz is attached
// with the CRON_TZ= prefix so the job fires in that zone regardless of the
// scheduler's default location. Intervals ignore tz.
func (p ParsedSpec) CronSpec(tz string) string {
	if p.Kind == SpecInterval {
		return "@every " + p.Every.String()
	}
	tz = strings.TrimSpace(tz)
	if tz == "" || hasTZPrefix(p.Cron) {
		return p.Cron
	}
	return "CRON_TZ=" + tz + " " + p.Cron
}

func hasTZPrefix(expr string) bool {
	return strings.HasPrefix(expr, "CRON_TZ=") || strings.HasPrefix(expr, "TZ=")
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule parses a schedule string into either a cron expression or an interval duration.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	if rest, ok := cutPrefixFold(s, "cron:"); ok {
		if rest == "" {
			return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return ParsedSpec{Kind: SpecCron, Cron: rest, Source: "cron"}, nil
	}
	for _, p := range []string{"interval:", "every:"} {
		if rest, ok := cutPrefixFold(s, p); ok {
			d, src, err := parseInterval(rest)
			if err != nil {
				return ParsedSpec{}, err
			}
			return ParsedSpec{Kind: SpecInterval, Every: d, Source: src}, nil
		}
	}

	// Whitespace, a leading '@' or a TZ prefix means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") || hasTZPrefix(s) {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}

	if reHHMM.MatchString(s) {
		d, err := parseHHMMDuration(s)
		if err != nil {
			return ParsedSpec{}, err
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "hhmm"}, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return ParsedSpec{}, fmt.Errorf("interval must be > 0")
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "duration"}, nil
	}

	return ParsedSpec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '0 9 * * *', HH:MM like '00:15', or duration like '15m')",
		raw,
	)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

func parseInterval(v string) (time.Duration, string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, "", fmt.Errorf("interval required")
	}
	if reHHMM.MatchString(v) {
		d, err := parseHHMMDuration(v)
		return d, "hhmm", err
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, "", fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '15m')", v)
	}
	if d <= 0 {
		return 0, "", fmt.Errorf("interval must be > 0")
	}
	return d, "duration", nil
}

func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	var hh int
	for i := 0; i < len(m[1]); i++ {
		hh = hh*10 + int(m[1][i]-'0')
	}
	mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}
