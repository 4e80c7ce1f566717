package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind describes how a poll schedule was expressed.
type Kind int

const (
	KindInterval Kind = iota
	KindCron
)

func (k Kind) String() string {
	if k == KindCron {
		return "cron"
	}
	return "interval"
}

// Schedule decides when the next poll cycle starts.
//
// Interval schedules sleep a fixed duration after each cycle finishes.
// Cron schedules wake at the next matching wall-clock time.
type Schedule struct {
	Kind  Kind
	Every time.Duration
	Expr  string
	Raw   string

	cron cron.Schedule
}

var (
	reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

	parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// Every returns a fixed-interval schedule.
func Every(d time.Duration) Schedule {
	return Schedule{Kind: KindInterval, Every: d, Raw: d.String()}
}

// Parse accepts:
//   - plain seconds: "600"
//   - Go durations: "10m", "1h30m"
//   - HH:MM intervals: "00:10" (ten minutes)
//   - cron expressions: "*/10 * * * *", "@hourly", "@every 10m", or any of them prefixed with "cron:"
func Parse(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("schedule required")
	}

	if low := strings.ToLower(s); strings.HasPrefix(low, "cron:") {
		return parseCron(raw, strings.TrimSpace(s[len("cron:"):]))
	}
	// Whitespace or a leading '@' can only be cron.
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return parseCron(raw, s)
	}

	if secs, err := strconv.Atoi(s); err == nil {
		if secs <= 0 {
			return Schedule{}, fmt.Errorf("interval must be > 0")
		}
		return Schedule{Kind: KindInterval, Every: time.Duration(secs) * time.Second, Raw: raw}, nil
	}

	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return Schedule{}, fmt.Errorf("invalid minutes in %q", s)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return Schedule{}, fmt.Errorf("interval must be > 0")
		}
		return Schedule{Kind: KindInterval, Every: d, Raw: raw}, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return Schedule{}, fmt.Errorf(
			"invalid schedule %q (use seconds like '600', a duration like '10m', HH:MM like '00:10', or cron like '*/10 * * * *')",
			raw,
		)
	}
	if d <= 0 {
		return Schedule{}, fmt.Errorf("interval must be > 0")
	}
	return Schedule{Kind: KindInterval, Every: d, Raw: raw}, nil
}

func parseCron(raw, expr string) (Schedule, error) {
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron expression required")
	}
	cs, err := parser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return Schedule{Kind: KindCron, Expr: expr, Raw: raw, cron: cs}, nil
}

// Next returns the time the next cycle should start, given that the previous
// one finished at now.
func (s Schedule) Next(now time.Time) time.Time {
	if s.Kind == KindCron && s.cron != nil {
		return s.cron.Next(now)
	}
	return now.Add(s.Every)
}

func (s Schedule) IsZero() bool { return s.cron == nil && s.Every <= 0 }

func (s Schedule) String() string {
	if s.Kind == KindCron {
		return "cron(" + s.Expr + ")"
	}
	return "every " + s.Every.String()
}
