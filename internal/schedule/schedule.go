// Package schedule runs a function at fixed wall-clock times each day.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a time of day with minute resolution.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseTimes parses strict "HH:MM" schedule entries into sorted,
// deduplicated clock times. Each entry may itself be a comma-separated
// list, so a single config string like "07:30,15:30" works the same as
// a YAML list. Any malformed entry is an error; a daemon with a broken
// schedule should refuse to start rather than silently skip runs.
func ParseTimes(specs []string) ([]ClockTime, error) {
	seen := make(map[ClockTime]bool)
	var times []ClockTime
	for _, spec := range specs {
		for _, s := range strings.Split(spec, ",") {
			s = strings.TrimSpace(s)
			ct, err := parseClockTime(s)
			if err != nil {
				return nil, err
			}
			if !seen[ct] {
				seen[ct] = true
				times = append(times, ct)
			}
		}
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("no schedule times configured")
	}
	sort.Slice(times, func(i, j int) bool {
		if times[i].Hour != times[j].Hour {
			return times[i].Hour < times[j].Hour
		}
		return times[i].Minute < times[j].Minute
	})
	return times, nil
}

// parseClockTime accepts exactly two digits, a colon, two digits.
// Sscanf-style parsing is too loose here: it would take "07:3x" as
// 07:03 and the daemon would run at the wrong time.
func parseClockTime(s string) (ClockTime, error) {
	if len(s) != 5 || s[2] != ':' {
		return ClockTime{}, fmt.Errorf("invalid schedule time %q: want HH:MM", s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return ClockTime{}, fmt.Errorf("invalid schedule time %q: want HH:MM", s)
		}
	}
	hour, _ := strconv.Atoi(s[:2])
	minute, _ := strconv.Atoi(s[3:])
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("invalid schedule time %q: out of range", s)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

// Next returns the soonest scheduled instant strictly after now, in
// now's location. When every slot today has passed, the earliest slot
// tomorrow is next.
func Next(now time.Time, times []ClockTime) time.Time {
	for _, ct := range times {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), ct.Hour, ct.Minute, 0, 0, now.Location())
		if candidate.After(now) {
			return candidate
		}
	}
	first := times[0]
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), first.Hour, first.Minute, 0, 0, now.Location())
}

// Runner sleeps until each scheduled time and invokes the callback.
type Runner struct {
	times []ClockTime
	log   *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewRunner creates a Runner over the given schedule.
func NewRunner(times []ClockTime, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{times: times, log: log, now: time.Now}
}

// Run blocks, invoking fn at every scheduled time until ctx is
// canceled. Cycles run sequentially: a slow fn pushes later slots back
// rather than overlapping them. Returns ctx.Err() on cancellation.
func (r *Runner) Run(ctx context.Context, fn func(ctx context.Context)) error {
	for {
		now := r.now()
		next := Next(now, r.times)
		r.log.Info("next scheduled run", "at", next.Format("2006-01-02 15:04"))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		fn(ctx)
	}
}
