package schedule

import (
	"context"
	"testing"
	"time"
)

func TestParseTimes(t *testing.T) {
	times, err := ParseTimes([]string{"15:30", "07:30", "15:30"})
	if err != nil {
		t.Fatalf("ParseTimes: %v", err)
	}
	if len(times) != 2 {
		t.Fatalf("ParseTimes = %v, want deduplicated 2 entries", times)
	}
	if times[0].String() != "07:30" || times[1].String() != "15:30" {
		t.Errorf("ParseTimes = %v, want sorted [07:30 15:30]", times)
	}
}

func TestParseTimesSplitsCommaLists(t *testing.T) {
	// A single config string like GRADEWATCH_SCRAPE_TIMES=07:30,15:30
	// arrives as one entry and must parse the same as a YAML list.
	tests := []struct {
		name  string
		specs []string
	}{
		{"single comma-joined entry", []string{"15:30,07:30"}},
		{"spaces around commas", []string{"15:30, 07:30"}},
		{"mixed list and joined", []string{"15:30", "07:30,15:30"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			times, err := ParseTimes(tt.specs)
			if err != nil {
				t.Fatalf("ParseTimes(%v): %v", tt.specs, err)
			}
			if len(times) != 2 || times[0].String() != "07:30" || times[1].String() != "15:30" {
				t.Errorf("ParseTimes(%v) = %v, want [07:30 15:30]", tt.specs, times)
			}
		})
	}
}

func TestParseTimesRejectsMalformed(t *testing.T) {
	bad := [][]string{
		{"7:30"},
		{"07:30:00"},
		{"25:00"},
		{"12:60"},
		{"07:3x"},
		{"0x:30"},
		{"07:+1"},
		{"07:30,"},
		{"noon"},
		{""},
		{},
	}
	for _, specs := range bad {
		if _, err := ParseTimes(specs); err == nil {
			t.Errorf("ParseTimes(%v) accepted malformed input", specs)
		}
	}
}

func TestNext(t *testing.T) {
	times, err := ParseTimes([]string{"07:30", "15:30"})
	if err != nil {
		t.Fatal(err)
	}

	loc := time.FixedZone("test", -5*3600)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"before first slot",
			time.Date(2026, 3, 2, 6, 0, 0, 0, loc),
			time.Date(2026, 3, 2, 7, 30, 0, 0, loc),
		},
		{
			"between slots",
			time.Date(2026, 3, 2, 9, 0, 0, 0, loc),
			time.Date(2026, 3, 2, 15, 30, 0, 0, loc),
		},
		{
			"after last slot rolls to tomorrow",
			time.Date(2026, 3, 2, 20, 0, 0, 0, loc),
			time.Date(2026, 3, 3, 7, 30, 0, 0, loc),
		},
		{
			"exactly on a slot picks the next one",
			time.Date(2026, 3, 2, 7, 30, 0, 0, loc),
			time.Date(2026, 3, 2, 15, 30, 0, 0, loc),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Next(tt.now, times)
			if !got.Equal(tt.want) {
				t.Errorf("Next(%v) = %v, want %v", tt.now, got, tt.want)
			}
			if got.Location() != loc {
				t.Errorf("Next() changed location to %v", got.Location())
			}
		})
	}
}

func TestRunnerCancellation(t *testing.T) {
	times, err := ParseTimes([]string{"00:00"})
	if err != nil {
		t.Fatal(err)
	}

	r := NewRunner(times, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, func(context.Context) { t.Error("callback ran unexpectedly") })
	}()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunnerFiresAtScheduledTime(t *testing.T) {
	r := NewRunner([]ClockTime{{Hour: 12, Minute: 0}}, nil)
	// Pin "now" one instant before the slot so the timer fires
	// immediately.
	r.now = func() time.Time {
		return time.Date(2026, 3, 2, 11, 59, 59, int(time.Second-50*time.Millisecond), time.UTC)
	}

	ctx, cancel := context.WithCancel(context.Background())
	fired := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, func(context.Context) {
			select {
			case fired <- struct{}{}:
			default:
			}
			cancel()
		})
	}()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
	<-done
}
